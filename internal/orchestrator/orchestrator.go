// Package orchestrator drives the agent loop: prompt the model, parse
// the reply for a tool request, execute at most one tool, fold the
// result back, and repeat until the model stops asking or the
// iteration budget runs out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scribe/internal/cache"
	"scribe/internal/chat"
	"scribe/internal/metrics"
	"scribe/internal/provider"
	"scribe/internal/tokens"
	"scribe/internal/toolcall"
	"scribe/internal/tools"
)

// maxToolIterations bounds tool executions per run. A model that keeps
// requesting tools past it gets ErrIterationLimit instead of a loop.
const maxToolIterations = 10

// ErrIterationLimit marks a run aborted by the iteration safety valve,
// distinct from model and tool failures.
var ErrIterationLimit = errors.New("tool iteration limit exceeded")

// EventSink receives the run's event sequence: one Start, zero or more
// Chunk, then exactly one Complete or Error.
type EventSink interface {
	Emit(ev chat.StreamEvent)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev chat.StreamEvent)

func (f SinkFunc) Emit(ev chat.StreamEvent) { f(ev) }

// RunCall is one user turn. Content and ContentID are alternatives:
// a raw document body, or a reference resolved through the cache.
type RunCall struct {
	History       []chat.Message
	UserInput     string
	Content       string
	ContentID     string
	Mode          string
	ModelSelector string
	Credentials   provider.Credentials
	Editor        *tools.EditorState
}

// Outcome is the terminal result of a run.
type Outcome struct {
	Content     string
	Reasoning   string
	ToolCalls   []chat.ToolCall
	ToolResults []chat.ToolResult
	Iterations  int
}

type Orchestrator struct {
	providers *provider.Registry
	tools     *tools.Registry
	cache     *cache.Cache
	parser    *toolcall.Parser
	prompt    PromptBuilder
	logger    *slog.Logger
	metrics   *metrics.Collector
}

type Options struct {
	Providers *provider.Registry
	Tools     *tools.Registry
	Cache     *cache.Cache
	Prompt    PromptBuilder
	Logger    *slog.Logger
	Metrics   *metrics.Collector
}

func New(opts Options) *Orchestrator {
	if opts.Prompt == nil {
		opts.Prompt = DefaultPromptBuilder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		providers: opts.Providers,
		tools:     opts.Tools,
		cache:     opts.Cache,
		parser:    toolcall.NewParser(opts.Tools.Names()),
		prompt:    opts.Prompt,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Run executes one user turn. With a non-nil sink the model is streamed
// when the backend supports it and events are emitted as they happen;
// with a nil sink the run is silent and only the Outcome is returned.
// Inputs and resolution failures surface before any event is emitted.
func (o *Orchestrator) Run(ctx context.Context, call RunCall, sink EventSink) (Outcome, error) {
	client, err := o.providers.Resolve(call.ModelSelector)
	if err != nil {
		return Outcome{}, err
	}

	content := call.Content
	if call.ContentID != "" {
		content, err = o.cache.Get(call.ContentID)
		if err != nil {
			return Outcome{}, fmt.Errorf("resolve content %s: %w", call.ContentID, err)
		}
	}

	streaming := sink != nil
	if sink == nil {
		sink = SinkFunc(func(chat.StreamEvent) {})
	}
	sink.Emit(chat.StreamEvent{Type: chat.EventStart, Model: client.Model()})

	history := append([]chat.Message(nil), call.History...)
	catalog := o.tools.Catalog()
	pendingInput := call.UserInput

	var outcome Outcome
	var reasoning strings.Builder

	for {
		prompt := o.prompt.Build(history, pendingInput, content, call.Mode, catalog)
		o.logger.Debug("prompt built",
			"backend", client.Name(),
			"tokens", tokens.Default().Count(prompt),
			"iteration", outcome.Iterations)

		reply, err := o.invokeModel(ctx, client, prompt, call.Credentials, streaming, sink, &reasoning)
		if err != nil {
			kind := provider.Classify(err)
			o.logger.Error("model invocation failed", "backend", client.Name(), "kind", string(kind), "error", err)
			if o.metrics != nil {
				o.metrics.ObserveProviderError(client.Name(), string(kind))
				o.metrics.ObserveRun("model_error", outcome.Iterations)
			}
			sink.Emit(chat.StreamEvent{Type: chat.EventError, Err: err.Error()})
			return outcome, err
		}
		if reply.Reasoning != "" {
			if reasoning.Len() > 0 {
				reasoning.WriteString("\n\n")
			}
			reasoning.WriteString(reply.Reasoning)
		}

		toolCall := o.parser.Parse(reply.Content)
		if toolCall == nil {
			// Keep the full reply: a marker that never decoded into an
			// accepted call is ordinary text as far as the caller is
			// concerned.
			outcome.Content = reply.Content
			outcome.Reasoning = reasoning.String()
			if o.metrics != nil {
				o.metrics.ObserveRun("complete", outcome.Iterations)
			}
			sink.Emit(chat.StreamEvent{
				Type:           chat.EventComplete,
				FinalContent:   outcome.Content,
				FinalReasoning: outcome.Reasoning,
				ToolCalls:      outcome.ToolCalls,
			})
			return outcome, nil
		}

		visible := toolcall.VisiblePrefix(reply.Content)

		if outcome.Iterations >= maxToolIterations {
			outcome.Reasoning = reasoning.String()
			err := fmt.Errorf("%w after %d tool calls", ErrIterationLimit, outcome.Iterations)
			if o.metrics != nil {
				o.metrics.ObserveRun("iteration_limit", outcome.Iterations)
			}
			sink.Emit(chat.StreamEvent{Type: chat.EventError, Err: err.Error()})
			return outcome, err
		}

		result := o.tools.Execute(ctx, toolCall.Name, toolCall.Parameters, call.Editor)
		outcome.ToolCalls = append(outcome.ToolCalls, *toolCall)
		outcome.ToolResults = append(outcome.ToolResults, result)
		outcome.Iterations++
		o.logger.Info("tool executed",
			"tool", toolCall.Name,
			"success", result.Success,
			"iteration", outcome.Iterations)

		history = append(history,
			chat.Message{Role: chat.RoleUser, Content: pendingInput},
			chat.Message{
				Role:      chat.RoleAgent,
				Content:   visible,
				Reasoning: reply.Reasoning,
				ToolCalls: []chat.ToolCall{*toolCall},
			},
		)
		pendingInput = renderFoldback(toolCall.Name, result)
	}
}

// invokeModel runs one model turn, streaming when both the caller and
// the backend support it. Chunk events carry per-invocation cumulative
// text; accumulated reasoning from earlier iterations is prepended so
// the stream's Reasoning field stays cumulative across the run.
func (o *Orchestrator) invokeModel(ctx context.Context, client provider.Client, prompt string, creds provider.Credentials, streaming bool, sink EventSink, prior *strings.Builder) (provider.Reply, error) {
	start := time.Now()

	streamer, ok := client.(provider.Streamer)
	if !streaming || !ok {
		reply, err := client.Complete(ctx, prompt, creds)
		if o.metrics != nil {
			o.metrics.ObserveModelRequest(client.Name(), time.Since(start), err)
		}
		return reply, err
	}

	var content, reasoning strings.Builder
	base := prior.String()
	cb := provider.Callbacks{
		OnContentDelta: func(delta string) {
			content.WriteString(delta)
			sink.Emit(chat.StreamEvent{
				Type:         chat.EventChunk,
				ContentDelta: delta,
				Content:      content.String(),
				Reasoning:    joinReasoning(base, reasoning.String()),
			})
		},
		OnReasoningDelta: func(delta string) {
			reasoning.WriteString(delta)
			sink.Emit(chat.StreamEvent{
				Type:           chat.EventChunk,
				ReasoningDelta: delta,
				Content:        content.String(),
				Reasoning:      joinReasoning(base, reasoning.String()),
			})
		},
	}
	reply, err := streamer.Stream(ctx, prompt, creds, cb)
	if o.metrics != nil {
		o.metrics.ObserveModelRequest(client.Name(), time.Since(start), err)
	}
	return reply, err
}

func joinReasoning(base, current string) string {
	if base == "" {
		return current
	}
	if current == "" {
		return base
	}
	return base + "\n\n" + current
}
