package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"scribe/internal/chat"
	"scribe/internal/metrics"
)

// ExecTimeout bounds a single tool execution. A tool that overruns it
// yields a failure result; the run itself keeps going.
const ExecTimeout = 30 * time.Second

type Registry struct {
	tools   map[string]Tool
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Collector
}

func NewRegistry(ts ...Tool) *Registry {
	m := make(map[string]Tool, len(ts))
	for _, t := range ts {
		m[t.Name()] = t
	}
	return &Registry{
		tools:   m,
		timeout: ExecTimeout,
		logger:  slog.Default(),
	}
}

// WithTimeout overrides the per-execution deadline. Tests use short ones.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

func (r *Registry) WithLogger(l *slog.Logger) *Registry {
	r.logger = l
	return r
}

func (r *Registry) WithMetrics(c *metrics.Collector) *Registry {
	r.metrics = c
	return r
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Catalog renders the tool roster as prompt text: one block per tool
// with its description and parameter schema.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, name := range r.Names() {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n", name, t.Description())
		if params := t.Parameters(); len(params) > 0 {
			raw, err := json.Marshal(params)
			if err == nil {
				fmt.Fprintf(&b, "  parameters: %s\n", raw)
			}
		}
	}
	return b.String()
}

type execOutcome struct {
	data any
	err  error
}

// Execute dispatches one tool call and always returns a structured
// result. Unknown names, errors, timeouts, and panics all fold into a
// failed ToolResult rather than an error; the caller decides nothing.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, editor *EditorState) chat.ToolResult {
	t, ok := r.tools[name]
	if !ok {
		r.observe(name, "unknown", 0)
		return chat.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}
	if params == nil {
		params = map[string]any{}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- execOutcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		data, err := t.Execute(execCtx, params, editor)
		ch <- execOutcome{data: data, err: err}
	}()

	select {
	case <-execCtx.Done():
		// The goroutine is abandoned; it observes execCtx and should
		// unwind on its own.
		elapsed := time.Since(start)
		if execCtx.Err() == context.DeadlineExceeded {
			r.logger.Warn("tool execution timed out", "tool", name, "timeout", r.timeout)
			r.observe(name, "timeout", elapsed)
			return chat.ToolResult{Success: false, Error: fmt.Sprintf("tool %s timed out after %s", name, r.timeout)}
		}
		r.observe(name, "canceled", elapsed)
		return chat.ToolResult{Success: false, Error: fmt.Sprintf("tool %s canceled: %v", name, execCtx.Err())}
	case out := <-ch:
		elapsed := time.Since(start)
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && execCtx.Err() != nil {
			// The tool noticed the deadline itself and returned just as
			// it fired; report it the same way as the race branch.
			r.logger.Warn("tool execution timed out", "tool", name, "timeout", r.timeout)
			r.observe(name, "timeout", elapsed)
			return chat.ToolResult{Success: false, Error: fmt.Sprintf("tool %s timed out after %s", name, r.timeout)}
		}
		if out.err != nil {
			r.logger.Warn("tool execution failed", "tool", name, "error", out.err)
			r.observe(name, "failure", elapsed)
			return chat.ToolResult{Success: false, Error: out.err.Error()}
		}
		r.observe(name, "success", elapsed)
		return chat.ToolResult{Success: true, Data: out.data}
	}
}

func (r *Registry) observe(name, outcome string, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveToolCall(name, outcome, elapsed)
}
