package server

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/sse"

	"scribe/internal/chat"
	"scribe/internal/orchestrator"
)

type startPayload struct {
	Model string `json:"model"`
}

type chunkPayload struct {
	Content          string `json:"content"`
	FullResponse     string `json:"full_response"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
	FullReasoning    string `json:"full_reasoning,omitempty"`
}

type completePayload struct {
	FullResponse  string          `json:"full_response"`
	FullReasoning string          `json:"full_reasoning,omitempty"`
	ToolCalls     []chat.ToolCall `json:"tool_calls,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// RunStream handles the streaming variant. Events go out as SSE in run
// order; a failed write means the client went away, which cancels the
// in-flight run.
func (h *AgentHandler) RunStream(ctx context.Context, c *app.RequestContext) {
	req, call, ok := h.bindRun(c)
	if !ok {
		return
	}

	h.logger.Info("agent run requested",
		"session_id", req.SessionID,
		"model", req.Model,
		"mode", req.Mode,
		"streaming", true)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan chat.StreamEvent, 16)
	done := make(chan runResult, 1)
	go func() {
		defer close(events)
		out, err := h.orch.Run(runCtx, call, orchestrator.SinkFunc(func(ev chat.StreamEvent) {
			select {
			case events <- ev:
			case <-runCtx.Done():
			}
		}))
		done <- runResult{out: out, err: err}
	}()

	c.SetStatusCode(consts.StatusOK)
	writer := sse.NewWriter(c)
	defer writer.Close()

	sawTerminal := false
	for ev := range events {
		if err := h.writeWireEvent(writer, ev); err != nil {
			h.logger.Warn("client disconnected mid-stream", "error", err)
			cancel()
			for range events {
			}
			<-done
			return
		}
		if ev.Type == chat.EventComplete || ev.Type == chat.EventError {
			sawTerminal = true
		}
	}

	res := <-done
	if !sawTerminal {
		// The run failed before its first event (model resolution or
		// content lookup); surface it on the wire.
		msg := "run aborted"
		if res.err != nil {
			msg = res.err.Error()
		}
		_ = writeSSEJSON(writer, string(chat.EventError), errorPayload{Error: msg})
	}
	if res.err == nil {
		h.recordTurn(req, res.out)
	}
	_ = writer.WriteEvent("", "", []byte("[DONE]"))
}

type runResult struct {
	out orchestrator.Outcome
	err error
}

func (h *AgentHandler) writeWireEvent(writer *sse.Writer, ev chat.StreamEvent) error {
	switch ev.Type {
	case chat.EventStart:
		return writeSSEJSON(writer, string(ev.Type), startPayload{Model: ev.Model})
	case chat.EventChunk:
		return writeSSEJSON(writer, string(ev.Type), chunkPayload{
			Content:          ev.ContentDelta,
			FullResponse:     ev.Content,
			ReasoningContent: ev.ReasoningDelta,
			FullReasoning:    ev.Reasoning,
		})
	case chat.EventComplete:
		return writeSSEJSON(writer, string(ev.Type), completePayload{
			FullResponse:  ev.FinalContent,
			FullReasoning: ev.FinalReasoning,
			ToolCalls:     ev.ToolCalls,
		})
	case chat.EventError:
		return writeSSEJSON(writer, string(ev.Type), errorPayload{Error: ev.Err})
	default:
		return nil
	}
}

func writeSSEJSON(writer *sse.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writer.WriteEvent("", event, data)
}
