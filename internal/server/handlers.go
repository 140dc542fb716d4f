// Package server exposes the agent loop and the content cache over
// HTTP: a blocking run endpoint, an SSE streaming variant, and the
// cache store/get/stats surface.
package server

import (
	"context"
	"log/slog"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"

	"scribe/internal/cache"
	"scribe/internal/chat"
	"scribe/internal/orchestrator"
	"scribe/internal/provider"
	"scribe/internal/storage"
	"scribe/internal/tools"
)

type editorDTO struct {
	DocumentContent string `json:"document_content,omitempty"`
	SelectionStart  int    `json:"selection_start,omitempty"`
	SelectionEnd    int    `json:"selection_end,omitempty"`
	Mode            string `json:"mode,omitempty"`
}

type runRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	History   []chat.Message `json:"history,omitempty"`
	UserInput string         `json:"user_input"`
	Content   string         `json:"content,omitempty"`
	ContentID string         `json:"content_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Model     string         `json:"model,omitempty"`
	APIKey    string         `json:"api_key,omitempty"`
	Editor    *editorDTO     `json:"editor,omitempty"`
}

type runResponse struct {
	SessionID   string            `json:"session_id,omitempty"`
	Content     string            `json:"content"`
	Reasoning   string            `json:"reasoning,omitempty"`
	ToolCalls   []chat.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []chat.ToolResult `json:"tool_results,omitempty"`
	Iterations  int               `json:"iterations"`
}

// AgentHandler serves the run endpoints. The turn store is optional;
// without it runs are stateless.
type AgentHandler struct {
	orch   *orchestrator.Orchestrator
	store  *storage.SQLiteStore
	logger *slog.Logger
}

func NewAgentHandler(orch *orchestrator.Orchestrator, store *storage.SQLiteStore, logger *slog.Logger) *AgentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentHandler{orch: orch, store: store, logger: logger}
}

func (h *AgentHandler) bindRun(c *app.RequestContext) (runRequest, orchestrator.RunCall, bool) {
	var req runRequest
	if err := c.BindJSON(&req); err != nil {
		h.logger.Error("failed to bind run request", "error", err)
		BadRequestResponse(c, "malformed request body")
		return req, orchestrator.RunCall{}, false
	}
	if req.UserInput == "" {
		BadRequestResponse(c, "user_input is required")
		return req, orchestrator.RunCall{}, false
	}
	if req.Content != "" && req.ContentID != "" {
		BadRequestResponse(c, "content and content_id are mutually exclusive")
		return req, orchestrator.RunCall{}, false
	}

	call := orchestrator.RunCall{
		History:       req.History,
		UserInput:     req.UserInput,
		Content:       req.Content,
		ContentID:     req.ContentID,
		Mode:          req.Mode,
		ModelSelector: req.Model,
		Credentials:   provider.Credentials{APIKey: req.APIKey},
		Editor:        &tools.EditorState{},
	}
	if req.Editor != nil {
		call.Editor = &tools.EditorState{
			DocumentContent: req.Editor.DocumentContent,
			SelectionStart:  req.Editor.SelectionStart,
			SelectionEnd:    req.Editor.SelectionEnd,
			Mode:            req.Editor.Mode,
		}
	}
	return req, call, true
}

// Run handles the blocking variant: one JSON reply once the loop is
// done.
func (h *AgentHandler) Run(ctx context.Context, c *app.RequestContext) {
	req, call, ok := h.bindRun(c)
	if !ok {
		return
	}

	h.logger.Info("agent run requested",
		"session_id", req.SessionID,
		"model", req.Model,
		"mode", req.Mode,
		"streaming", false)

	out, err := h.orch.Run(ctx, call, nil)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	sessionID := h.recordTurn(req, out)
	SuccessResponse(c, runResponse{
		SessionID:   sessionID,
		Content:     out.Content,
		Reasoning:   out.Reasoning,
		ToolCalls:   out.ToolCalls,
		ToolResults: out.ToolResults,
		Iterations:  out.Iterations,
	})
}

// recordTurn appends the finished turn to the session log. Persistence
// failures are logged, never surfaced: the run already succeeded.
func (h *AgentHandler) recordTurn(req runRequest, out orchestrator.Outcome) string {
	if h.store == nil {
		return req.SessionID
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if _, err := h.store.LoadSession(sessionID); err != nil {
		if err := h.store.CreateSession(storage.SessionMeta{ID: sessionID, Model: req.Model}); err != nil {
			h.logger.Warn("create session failed", "session_id", sessionID, "error", err)
			return req.SessionID
		}
	}
	err := h.store.AppendTurn(storage.Turn{
		SessionID:   sessionID,
		UserInput:   req.UserInput,
		Content:     out.Content,
		Reasoning:   out.Reasoning,
		ToolCalls:   out.ToolCalls,
		ToolResults: out.ToolResults,
	})
	if err != nil {
		h.logger.Warn("append turn failed", "session_id", sessionID, "error", err)
	}
	return sessionID
}

// CacheHandler serves the content cache surface.
type CacheHandler struct {
	cache  *cache.Cache
	logger *slog.Logger
}

func NewCacheHandler(store *cache.Cache, logger *slog.Logger) *CacheHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheHandler{cache: store, logger: logger}
}

type storeContentRequest struct {
	Content string `json:"content"`
}

func (h *CacheHandler) Store(_ context.Context, c *app.RequestContext) {
	var req storeContentRequest
	if err := c.BindJSON(&req); err != nil {
		BadRequestResponse(c, "malformed request body")
		return
	}
	if req.Content == "" {
		BadRequestResponse(c, "content is required")
		return
	}
	id, isNew := h.cache.Store(req.Content)
	SuccessResponse(c, map[string]any{
		"content_id": id,
		"is_new":     isNew,
		"size":       len(req.Content),
	})
}

func (h *CacheHandler) Get(_ context.Context, c *app.RequestContext) {
	id := c.Param("id")
	content, err := h.cache.Get(id)
	if err != nil {
		ErrorResponse(c, err)
		return
	}
	SuccessResponse(c, map[string]any{
		"content_id": id,
		"content":    content,
	})
}

func (h *CacheHandler) Stats(_ context.Context, c *app.RequestContext) {
	stats := h.cache.Stats()
	entries := make([]map[string]any, len(stats.Entries))
	for i, e := range stats.Entries {
		entries[i] = map[string]any{
			"content_id":  e.ID,
			"size":        e.Size,
			"age_seconds": int64(e.Age.Seconds()),
		}
	}
	SuccessResponse(c, map[string]any{
		"count":       stats.Count,
		"total_bytes": stats.TotalBytes,
		"entries":     entries,
	})
}

func Healthz(_ context.Context, c *app.RequestContext) {
	SuccessResponse(c, map[string]any{"status": "ok"})
}
