package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"

	"scribe/internal/cache"
	"scribe/internal/orchestrator"
	"scribe/internal/provider"
	"scribe/internal/tools"
)

type fixedClient struct {
	reply   provider.Reply
	failErr error
}

func (c *fixedClient) Name() string  { return "main" }
func (c *fixedClient) Model() string { return "test-model" }

func (c *fixedClient) Complete(context.Context, string, provider.Credentials) (provider.Reply, error) {
	if c.failErr != nil {
		return provider.Reply{}, c.failErr
	}
	return c.reply, nil
}

func newTestEngine(t *testing.T, client provider.Client, store *cache.Cache) *route.Engine {
	t.Helper()
	if store == nil {
		store = cache.New(cache.Options{})
	}
	providers := provider.NewRegistry()
	providers.Register(client)
	orch := orchestrator.New(orchestrator.Options{
		Providers: providers,
		Tools:     tools.NewRegistry(),
		Cache:     store,
	})

	engine := route.NewEngine(config.NewOptions(nil))
	agent := NewAgentHandler(orch, nil, nil)
	cacheHandler := NewCacheHandler(store, nil)
	engine.POST("/v1/agent/runs", agent.Run)
	engine.POST("/v1/cache/contents", cacheHandler.Store)
	engine.GET("/v1/cache/contents/:id", cacheHandler.Get)
	engine.GET("/v1/cache/stats", cacheHandler.Stats)
	engine.GET("/healthz", Healthz)
	return engine
}

func performJSON(engine *route.Engine, method, path, body string) *ut.ResponseRecorder {
	var reqBody *ut.Body
	if body != "" {
		reqBody = &ut.Body{Body: bytes.NewBufferString(body), Len: len(body)}
	}
	return ut.PerformRequest(engine, method, path, reqBody,
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func decodeEnvelope(t *testing.T, w *ut.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Result().Body(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, w.Result().Body())
	}
	return resp
}

func TestRunEndpointBlocking(t *testing.T) {
	engine := newTestEngine(t, &fixedClient{reply: provider.Reply{Content: "Hi there."}}, nil)

	w := performJSON(engine, "POST", "/v1/agent/runs", `{"user_input": "hello"}`)
	if w.Result().StatusCode() != 200 {
		t.Fatalf("status=%d body=%s", w.Result().StatusCode(), w.Result().Body())
	}
	resp := decodeEnvelope(t, w)
	if resp.Code != "SUCCESS" {
		t.Fatalf("code=%q", resp.Code)
	}
	data := resp.Data.(map[string]any)
	if data["content"] != "Hi there." {
		t.Fatalf("content=%v", data["content"])
	}
}

func TestRunEndpointValidation(t *testing.T) {
	engine := newTestEngine(t, &fixedClient{reply: provider.Reply{Content: "x"}}, nil)

	cases := map[string]string{
		"missing user_input": `{"content": "doc"}`,
		"both content forms": `{"user_input": "hi", "content": "doc", "content_id": "abc"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := performJSON(engine, "POST", "/v1/agent/runs", body)
			if w.Result().StatusCode() != 400 {
				t.Fatalf("status=%d, want 400", w.Result().StatusCode())
			}
		})
	}
}

func TestRunEndpointUnknownContentID(t *testing.T) {
	engine := newTestEngine(t, &fixedClient{reply: provider.Reply{Content: "x"}}, nil)

	w := performJSON(engine, "POST", "/v1/agent/runs", `{"user_input": "hi", "content_id": "ghost"}`)
	if w.Result().StatusCode() != 404 {
		t.Fatalf("status=%d, want 404", w.Result().StatusCode())
	}
	if resp := decodeEnvelope(t, w); resp.Code != "CONTENT_NOT_FOUND" {
		t.Fatalf("code=%q", resp.Code)
	}
}

func TestRunEndpointModelErrorMapping(t *testing.T) {
	cases := []struct {
		kind   provider.ErrorKind
		status int
		code   string
	}{
		{provider.KindAuth, 401, "MODEL_AUTH_FAILED"},
		{provider.KindRateLimit, 429, "MODEL_RATE_LIMITED"},
		{provider.KindServer, 502, "MODEL_SERVER_ERROR"},
		{provider.KindTransport, 502, "MODEL_UNREACHABLE"},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			client := &fixedClient{failErr: &provider.ClientError{Kind: tc.kind, Message: "nope"}}
			engine := newTestEngine(t, client, nil)

			w := performJSON(engine, "POST", "/v1/agent/runs", `{"user_input": "hi"}`)
			if w.Result().StatusCode() != tc.status {
				t.Fatalf("status=%d, want %d", w.Result().StatusCode(), tc.status)
			}
			if resp := decodeEnvelope(t, w); resp.Code != tc.code {
				t.Fatalf("code=%q, want %q", resp.Code, tc.code)
			}
		})
	}
}

func TestCacheEndpoints(t *testing.T) {
	store := cache.New(cache.Options{})
	engine := newTestEngine(t, &fixedClient{}, store)

	w := performJSON(engine, "POST", "/v1/cache/contents", `{"content": "abc"}`)
	resp := decodeEnvelope(t, w)
	if resp.Code != "SUCCESS" {
		t.Fatalf("store code=%q", resp.Code)
	}
	data := resp.Data.(map[string]any)
	id, _ := data["content_id"].(string)
	if id == "" || data["is_new"] != true || data["size"] != float64(3) {
		t.Fatalf("store data=%v", data)
	}

	// Same content dedups to the same id.
	w = performJSON(engine, "POST", "/v1/cache/contents", `{"content": "abc"}`)
	again := decodeEnvelope(t, w).Data.(map[string]any)
	if again["content_id"] != id || again["is_new"] != false {
		t.Fatalf("dedup data=%v", again)
	}

	w = performJSON(engine, "GET", fmt.Sprintf("/v1/cache/contents/%s", id), "")
	got := decodeEnvelope(t, w).Data.(map[string]any)
	if got["content"] != "abc" {
		t.Fatalf("get data=%v", got)
	}

	w = performJSON(engine, "GET", "/v1/cache/contents/ghost", "")
	if w.Result().StatusCode() != 404 {
		t.Fatalf("status=%d, want 404", w.Result().StatusCode())
	}

	w = performJSON(engine, "GET", "/v1/cache/stats", "")
	stats := decodeEnvelope(t, w).Data.(map[string]any)
	if stats["count"] != float64(1) || stats["total_bytes"] != float64(3) {
		t.Fatalf("stats=%v", stats)
	}
}

func TestCacheStoreRejectsEmptyContent(t *testing.T) {
	engine := newTestEngine(t, &fixedClient{}, nil)

	w := performJSON(engine, "POST", "/v1/cache/contents", `{"content": ""}`)
	if w.Result().StatusCode() != 400 {
		t.Fatalf("status=%d, want 400", w.Result().StatusCode())
	}
}

func TestHealthz(t *testing.T) {
	engine := newTestEngine(t, &fixedClient{}, nil)

	w := performJSON(engine, "GET", "/healthz", "")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("status=%d", w.Result().StatusCode())
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{cache.ErrNotFound, 404, "CONTENT_NOT_FOUND"},
		{fmt.Errorf("resolve content x: %w", cache.ErrNotFound), 404, "CONTENT_NOT_FOUND"},
		{orchestrator.ErrIterationLimit, 422, "ITERATION_LIMIT"},
		{provider.ErrUnknownBackend, 400, "UNKNOWN_MODEL"},
		{errors.New("boom"), 500, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		status, code := classifyError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("classifyError(%v) = %d %q, want %d %q", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestWireChunkPayloadShape(t *testing.T) {
	raw, err := json.Marshal(chunkPayload{
		Content:      "de",
		FullResponse: "abcde",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "reasoning") {
		t.Fatalf("empty reasoning fields should be omitted: %s", raw)
	}
	for _, key := range []string{`"content":"de"`, `"full_response":"abcde"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("missing %s in %s", key, raw)
		}
	}
}
