package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindRateLimit},
		{500, KindServer},
		{503, KindServer},
		{400, KindTransport},
		{404, KindTransport},
	}
	for _, tc := range cases {
		if got := classifyStatus(tc.status); got != tc.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(&ClientError{Kind: KindAuth}); got != KindAuth {
		t.Errorf("Classify client error = %s, want %s", got, KindAuth)
	}
	wrapped := fmt.Errorf("run failed: %w", &ClientError{Kind: KindRateLimit})
	if got := Classify(wrapped); got != KindRateLimit {
		t.Errorf("Classify wrapped = %s, want %s", got, KindRateLimit)
	}
	if got := Classify(errors.New("plain")); got != KindTransport {
		t.Errorf("Classify plain = %s, want %s", got, KindTransport)
	}
}

func TestSSEClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"reasoning_content":"thinking"}}]}`,
			`{"choices":[{"delta":{"content":"Hello"}}]}`,
			`{"choices":[{"delta":{"content":", world"}}]}`,
			`[DONE]`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
	}))
	defer srv.Close()

	client := NewSSEClient(SSEConfig{Name: "main", BaseURL: srv.URL, Model: "test-model"})

	var deltas, reasoning []string
	reply, err := client.Stream(context.Background(), "hi", Credentials{APIKey: "sk-test"}, Callbacks{
		OnContentDelta:   func(d string) { deltas = append(deltas, d) },
		OnReasoningDelta: func(d string) { reasoning = append(reasoning, d) },
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if reply.Content != "Hello, world" {
		t.Errorf("Content = %q", reply.Content)
	}
	if reply.Reasoning != "thinking" {
		t.Errorf("Reasoning = %q", reply.Reasoning)
	}
	if strings.Join(deltas, "|") != "Hello|, world" {
		t.Errorf("deltas = %v", deltas)
	}
	if len(reasoning) != 1 {
		t.Errorf("reasoning deltas = %v", reasoning)
	}
}

func TestSSEClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"done","reasoning_content":"why"}}]}`)
	}))
	defer srv.Close()

	client := NewSSEClient(SSEConfig{Name: "main", BaseURL: srv.URL, Model: "test-model"})
	reply, err := client.Complete(context.Background(), "hi", Credentials{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Content != "done" || reply.Reasoning != "why" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestSSEClientErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusBadGateway, KindServer},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		client := NewSSEClient(SSEConfig{Name: "main", BaseURL: srv.URL, Model: "m"})
		_, err := client.Complete(context.Background(), "hi", Credentials{})
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		var ce *ClientError
		if !errors.As(err, &ce) {
			t.Fatalf("status %d: error %T is not a ClientError", tc.status, err)
		}
		if ce.Kind != tc.want {
			t.Errorf("status %d: kind = %s, want %s", tc.status, ce.Kind, tc.want)
		}
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	primary := NewSSEClient(SSEConfig{Name: "primary", BaseURL: "http://localhost", Model: "m1"})
	fallback := NewSSEClient(SSEConfig{Name: "fallback", BaseURL: "http://localhost", Model: "m2"})
	reg.Register(primary)
	reg.Register(fallback)

	c, err := reg.Resolve("")
	if err != nil || c.Name() != "primary" {
		t.Errorf("default resolve: %v %v", c, err)
	}
	c, err = reg.Resolve("FALLBACK")
	if err != nil || c.Name() != "fallback" {
		t.Errorf("named resolve: %v %v", c, err)
	}
	if _, err := reg.Resolve("missing"); err == nil {
		t.Error("expected error for unknown backend")
	}
	if err := reg.SetDefault("fallback"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	c, _ = reg.Resolve("")
	if c.Name() != "fallback" {
		t.Errorf("default after SetDefault = %s", c.Name())
	}
}

func TestBlockingClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"late"}}]}`)
	}))
	defer srv.Close()

	c := NewBlockingClient(BlockingConfig{
		Name:      "slow",
		BaseURL:   srv.URL,
		Model:     "m",
		APIKey:    "sk-test",
		TimeoutMS: 20,
	})
	if _, err := c.Complete(context.Background(), "hi", Credentials{}); err == nil {
		t.Fatal("expected timeout error from Complete")
	}

	fast := NewBlockingClient(BlockingConfig{
		Name:    "fast",
		BaseURL: srv.URL,
		Model:   "m",
		APIKey:  "sk-test",
	})
	reply, err := fast.Complete(context.Background(), "hi", Credentials{})
	if err != nil {
		t.Fatalf("Complete without timeout: %v", err)
	}
	if reply.Content != "late" {
		t.Errorf("Content = %q, want %q", reply.Content, "late")
	}
}

func TestStreamerCapability(t *testing.T) {
	var c Client = NewSSEClient(SSEConfig{Name: "s", BaseURL: "http://localhost", Model: "m"})
	if _, ok := c.(Streamer); !ok {
		t.Error("SSEClient should advertise streaming")
	}
	c = NewBlockingClient(BlockingConfig{Name: "b", Model: "m"})
	if _, ok := c.(Streamer); ok {
		t.Error("BlockingClient must not advertise streaming")
	}
}
