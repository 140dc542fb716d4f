package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SSEClient talks to an OpenAI-compatible chat-completions endpoint and
// supports both blocking and incremental delivery. Streaming uses
// hand-rolled SSE parsing so reasoning side-channel deltas survive
// backends the SDK does not know about.
type SSEClient struct {
	name       string
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

type SSEConfig struct {
	Name      string
	BaseURL   string
	Model     string
	APIKey    string
	TimeoutMS int
}

func NewSSEClient(cfg SSEConfig) *SSEClient {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &SSEClient{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *SSEClient) Name() string  { return c.name }
func (c *SSEClient) Model() string { return c.model }

func (c *SSEClient) Complete(ctx context.Context, prompt string, creds Credentials) (Reply, error) {
	body, err := c.send(ctx, prompt, creds, false)
	if err != nil {
		return Reply{}, err
	}
	defer body.Close()
	return parseCompletionResponse(body)
}

func (c *SSEClient) Stream(ctx context.Context, prompt string, creds Credentials, cb Callbacks) (Reply, error) {
	body, err := c.send(ctx, prompt, creds, true)
	if err != nil {
		return Reply{}, err
	}
	defer body.Close()
	return parseStreamResponse(body, cb)
}

func (c *SSEClient) send(ctx context.Context, prompt string, creds Credentials, stream bool) (io.ReadCloser, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": stream,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, transportError(fmt.Errorf("marshal chat request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, transportError(fmt.Errorf("create chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	apiKey := creds.APIKey
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, statusError(resp.StatusCode, fmt.Sprintf("(read error: %v)", readErr))
		}
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp.Body, nil
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
}

func parseCompletionResponse(body io.Reader) (Reply, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return Reply{}, transportError(fmt.Errorf("read chat response: %w", err))
	}
	var raw completionResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return Reply{}, transportError(fmt.Errorf("parse chat response: %w", err))
	}
	if len(raw.Choices) == 0 {
		return Reply{}, transportError(fmt.Errorf("chat response has no choices"))
	}
	msg := raw.Choices[0].Message
	return Reply{Content: msg.Content, Reasoning: msg.ReasoningContent}, nil
}

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

func parseStreamResponse(body io.Reader, cb Callbacks) (Reply, error) {
	reader := bufio.NewReader(body)
	var (
		content   strings.Builder
		reasoning strings.Builder
		dataLines []string
	)

	processEvent := func(payload string) error {
		payload = strings.TrimSpace(payload)
		if payload == "" || payload == "[DONE]" {
			return nil
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return transportError(fmt.Errorf("parse stream event: %w", err))
		}
		for _, choice := range event.Choices {
			if text := choice.Delta.Content; text != "" {
				content.WriteString(text)
				if cb.OnContentDelta != nil {
					cb.OnContentDelta(text)
				}
			}
			if text := choice.Delta.ReasoningContent; text != "" {
				reasoning.WriteString(text)
				if cb.OnReasoningDelta != nil {
					cb.OnReasoningDelta(text)
				}
			}
		}
		return nil
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return Reply{}, transportError(fmt.Errorf("read stream response: %w", err))
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(dataLines) > 0 {
				if perr := processEvent(strings.Join(dataLines, "\n")); perr != nil {
					return Reply{}, perr
				}
				dataLines = dataLines[:0]
			}
		} else if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if err == io.EOF {
			break
		}
	}
	if len(dataLines) > 0 {
		if perr := processEvent(strings.Join(dataLines, "\n")); perr != nil {
			return Reply{}, perr
		}
	}

	return Reply{Content: content.String(), Reasoning: reasoning.String()}, nil
}
