package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// BlockingClient wraps the go-openai SDK for backends without
// incremental delivery. It deliberately does not implement Streamer;
// the orchestrator falls back to a single Complete call and synthesizes
// no chunk events for it.
type BlockingClient struct {
	name   string
	model  string
	cfg    BlockingConfig
	client *openai.Client
}

type BlockingConfig struct {
	Name      string
	BaseURL   string
	Model     string
	APIKey    string
	TimeoutMS int
}

func NewBlockingClient(cfg BlockingConfig) *BlockingClient {
	return &BlockingClient{
		name:   cfg.Name,
		model:  cfg.Model,
		cfg:    cfg,
		client: newSDKClient(cfg, cfg.APIKey),
	}
}

func newSDKClient(cfg BlockingConfig, apiKey string) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.TimeoutMS > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
	}
	return openai.NewClientWithConfig(clientCfg)
}

func (c *BlockingClient) Name() string  { return c.name }
func (c *BlockingClient) Model() string { return c.model }

func (c *BlockingClient) Complete(ctx context.Context, prompt string, creds Credentials) (Reply, error) {
	client := c.client
	if creds.APIKey != "" && creds.APIKey != c.cfg.APIKey {
		client = newSDKClient(c.cfg, creds.APIKey)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Reply{}, classifySDKError(err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, transportError(errors.New("chat response has no choices"))
	}
	return Reply{Content: resp.Choices[0].Message.Content}, nil
}

// classifySDKError maps go-openai error types onto the shared taxonomy.
func classifySDKError(err error) *ClientError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return transportError(err)
}
