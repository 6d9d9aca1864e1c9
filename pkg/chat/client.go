// Package chat sends conversation turns to the chat-completion endpoint and
// queries billing usage.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	configpkg "github.com/minhyannv/io-chat-go/pkg/config"
	"github.com/minhyannv/io-chat-go/pkg/conversation"
	loggerpkg "github.com/minhyannv/io-chat-go/pkg/logger"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client talks to the configured chat and usage endpoints.
type Client struct {
	config  configpkg.Config
	client  openai.Client
	logger  loggerpkg.Logger
	verbose bool
	now     func() time.Time
}

// Option configures optional dependencies for Client.
type Option func(*clientDeps)

type clientDeps struct {
	logger     loggerpkg.Logger
	httpClient option.HTTPClient
	now        func() time.Time
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger) Option {
	return func(d *clientDeps) {
		d.logger = l
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c option.HTTPClient) Option {
	return func(d *clientDeps) {
		d.httpClient = c
	}
}

// WithClock sets the time source used to compute the usage date range.
func WithClock(now func() time.Time) Option {
	return func(d *clientDeps) {
		d.now = now
	}
}

// New builds a Client for cfg.
func New(cfg configpkg.Config, opts ...Option) *Client {
	cfg = configpkg.Normalize(cfg)
	deps := clientDeps{logger: loggerpkg.NopLogger{}, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}
	if deps.logger == nil {
		deps.logger = loggerpkg.NopLogger{}
	}
	if deps.now == nil {
		deps.now = time.Now
	}

	loggerpkg.Debug(cfg.Verbose, deps.logger, "chat client init", map[string]any{
		"model":     cfg.Model,
		"chat_url":  cfg.ChatURL,
		"usage_url": cfg.UsageURL,
		"timeout":   cfg.Timeout.String(),
	})

	return &Client{
		config:  cfg,
		client:  newOpenAIClient(cfg, deps.httpClient),
		logger:  deps.logger,
		verbose: cfg.Verbose,
		now:     deps.now,
	}
}

func newOpenAIClient(cfg configpkg.Config, httpClient option.HTTPClient) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return openai.NewClient(opts...)
}

// SendChat posts the whole history and returns the first choice of the completion.
// The history is expected to already end with the new user message.
func (c *Client) SendChat(ctx context.Context, history conversation.History) (Reply, error) {
	req := BuildChatRequest(c.config, history)
	payload, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("encode chat request: %w", err)
	}

	loggerpkg.Debug(c.verbose, c.logger, "chat request", map[string]any{
		"model":    req.Model,
		"messages": len(req.Messages),
		"bytes":    len(payload),
	})
	raw, err := c.do(ctx, http.MethodPost, c.config.ChatURL, payload)
	if err != nil {
		loggerpkg.Debug(c.verbose, c.logger, "chat request failed", map[string]any{"error": err.Error()})
		return Reply{}, err
	}

	var resp CompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Reply{}, decodeError(fmt.Errorf("completion response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return Reply{}, decodeError(errors.New("completion response has no choices"))
	}

	first := resp.Choices[0]
	loggerpkg.Debug(c.verbose, c.logger, "chat response", map[string]any{
		"id":            resp.ID,
		"choices":       len(resp.Choices),
		"finish_reason": first.FinishReason,
		"total_tokens":  resp.Usage.TotalTokens,
	})
	return Reply{
		Content:      first.Message.Content,
		TotalTokens:  resp.Usage.TotalTokens,
		FinishReason: first.FinishReason,
		Model:        resp.Model,
	}, nil
}

// FetchUsage returns the billed amount of the last 30 days formatted as "$ 0.000".
func (c *Client) FetchUsage(ctx context.Context) (string, error) {
	u, err := UsageURL(c.config.UsageURL, c.now())
	if err != nil {
		return "", err
	}

	loggerpkg.Debug(c.verbose, c.logger, "usage request", map[string]any{"url": u})
	raw, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	var resp UsageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", decodeError(fmt.Errorf("usage response: %w", err))
	}
	if resp.TotalUsage == nil {
		return "", decodeError(errors.New("usage response has no total_usage"))
	}
	return FormatDollars(*resp.TotalUsage), nil
}

// do executes one request without retries and maps the outcome onto the failure kinds.
func (c *Client) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	status := 0
	recordStatus := option.WithMiddleware(func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		res, err := next(req)
		if res != nil {
			status = res.StatusCode
		}
		return res, err
	})

	var raw []byte
	err := c.client.Execute(ctx, method, url, body, &raw, recordStatus)
	switch {
	case status != 0 && status != http.StatusOK:
		return nil, statusError(status, apiMessage(err))
	case err != nil:
		return nil, transportError(err)
	}
	return raw, nil
}

// apiMessage keeps the server-provided error message when the body carried one.
func apiMessage(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return errors.New(apiErr.Message)
	}
	return nil
}
