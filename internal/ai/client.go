// Package ai talks to an OpenAI-compatible chat-completions endpoint and builds
// the prompts for Stride's assistant features.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrProviderFailure wraps every transport, status and decoding failure.
var ErrProviderFailure = errors.New("ai provider failure")

const maxResponseBytes = 1 << 20

// Request is one completion call. The completion must be a JSON object.
type Request struct {
	Feature string
	System  string
	User    string
	// Model overrides the client's default when set.
	Model string
}

// Provider returns the completion's JSON object unchanged.
type Provider interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	tracer  trace.Tracer
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer("stride/api/internal/ai"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	ctx, span := c.tracer.Start(ctx, "ai.complete", trace.WithAttributes(
		attribute.String("ai.feature", req.Feature),
		attribute.String("ai.model", model),
	))
	defer span.End()

	out, err := c.complete(ctx, model, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("ai.response_bytes", len(out)))
	return out, nil
}

func (c *Client) complete(ctx context.Context, model string, req Request) (json.RawMessage, error) {
	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrProviderFailure, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProviderFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrProviderFailure, resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderFailure, err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrProviderFailure)
	}
	return jsonObject(decoded.Choices[0].Message.Content)
}

// jsonObject accepts only a JSON object completion.
func jsonObject(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") || !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("%w: completion is not a JSON object", ErrProviderFailure)
	}
	return json.RawMessage(trimmed), nil
}
