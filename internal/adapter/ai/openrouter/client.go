// Package openrouter implements the model client against an
// OpenAI-compatible chat completions API.
//
// The client is deliberately thin: one request per call, no retry, no
// token cap, no fallback model. Failures surface verbatim so callers see
// the provider's real error instead of a masked generic one.
package openrouter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/careerforge/ai-gateway/internal/domain"
	"github.com/careerforge/ai-gateway/internal/observability"
)

// Client implements domain.ModelClient.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New constructs a client. A zero timeout leaves the HTTP client unbounded;
// cancellation then comes only from the request context.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Reasoning *chatReasoning `json:"reasoning,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReasoning struct {
	Effort string `json:"effort"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one chat completion request and returns the message text.
func (c *Client) Complete(ctx domain.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	if opts.Credential == "" {
		return "", fmt.Errorf("op=model.complete: %w", domain.ErrNoCredential)
	}
	body := chatRequest{
		Model:    opts.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if opts.Effort != "" {
		body.Reasoning = &chatReasoning{Effort: string(opts.Effort)}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=model.complete: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("op=model.complete: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+opts.Credential)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	observability.ModelRequestDuration.WithLabelValues(opts.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ModelRequestsTotal.WithLabelValues(opts.Model, "error").Inc()
		return "", fmt.Errorf("op=model.complete: %w: %v", domain.ErrUpstreamModel, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ModelRequestsTotal.WithLabelValues(opts.Model, "error").Inc()
		return "", fmt.Errorf("op=model.complete: %w: read body: %v", domain.ErrUpstreamModel, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ModelRequestsTotal.WithLabelValues(opts.Model, "error").Inc()
		return "", fmt.Errorf("op=model.complete: %w: status %d: %s", domain.ErrUpstreamModel, resp.StatusCode, bodySnippet(raw))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		observability.ModelRequestsTotal.WithLabelValues(opts.Model, "error").Inc()
		return "", fmt.Errorf("op=model.complete: %w: bad provider payload: %v", domain.ErrUpstreamModel, err)
	}
	if out.Error != nil {
		observability.ModelRequestsTotal.WithLabelValues(opts.Model, "error").Inc()
		return "", fmt.Errorf("op=model.complete: %w: %s", domain.ErrUpstreamModel, out.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		observability.ModelRequestsTotal.WithLabelValues(opts.Model, "error").Inc()
		return "", fmt.Errorf("op=model.complete: %w: empty completion", domain.ErrUpstreamModel)
	}

	observability.ModelRequestsTotal.WithLabelValues(opts.Model, "ok").Inc()
	return out.Choices[0].Message.Content, nil
}

func bodySnippet(b []byte) string {
	const n = 200
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
