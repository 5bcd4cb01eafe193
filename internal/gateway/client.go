package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultBaseURL = "https://ai.gateway.lovable.dev/v1"
	DefaultModel   = "google/gemini-3-flash-preview"
)

var (
	ErrRateLimited    = errors.New("gateway: rate limited")
	ErrQuotaExhausted = errors.New("gateway: credits depleted")
)

// StatusError is returned for any other non-200 response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway: unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxRetries  int
	backoffFunc func(attempt int) time.Duration
}

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

func WithModel(m string) Option { return func(c *Client) { c.model = m } }

// WithRetries sets how often a 5xx or transport failure is retried.
func WithRetries(n int) Option { return func(c *Client) { c.maxRetries = n } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		maxRetries:  2,
		backoffFunc: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate answers prompt in the voice described by instructions.
// An empty string is returned when the gateway produced no choices.
func (c *Client) Generate(ctx context.Context, instructions, prompt string) (string, error) {
	resp, err := c.ChatCompletion(ctx, []Message{
		{Role: "system", Content: instructions},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatCompletion sends a chat completion request. 429 and 402 are returned
// immediately as ErrRateLimited and ErrQuotaExhausted.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (*ChatResponse, error) {
	body, err := json.Marshal(ChatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	resp, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return &chatResp, nil
}

func (c *Client) doWithRetry(ctx context.Context, do func(context.Context) (*http.Response, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("gateway: %w", ctx.Err())
			case <-time.After(c.backoffFunc(attempt - 1)):
			}
		}

		resp, err := do(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("gateway: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("gateway: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, ErrRateLimited
		case resp.StatusCode == http.StatusPaymentRequired:
			return nil, ErrQuotaExhausted
		case resp.StatusCode < 500:
			return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		}
		lastErr = &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return nil, lastErr
}
