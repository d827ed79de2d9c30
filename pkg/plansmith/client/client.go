// Package client is a typed HTTP client for the plansmith service.
package client

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
)

// Config tunes the client's HTTP behavior.
type Config struct {
	// MaxRetries bounds retry attempts for idempotent reads. Writes are
	// never retried.
	MaxRetries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// Timeout caps each HTTP call. Generation blocks on inference, so the
	// default is generous; use the request context for tighter bounds.
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 3,
		RetryDelay: time.Second,
		Timeout:    5 * time.Minute,
	}
}

// Client calls the plansmith HTTP API.
//
// Usage:
//
//	c := client.New("http://localhost:8080")
//	resp, err := c.Generate(ctx, &client.GenerateRequest{UserPrompt: "Build a todo app"})
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// New creates a client with the default configuration.
func New(baseURL string) *Client {
	return NewWithConfig(baseURL, nil)
}

// NewWithConfig creates a client with a custom configuration. A nil
// config uses the defaults.
func NewWithConfig(baseURL string, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode  int
	Code        string
	Message     string
	Suggestions []string
	DocsURL     string

	// Response carries the failed run's envelope when the server included
	// one, so the attempt trace survives client-side.
	Response *GenerateResponse
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("plansmith API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("plansmith API error (status %d): %s", e.StatusCode, e.Message)
}

// Generate runs one plan generation. It never retries: a failed run has
// already walked the whole backend chain server-side, and a paid fallback
// attempt should not be repeated on the caller's behalf.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/plans/generate", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Backends fetches the availability report.
func (c *Client) Backends(ctx context.Context) (*BackendsReport, error) {
	var report BackendsReport
	if err := c.do(ctx, http.MethodGet, "/v1/backends", nil, &report, true); err != nil {
		return nil, err
	}
	return &report, nil
}

// Health fetches the liveness probe.
func (c *Client) Health(ctx context.Context) (*ProbeResult, error) {
	return c.probe(ctx, "/healthz")
}

// Ready fetches the readiness probe. A 503 is not an error here: the
// decoded result says why the server is not taking traffic.
func (c *Client) Ready(ctx context.Context) (*ProbeResult, error) {
	return c.probe(ctx, "/readyz")
}

func (c *Client) probe(ctx context.Context, path string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusServiceUnavailable {
		var result ProbeResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode probe response: %w", err)
		}
		return &result, nil
	}
	return nil, readAPIError(resp)
}

// do runs one request, optionally retrying transport failures and 5xx
// responses. 4xx responses are never retried.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, retry bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	attempts := 1
	if retry {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		err := c.once(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return err
		}
		if !retry || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return readAPIError(resp)
}

// errorEnvelope mirrors the server's error payload.
type errorEnvelope struct {
	Error struct {
		Code        string   `json:"code"`
		Message     string   `json:"message"`
		Suggestions []string `json:"suggestions,omitempty"`
		DocsURL     string   `json:"docs_url,omitempty"`
	} `json:"error"`
	Response *GenerateResponse `json:"response,omitempty"`
}

func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Suggestions = envelope.Error.Suggestions
		apiErr.DocsURL = envelope.Error.DocsURL
		apiErr.Response = envelope.Response
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(data))
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
