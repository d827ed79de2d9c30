package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/plansmith/plansmith/internal/errors"
)

// LocalHTTP speaks the OpenAI-compatible chat completions protocol to local
// inference servers (LM Studio, Ollama, vLLM). One generator serves all
// local candidates: it walks the request's endpoint list in order and
// returns the first success, accumulating per-endpoint failures.
type LocalHTTP struct {
	id     string
	client *http.Client
}

// NewLocalHTTP creates the local transport with the given request timeout.
func NewLocalHTTP(timeout time.Duration) *LocalHTTP {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LocalHTTP{
		id: "local",
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Generate implements Generator for the local-http kind.
func (l *LocalHTTP) Generate(ctx context.Context, req *Request) *Result {
	start := time.Now()

	endpoints := orderEndpoints(req.Endpoints, req.ServerHint)
	if len(endpoints) == 0 {
		return Fail(l.id, errors.ErrCodeBackendUnavailable, "no local inference server reachable", time.Since(start))
	}

	payload, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Fail(l.id, errors.ErrCodeTransportFailure, fmt.Sprintf("marshal request: %v", err), time.Since(start))
	}

	failures := make([]string, 0, len(endpoints))
	code := errors.ErrCodeTransportFailure
	for _, endpoint := range endpoints {
		content, model, err := l.chatAtEndpoint(ctx, endpoint, payload)
		if err == nil {
			res := Success(l.id, model, content, time.Since(start))
			res.Endpoint = endpoint
			return res
		}
		failures = append(failures, fmt.Sprintf("%s (%v)", endpoint, err))
		if c := classify(err); c == errors.ErrCodeTransportTimeout {
			code = c
		}
		if ctx.Err() != nil {
			break
		}
	}

	reason := "generation failed across local endpoints: " + strings.Join(failures, " | ")
	return Fail(l.id, code, reason, time.Since(start))
}

func (l *LocalHTTP) chatAtEndpoint(ctx context.Context, endpoint string, payload []byte) (content, model string, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("status %s", resp.Status)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", "", fmt.Errorf("response missing choices")
	}
	content = decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", "", fmt.Errorf("response empty")
	}
	return content, decoded.Model, nil
}

func buildMessages(req *Request) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})
	return messages
}

// orderEndpoints normalizes the endpoint list and moves the hinted server
// to the front when it is present.
func orderEndpoints(endpoints []string, hint string) []string {
	out := make([]string, 0, len(endpoints))
	seen := map[string]struct{}{}
	for _, e := range endpoints {
		normalized := NormalizeBaseURL(e)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}

	if hinted := NormalizeBaseURL(hint); hinted != "" {
		for i, e := range out {
			if e == hinted && i > 0 {
				out = append(out[:i], out[i+1:]...)
				out = append([]string{hinted}, out...)
				break
			}
		}
	}
	return out
}

// NormalizeBaseURL adds a scheme and the /v1 suffix when missing, so
// "localhost:1234" and "http://localhost:1234/v1/" configure the same
// endpoint.
func NormalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}
