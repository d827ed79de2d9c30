package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/plansmith/plansmith/internal/errors"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-sonnet-4-0"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 4096
)

// Anthropic is the cloud transport for the Anthropic messages API. The API
// key arrives on each request, resolved by the caller through the
// credential chain.
type Anthropic struct {
	id      string
	baseURL string
	client  *http.Client
}

// NewAnthropic creates the Anthropic transport. An empty baseURL selects
// the public API.
func NewAnthropic(baseURL string, timeout time.Duration) *Anthropic {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Anthropic{
		id:      "anthropic",
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements Generator for the Anthropic provider.
func (a *Anthropic) Generate(ctx context.Context, req *Request) *Result {
	start := time.Now()

	if req.APIKey == "" {
		return Fail(a.id, errors.ErrCodeCredentialMissing, "no API key for anthropic", time.Since(start))
	}

	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
		System:      req.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Fail(a.id, errors.ErrCodeTransportFailure, fmt.Sprintf("marshal request: %v", err), time.Since(start))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Fail(a.id, errors.ErrCodeTransportFailure, fmt.Sprintf("create request: %v", err), time.Since(start))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return Fail(a.id, classify(err), fmt.Sprintf("send request: %v", err), time.Since(start))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Fail(a.id, classify(err), fmt.Sprintf("read response: %v", err), time.Since(start))
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp anthropicResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return Fail(a.id, errors.ErrCodeTransportFailure, fmt.Sprintf("anthropic error: %s", errResp.Error.Message), time.Since(start))
		}
		return Fail(a.id, errors.ErrCodeTransportFailure, fmt.Sprintf("http error %d", httpResp.StatusCode), time.Since(start))
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Fail(a.id, errors.ErrCodeTransportFailure, fmt.Sprintf("unmarshal response: %v", err), time.Since(start))
	}

	content := ""
	if len(decoded.Content) > 0 {
		content = decoded.Content[0].Text
	}
	if content == "" {
		return Fail(a.id, errors.ErrCodeTransportFailure, "anthropic returned empty content", time.Since(start))
	}

	return Success(a.id, decoded.Model, content, time.Since(start))
}
