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
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o-mini"
)

// OpenAI is the cloud transport for the OpenAI chat completions API.
type OpenAI struct {
	id      string
	baseURL string
	client  *http.Client
}

// NewOpenAI creates the OpenAI transport. An empty baseURL selects the
// public API.
func NewOpenAI(baseURL string, timeout time.Duration) *OpenAI {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAI{
		id:      "openai",
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate implements Generator for the OpenAI provider.
func (o *OpenAI) Generate(ctx context.Context, req *Request) *Result {
	start := time.Now()

	if req.APIKey == "" {
		return Fail(o.id, errors.ErrCodeCredentialMissing, "no API key for openai", time.Since(start))
	}

	model := req.Model
	if model == "" {
		model = openAIDefaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Fail(o.id, errors.ErrCodeTransportFailure, fmt.Sprintf("marshal request: %v", err), time.Since(start))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Fail(o.id, errors.ErrCodeTransportFailure, fmt.Sprintf("create request: %v", err), time.Since(start))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return Fail(o.id, classify(err), fmt.Sprintf("send request: %v", err), time.Since(start))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Fail(o.id, classify(err), fmt.Sprintf("read response: %v", err), time.Since(start))
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp openAIResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return Fail(o.id, errors.ErrCodeTransportFailure, fmt.Sprintf("openai error: %s", errResp.Error.Message), time.Since(start))
		}
		return Fail(o.id, errors.ErrCodeTransportFailure, fmt.Sprintf("http error %d", httpResp.StatusCode), time.Since(start))
	}

	var decoded openAIResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Fail(o.id, errors.ErrCodeTransportFailure, fmt.Sprintf("unmarshal response: %v", err), time.Since(start))
	}

	if len(decoded.Choices) == 0 {
		return Fail(o.id, errors.ErrCodeTransportFailure, "openai response missing choices", time.Since(start))
	}
	content := decoded.Choices[0].Message.Content
	if content == "" {
		return Fail(o.id, errors.ErrCodeTransportFailure, "openai returned empty content", time.Since(start))
	}

	return Success(o.id, decoded.Model, content, time.Since(start))
}
