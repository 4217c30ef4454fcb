package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// maxResponseBytes bounds how much of a completion body is read
const maxResponseBytes = 1 << 20

// OpenAIConfig configures an OpenAI-compatible client
type OpenAIConfig struct {
	BaseURL string
	// APIKey may be empty for local endpoints such as Ollama
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the default client; its Timeout is filled from
	// Timeout when unset
	HTTPClient *http.Client
}

// OpenAI talks to a /chat/completions endpoint
type OpenAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Completer = (*OpenAI)(nil)

// NewOpenAI creates a client
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout == 0 {
		client.Timeout = cfg.Timeout
	}
	return &OpenAI{baseURL: baseURL, apiKey: cfg.APIKey, client: client}
}

// ChatCompletion sends req once and returns the first choice
func (c *OpenAI) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, &Error{Code: "invalid_request", Message: "model is required"}
	}

	body, err := json.Marshal(toWire(req))
	if err != nil {
		return nil, &Error{Code: "invalid_request", Message: "failed to encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: "invalid_request", Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Code: "transport", Message: "completion request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Code: "transport", Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, raw)
	}

	var out wireResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Code: "bad_response", Message: "failed to decode response", Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, &Error{StatusCode: resp.StatusCode, Code: "bad_response", Message: "response contained no choices"}
	}

	first := out.Choices[0]
	return &ChatResponse{
		ID:           out.ID,
		Model:        out.Model,
		Content:      first.Message.Content,
		FinishReason: first.FinishReason,
		Usage:        out.Usage,
		Latency:      time.Since(start),
	}, nil
}

func decodeError(status int, raw []byte) error {
	var body wireErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		code := body.Error.Type
		if code == "" {
			code = "api_error"
		}
		return &Error{StatusCode: status, Code: code, Message: body.Error.Message}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{StatusCode: status, Code: "api_error", Message: msg, Err: errors.New("unstructured error body")}
}

type wireRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

func toWire(req *ChatRequest) wireRequest {
	return wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type wireErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
