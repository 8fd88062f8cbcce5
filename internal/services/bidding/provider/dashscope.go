package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultDashScopeURL is the Qwen text generation endpoint.
const DefaultDashScopeURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

// DashScopeConfig configures the Qwen client.
type DashScopeConfig struct {
	URL        string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// DashScopeClient speaks the DashScope generation format, which wraps
// messages in input and tuning knobs in parameters.
type DashScopeClient struct {
	cfg DashScopeConfig
}

// NewDashScopeClient builds a DashScope client.
func NewDashScopeClient(cfg DashScopeConfig) (*DashScopeClient, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultDashScopeURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model is required")
	}
	return &DashScopeClient{cfg: cfg}, nil
}

type dashScopeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type dashScopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []dashScopeMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Temperature float64 `json:"temperature,omitempty"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
	} `json:"parameters"`
}

type dashScopeResponse struct {
	Output struct {
		Text    string `json:"text"`
		Choices []struct {
			Message dashScopeMessage `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		TotalTokens  int `json:"total_tokens"`
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements Client.
func (c *DashScopeClient) Complete(ctx context.Context, req Request) (Completion, error) {
	var body dashScopeRequest
	body.Model = strings.TrimSpace(c.cfg.Model)
	body.Input.Messages = []dashScopeMessage{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: req.UserPrompt},
	}
	body.Parameters.Temperature = req.Temperature
	body.Parameters.MaxTokens = req.MaxTokens

	requestBody, err := json.Marshal(body)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal dashscope request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(requestBody))
	if err != nil {
		return Completion{}, fmt.Errorf("build dashscope request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.APIKey))

	res, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("dashscope request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		if err != nil {
			return Completion{}, fmt.Errorf("read dashscope error body: %w", err)
		}
		return Completion{}, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var payload dashScopeResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Completion{}, fmt.Errorf("%w: decode dashscope response: %v", ErrInvalidResponse, err)
	}
	text := strings.TrimSpace(payload.Output.Text)
	if text == "" && len(payload.Output.Choices) > 0 {
		text = strings.TrimSpace(payload.Output.Choices[0].Message.Content)
	}
	tokens := payload.Usage.TotalTokens
	if tokens == 0 {
		tokens = payload.Usage.InputTokens + payload.Usage.OutputTokens
	}
	return Completion{Content: text, Tokens: tokens, Model: body.Model}, nil
}
