package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// OpenAIProvider generates completions through any OpenAI-compatible
// chat completions endpoint.
type OpenAIProvider struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg Config, logger *zap.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *OpenAIProvider) ID() string { return p.config.ID }

func (p *OpenAIProvider) Attached() bool { return true }

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends prompt as a single user message and returns the first
// choice.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (*Response, error) {
	body, err := json.Marshal(openAIRequest{
		Model:     p.config.Model,
		Messages:  []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens: p.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai generate: %w: API error %d: %s",
			ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("openai generate: %w: decode response: %v", ErrUnavailable, err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("openai generate: %w: empty response", ErrUnavailable)
	}

	p.logger.Debug("openai completion",
		zap.String("model", oaiResp.Model),
		zap.Int("prompt_tokens", oaiResp.Usage.PromptTokens),
		zap.Int("completion_tokens", oaiResp.Usage.CompletionTokens))

	return &Response{
		Content:  oaiResp.Choices[0].Message.Content,
		Provider: "openai",
		Metadata: map[string]string{
			"model":         oaiResp.Model,
			"input_tokens":  strconv.Itoa(oaiResp.Usage.PromptTokens),
			"output_tokens": strconv.Itoa(oaiResp.Usage.CompletionTokens),
		},
	}, nil
}
