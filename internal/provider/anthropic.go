package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicProvider generates completions through the official
// Anthropic SDK.
type AnthropicProvider struct {
	config Config
	client *anthropic.Client
	logger *zap.Logger
}

// NewAnthropicProvider creates an Anthropic-backed provider.
func NewAnthropicProvider(cfg Config, logger *zap.Logger) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		config: cfg,
		client: &client,
		logger: logger,
	}
}

func (p *AnthropicProvider) ID() string { return p.config.ID }

func (p *AnthropicProvider) Attached() bool { return true }

// Generate sends prompt as a single user message and concatenates the
// text blocks of the reply.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(p.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w: %v", ErrUnavailable, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	p.logger.Debug("anthropic completion",
		zap.String("model", p.config.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))

	return &Response{
		Content:  text.String(),
		Provider: "anthropic",
		Metadata: map[string]string{
			"model":         p.config.Model,
			"input_tokens":  strconv.FormatInt(resp.Usage.InputTokens, 10),
			"output_tokens": strconv.FormatInt(resp.Usage.OutputTokens, 10),
		},
	}, nil
}
