// Package openai adapts github.com/openai/openai-go to internal/model.Client,
// grounded on relay/common/llm's newOpenAIClient/ChatWithTools pattern from
// the example pack (basegraph's LLM abstraction), narrowed to the
// single-turn, tool-free completion shape internal/model.Client needs.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/solace-ai/orchestrator/internal/model"
)

// Options configures the adapter's model selection and generation defaults.
type Options struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	BaseURL      string
	MaxTokens    int
	Temperature  float64
}

// Client implements model.Client on top of the OpenAI Chat Completions API.
type Client struct {
	client       openai.Client
	defaultModel string
	highModel    string
	smallModel   string
	maxTokens    int
	temperature  float64
}

// New constructs a client from an API key and Options.
func New(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model identifier is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Client{
		client:       openai.NewClient(reqOpts...),
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// Complete issues a single Chat Completions call and returns the first
// choice's message content.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Text))
		case model.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Text))
		default:
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.resolveModelID(req),
		Messages: messages,
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = openai.Float(t)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}

	return &model.Response{
		Text: resp.Choices[0].Message.Content,
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// isRateLimited reports whether err represents an OpenAI API throttling
// response (HTTP 429).
func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

func (c *Client) resolveModelID(req *model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.Class {
	case model.ClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case model.ClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func (c *Client) effectiveTemperature(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	return c.temperature
}
