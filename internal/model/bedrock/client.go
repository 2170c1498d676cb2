// Package bedrock adapts the AWS Bedrock Converse API to internal/model.Client:
// split system vs. conversational messages, build a ConverseInput, translate
// the ConverseOutput's text content blocks back into a model.Response. Tool
// configuration and streaming are out of scope here (see internal/model's
// package doc).
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/solace-ai/orchestrator/internal/model"
)

// RuntimeClient is the subset of *bedrockruntime.Client used by the adapter.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the adapter's model selection and generation defaults.
type Options struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float32
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTokens    int
	temperature  float32
}

// New constructs a client from an existing Bedrock runtime client.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// Complete issues a single Converse call and returns the concatenated text
// content of the response message.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}

	var system []brtypes.SystemContentBlock
	conversation := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Text})
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == model.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Text}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.resolveModelID(req)),
		Messages: conversation,
	}
	if len(system) > 0 {
		input.System = system
	}
	if cfg := c.inferenceConfig(req); cfg != nil {
		input.InferenceConfig = cfg
	}

	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return translateResponse(output)
}

// isRateLimited reports whether err represents a Bedrock throttling
// condition: either a well-known throttling error code or a raw HTTP 429
// response.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}

func (c *Client) inferenceConfig(req *model.Request) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	set := false
	if maxTokens := effectiveMaxTokens(req.MaxTokens, c.maxTokens); maxTokens > 0 {
		v := int32(maxTokens)
		cfg.MaxTokens = &v
		set = true
	}
	if t := effectiveTemperature(float32(req.Temperature), c.temperature); t > 0 {
		cfg.Temperature = &t
		set = true
	}
	if !set {
		return nil
	}
	return cfg
}

func effectiveMaxTokens(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}

func effectiveTemperature(requested, fallback float32) float32 {
	if requested > 0 {
		return requested
	}
	return fallback
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

func translateResponse(output *bedrockruntime.ConverseOutput) (*model.Response, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	resp := &model.Response{}
	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return resp, nil
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			resp.Text += tb.Value
		}
	}
	if u := output.Usage; u != nil {
		if u.InputTokens != nil {
			resp.Usage.InputTokens = int(*u.InputTokens)
		}
		if u.OutputTokens != nil {
			resp.Usage.OutputTokens = int(*u.OutputTokens)
		}
	}
	return resp, nil
}
