// Package model defines the provider-agnostic LLM client contract used by
// the Planner and Critic: role-tagged messages, a model-class indirection,
// and a single Complete call, narrowed to what this repo's text-in/text-out
// components need. Neither streaming nor native tool-calling is modeled here,
// since step execution goes through the Tool Registry rather than the
// model's own tool-use protocol.
package model

import (
	"context"
	"errors"
)

// ErrRateLimited indicates the provider rejected a request because it was
// throttling the caller. Adapters wrap their provider-specific throttling
// errors with this sentinel so callers (in particular the rate limiter in
// internal/model/ratelimit) can detect it with errors.Is regardless of which
// provider is configured.
var ErrRateLimited = errors.New("model: rate limited")

// ConversationRole tags a Message with its speaker.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// Class selects a model family when Request.Model is left empty, resolved by
// each provider adapter against its own configured identifiers.
type Class string

const (
	// ClassDefault is the provider's ordinary planning/replanning model.
	ClassDefault Class = "default"
	// ClassHighReasoning is used for harder planning rounds (e.g. after a
	// replan) where providers support a stronger, slower model.
	ClassHighReasoning Class = "high-reasoning"
	// ClassSmall is used for cheap, low-latency calls (e.g. the Critic).
	ClassSmall Class = "small"
)

// Message is one turn in the transcript sent to the model.
type Message struct {
	Role ConversationRole
	Text string
}

// Request is a single non-streaming completion request.
type Request struct {
	// Model, when set, names an exact provider model identifier and takes
	// precedence over Class.
	Model string
	Class Class

	Messages []Message

	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting for a completed request, when the provider
// supplies it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the result of a Complete call.
type Response struct {
	Text  string
	Usage Usage
}

// Client is the provider-agnostic contract implemented by internal/model's
// anthropic, openai, and bedrock adapters.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
