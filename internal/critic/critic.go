// Package critic implements the Critic/Verifier: given a failing step, its
// resolved parameters, the error payload, and the in-flight step results, it
// produces structured corrective guidance that seeds either a single-step
// retry with adjusted parameters or a full replan. It uses the same
// model.Client completion pattern as internal/planner, narrowed to a single
// structured-JSON verdict.
package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solace-ai/orchestrator/internal/model"
	"github.com/solace-ai/orchestrator/internal/plan"
)

// Guidance is the Critic's structured verdict.
type Guidance struct {
	ShouldRetry                bool           `json:"should_retry"`
	SuggestedParameterAdjustments map[string]any `json:"suggested_parameter_adjustments,omitempty"`
	AlternativeTool             string         `json:"alternative_tool,omitempty"`
	Rationale                   string         `json:"rationale"`
}

// Input is what the Executor hands the Critic on a terminal step failure.
type Input struct {
	FailedStep        plan.Step
	ResolvedParams    map[string]any
	Error             plan.StepError
	CompletedResults  map[int]plan.StepResult
}

// Critic is the contract the Executor drives after a step exhausts its
// per-step retries.
type Critic interface {
	Diagnose(ctx context.Context, in Input) (Guidance, error)
}

// LLMCritic is the default Critic, backed by a model.Client.
type LLMCritic struct {
	client      model.Client
	temperature float64
}

// New constructs an LLMCritic.
func New(client model.Client, temperature float64) *LLMCritic {
	return &LLMCritic{client: client, temperature: temperature}
}

const systemPrompt = `You are the Critic in a tool-execution pipeline. A step failed. Decide whether a single retry with adjusted parameters is likely to succeed, whether a different tool should be tried, or whether the whole plan needs to be redone.
Respond with a single JSON object: {"should_retry": bool, "suggested_parameter_adjustments": object|null, "alternative_tool": string|null, "rationale": string}.
Only set suggested_parameter_adjustments when should_retry is true and you are confident the same tool will succeed with adjusted inputs.`

// Diagnose implements Critic.
func (c *LLMCritic) Diagnose(ctx context.Context, in Input) (Guidance, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed step: id=%d action=%s\n", in.FailedStep.ID, in.FailedStep.Action)
	if raw, err := json.Marshal(in.ResolvedParams); err == nil {
		fmt.Fprintf(&b, "Resolved parameters: %s\n", raw)
	}
	fmt.Fprintf(&b, "Error: kind=%s message=%s retry_possible=%t\n", in.Error.Kind, in.Error.Message, in.Error.RetryPossible)
	if len(in.CompletedResults) > 0 {
		if raw, err := json.Marshal(in.CompletedResults); err == nil {
			fmt.Fprintf(&b, "Completed step results so far: %s\n", raw)
		}
	}

	resp, err := c.client.Complete(ctx, &model.Request{
		Class: model.ClassSmall,
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: systemPrompt},
			{Role: model.RoleUser, Text: b.String()},
		},
		Temperature: c.temperature,
		MaxTokens:   1024,
	})
	if err != nil {
		return Guidance{}, fmt.Errorf("critic: model completion: %w", err)
	}

	var g Guidance
	text := extractJSONObject(resp.Text)
	if err := json.Unmarshal([]byte(text), &g); err != nil {
		// A critic that cannot be parsed is treated as "no useful guidance":
		// the Executor escalates straight to a full replan rather than
		// retrying blindly on malformed critic output.
		return Guidance{ShouldRetry: false, Rationale: "critic response could not be parsed"}, nil
	}
	return g, nil
}

func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}
