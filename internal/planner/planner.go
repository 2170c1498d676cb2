// Package planner implements the LLM-driven Planner: it turns a user
// request, session context, and the Tool Registry's capability summary into
// a JSON Plan, and repairs a rejected or failed plan when asked. It is
// stateless and context-scoped, producing a single non-streaming JSON plan
// per call, since tool dispatch runs through the Executor rather than the
// model's native tool-use protocol.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solace-ai/orchestrator/internal/model"
	"github.com/solace-ai/orchestrator/internal/plan"
	"github.com/solace-ai/orchestrator/internal/tools"
)

// maxMalformedRetries bounds how many model calls the Planner makes for one
// plan, counting the first call and every re-prompt after JSON it cannot
// parse into a Plan.
const maxMalformedRetries = 3

// Input carries everything the Planner needs to produce a first-round plan.
type Input struct {
	UserRequest      string
	PlanningContext  map[string]any
	Capabilities     []tools.Capability
	DeliveryIntent   plan.DeliveryIntent
	ReasoningSummary string
}

// RepairInput extends Input with the prior plan and the Plan Validator's
// violations, requesting a repaired plan.
type RepairInput struct {
	Input
	PriorPlan  *plan.Plan
	Violations []string
}

// ReplanInput extends Input with completed step results and Critic guidance,
// requesting a fresh plan that picks up after a terminal step failure.
type ReplanInput struct {
	Input
	PriorPlan           *plan.Plan
	CompletedResults    map[int]plan.StepResult
	CriticGuidance      string
	FailedStepID        int
	FailedStepErrorText string
}

// Planner is the contract the Orchestrator drives.
type Planner interface {
	GeneratePlan(ctx context.Context, in Input) (*plan.Plan, error)
	RepairPlan(ctx context.Context, in RepairInput) (*plan.Plan, error)
	ReplanAfterFailure(ctx context.Context, in ReplanInput) (*plan.Plan, error)
}

// PromptBuilder renders the sections injected into the planning prompt. It is
// satisfied by internal/promptstore.Store.
type PromptBuilder interface {
	Section(name string) (string, bool)
}

// LLMPlanner is the default Planner, backed by a model.Client.
type LLMPlanner struct {
	client      model.Client
	prompts     PromptBuilder
	temperature float64
	modelClass  model.Class
}

// Options configures an LLMPlanner.
type Options struct {
	Temperature float64
	ModelClass  model.Class
}

// New constructs an LLMPlanner.
func New(client model.Client, prompts PromptBuilder, opts Options) *LLMPlanner {
	class := opts.ModelClass
	if class == "" {
		class = model.ClassDefault
	}
	return &LLMPlanner{client: client, prompts: prompts, temperature: opts.Temperature, modelClass: class}
}

// GeneratePlan implements Planner.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, in Input) (*plan.Plan, error) {
	system := p.systemPrompt(in.Capabilities)
	user := p.firstRoundPrompt(in)
	return p.completeToPlan(ctx, system, user)
}

// RepairPlan implements Planner.
func (p *LLMPlanner) RepairPlan(ctx context.Context, in RepairInput) (*plan.Plan, error) {
	system := p.systemPrompt(in.Capabilities)
	user := p.repairPrompt(in)
	return p.completeToPlan(ctx, system, user)
}

// ReplanAfterFailure implements Planner.
func (p *LLMPlanner) ReplanAfterFailure(ctx context.Context, in ReplanInput) (*plan.Plan, error) {
	system := p.systemPrompt(in.Capabilities)
	user := p.replanPrompt(in)
	return p.completeToPlan(ctx, system, user)
}

func (p *LLMPlanner) systemPrompt(caps []tools.Capability) string {
	var b strings.Builder
	if section, ok := p.prompts.Section("planner_system"); ok {
		b.WriteString(section)
		b.WriteString("\n\n")
	}
	b.WriteString("Available tools:\n")
	for _, c := range caps {
		fmt.Fprintf(&b, "- %s(%s): %s\n", c.Name, strings.Join(c.Parameters, ", "), c.Description)
	}
	b.WriteString("\nRespond with a single JSON object matching the Plan schema: ")
	b.WriteString(`{"goal": string, "complexity": "simple"|"medium"|"complex"|"impossible", "steps": [` +
		`{"id": int, "action": string, "parameters": object, "dependencies": [int], "reasoning": string, "expected_output": string}` +
		`]}. Exactly one step must have action "reply_to_user" and no step may depend on an id >= its own id.`)
	return b.String()
}

func (p *LLMPlanner) firstRoundPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n", in.UserRequest)
	p.writeCommonContext(&b, in)
	return b.String()
}

func (p *LLMPlanner) repairPrompt(in RepairInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n", in.UserRequest)
	b.WriteString("Your previous plan was rejected for the following reasons:\n")
	for _, v := range in.Violations {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	if in.PriorPlan != nil {
		if raw, err := json.Marshal(in.PriorPlan); err == nil {
			fmt.Fprintf(&b, "Previous plan:\n%s\n", raw)
		}
	}
	b.WriteString("Produce a corrected plan addressing every violation above.\n")
	p.writeCommonContext(&b, in.Input)
	return b.String()
}

func (p *LLMPlanner) replanPrompt(in ReplanInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n", in.UserRequest)
	fmt.Fprintf(&b, "Step %d failed: %s\n", in.FailedStepID, in.FailedStepErrorText)
	if in.CriticGuidance != "" {
		fmt.Fprintf(&b, "Critic guidance: %s\n", in.CriticGuidance)
	}
	if len(in.CompletedResults) > 0 {
		if raw, err := json.Marshal(in.CompletedResults); err == nil {
			fmt.Fprintf(&b, "Already-completed step results (reuse via templates, do not redo this work):\n%s\n", raw)
		}
	}
	b.WriteString("Produce a new plan that completes the user's request, incorporating the guidance above.\n")
	p.writeCommonContext(&b, in.Input)
	return b.String()
}

func (p *LLMPlanner) writeCommonContext(b *strings.Builder, in Input) {
	if in.DeliveryIntent.HasIntent {
		fmt.Fprintf(b, "Delivery intent detected (verbs: %s). The plan MUST include a %q step.\n",
			strings.Join(in.DeliveryIntent.DetectedVerbs, ", "), in.DeliveryIntent.RequiredTool)
	}
	if len(in.PlanningContext) > 0 {
		if raw, err := json.Marshal(in.PlanningContext); err == nil {
			fmt.Fprintf(b, "Planning context: %s\n", raw)
		}
	}
	if in.ReasoningSummary != "" {
		fmt.Fprintf(b, "Recent reasoning summary:\n%s\n", in.ReasoningSummary)
	}
}

func (p *LLMPlanner) completeToPlan(ctx context.Context, system, user string) (*plan.Plan, error) {
	var lastErr error
	for attempt := 0; attempt < maxMalformedRetries; attempt++ {
		messages := []model.Message{
			{Role: model.RoleSystem, Text: system},
			{Role: model.RoleUser, Text: user},
		}
		if lastErr != nil {
			messages = append(messages, model.Message{
				Role: model.RoleUser,
				Text: fmt.Sprintf("Your previous response could not be parsed as the required JSON: %v. Respond with valid JSON only, no surrounding prose.", lastErr),
			})
		}
		resp, err := p.client.Complete(ctx, &model.Request{
			Class:       p.modelClass,
			Messages:    messages,
			Temperature: p.temperature,
			MaxTokens:   4096,
		})
		if err != nil {
			return nil, fmt.Errorf("planner: model completion: %w", err)
		}
		parsed, err := parsePlan(resp.Text)
		if err != nil {
			lastErr = err
			continue
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("planner: model output did not parse as a valid plan after %d attempts: %w", maxMalformedRetries, lastErr)
}

// planJSON mirrors plan.Plan/plan.Step's wire shape, decoupled from the
// in-memory type so JSON tags stay local to the boundary.
type planJSON struct {
	Goal       string     `json:"goal"`
	Complexity string     `json:"complexity"`
	Steps      []stepJSON `json:"steps"`
}

type stepJSON struct {
	ID             int            `json:"id"`
	Action         string         `json:"action"`
	Parameters     map[string]any `json:"parameters"`
	Dependencies   []int          `json:"dependencies"`
	Reasoning      string         `json:"reasoning"`
	ExpectedOutput string         `json:"expected_output"`
}

func parsePlan(raw string) (*plan.Plan, error) {
	text := extractJSONObject(raw)
	var pj planJSON
	if err := json.Unmarshal([]byte(text), &pj); err != nil {
		return nil, fmt.Errorf("parse plan json: %w", err)
	}
	if pj.Goal == "" {
		return nil, fmt.Errorf("plan json missing required field %q", "goal")
	}
	if len(pj.Steps) == 0 {
		return nil, fmt.Errorf("plan json has no steps")
	}

	steps := make([]plan.Step, 0, len(pj.Steps))
	for _, s := range pj.Steps {
		if s.ID == 0 {
			return nil, fmt.Errorf("plan json: step has invalid or missing id")
		}
		if s.Action == "" {
			return nil, fmt.Errorf("plan json: step %d has no action", s.ID)
		}
		steps = append(steps, plan.Step{
			ID:             s.ID,
			Action:         s.Action,
			Parameters:     s.Parameters,
			Dependencies:   s.Dependencies,
			Reasoning:      s.Reasoning,
			ExpectedOutput: s.ExpectedOutput,
		})
	}

	return &plan.Plan{
		Goal:       pj.Goal,
		Complexity: plan.Complexity(pj.Complexity),
		Steps:      steps,
	}, nil
}

// extractJSONObject trims conversational wrapping (code fences, leading or
// trailing prose) that models sometimes emit around an otherwise valid JSON
// object, returning the substring from the first '{' to the last '}'.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}
