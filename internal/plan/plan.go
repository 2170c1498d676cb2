// Package plan defines the core data model shared by the Planner, Plan
// Validator, Executor, and Finalizer: Step, Plan, StepResult, Interaction,
// and DeliveryIntent.
package plan

import "time"

// Complexity classifies how involved a Plan's goal is. An "impossible" plan
// always carries exactly one reply_to_user step explaining why.
type Complexity string

const (
	ComplexitySimple     Complexity = "simple"
	ComplexityMedium     Complexity = "medium"
	ComplexityComplex    Complexity = "complex"
	ComplexityImpossible Complexity = "impossible"
)

// ReplyToUserAction is the reserved action name for a Plan's terminal step.
const ReplyToUserAction = "reply_to_user"

// Step is a single planned tool invocation.
type Step struct {
	// ID is a monotonic integer unique within the plan, starting at 1.
	ID int `json:"id"`
	// Action is the tool name; must exist in the Tool Registry.
	Action string `json:"action"`
	// Parameters maps parameter name to a JSON value, which may embed
	// template references resolved against prior step results.
	Parameters map[string]any `json:"parameters"`
	// Dependencies is the set of earlier step ids this step depends on.
	Dependencies []int `json:"dependencies"`
	// Reasoning is free text explaining why the planner chose this step.
	Reasoning string `json:"reasoning,omitempty"`
	// ExpectedOutput is free text describing what the step should produce.
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// DependsOn reports whether the step declares dependency id as a dependency.
func (s Step) DependsOn(id int) bool {
	for _, d := range s.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// Plan is an ordered, dependency-annotated list of Steps terminating in a
// reply_to_user step.
type Plan struct {
	Goal       string     `json:"goal"`
	Complexity Complexity `json:"complexity"`
	Steps      []Step     `json:"steps"`
}

// StepByID returns the step with the given id, if present.
func (p Plan) StepByID(id int) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// TerminalSteps returns every step whose action is reply_to_user.
func (p Plan) TerminalSteps() []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Action == ReplyToUserAction {
			out = append(out, s)
		}
	}
	return out
}

// StepStatus is the lifecycle status of a StepResult.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
	StepStatusSkipped StepStatus = "skipped"
)

// StepError is the structured error payload a failed StepResult carries.
type StepError struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	RetryPossible bool   `json:"retry_possible"`
}

// StepResult is produced by the Executor for each step.
type StepResult struct {
	StepID     int        `json:"step_id"`
	Status     StepStatus `json:"status"`
	Payload    any        `json:"payload,omitempty"`
	Error      *StepError `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// InteractionStatus is the final status of an Interaction's reply.
type InteractionStatus string

const (
	InteractionStatusSuccess        InteractionStatus = "success"
	InteractionStatusPartialSuccess InteractionStatus = "partial_success"
	InteractionStatusError          InteractionStatus = "error"
	InteractionStatusCancelled      InteractionStatus = "cancelled"
)

// Reply is the user-visible payload produced by the Finalizer.
type Reply struct {
	Message   string            `json:"message"`
	Details   any               `json:"details,omitempty"`
	Artifacts []string          `json:"artifacts,omitempty"`
	Status    InteractionStatus `json:"status"`
}

// Interaction is one user request handled end-to-end within a session.
type Interaction struct {
	ID          string                `json:"id"`
	UserRequest string                `json:"user_request"`
	Plan        *Plan                 `json:"plan,omitempty"`
	StepResults map[int]StepResult    `json:"step_results"`
	Reply       *Reply                `json:"reply,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// DeliveryIntent is a derived value computed once per request from the
// configured delivery verbs.
type DeliveryIntent struct {
	HasIntent     bool     `json:"has_intent"`
	DetectedVerbs []string `json:"detected_verbs"`
	RequiredTool  string   `json:"required_tool"`
}
