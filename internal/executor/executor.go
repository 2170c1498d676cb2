// Package executor implements the Executor: it walks a Plan in an order
// consistent with step dependencies, resolves each step's parameters
// against accumulated results via internal/template, invokes the tool
// through internal/tools, records StepResults, retries failed steps up to a
// configured bound, and on terminal failure defers to the Critic.
//
// Independent steps whose handlers are declared concurrency-safe run
// concurrently via golang.org/x/sync/errgroup; every other step runs
// serially, unless a step's handler is explicitly declared concurrency-safe.
package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solace-ai/orchestrator/internal/critic"
	"github.com/solace-ai/orchestrator/internal/plan"
	"github.com/solace-ai/orchestrator/internal/telemetry"
	"github.com/solace-ai/orchestrator/internal/template"
	"github.com/solace-ai/orchestrator/internal/tools"
	"github.com/solace-ai/orchestrator/internal/tools/toolerrors"
)

// Options configures retry and deadline behavior.
type Options struct {
	PerStepRetries    int
	DefaultDeadlineMs int
	// Logger records step-level retry and failure events. Defaults to a
	// no-op logger when unset.
	Logger telemetry.Logger
}

// Outcome classifies how a Run call ended.
type Outcome string

const (
	// OutcomeCompleted means every step ran to completion (including the
	// terminal reply_to_user step); the Finalizer may proceed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeCancelled means a cancel signal fired mid-run.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeNeedsReplan means a terminal step failure exhausted retries and
	// the Critic (or its absence) could not salvage it in place; the caller
	// should invoke the Planner's ReplanAfterFailure.
	OutcomeNeedsReplan Outcome = "needs_replan"
)

// Run is the result of executing (a prefix of) a Plan.
type Run struct {
	Outcome      Outcome
	StepResults  map[int]plan.StepResult
	FailedStepID int
	Guidance     critic.Guidance
}

// Executor walks plans and drives tool invocations.
type Executor struct {
	registry *tools.Registry
	critic   critic.Critic
	opts     Options
	logger   telemetry.Logger
}

// New constructs an Executor.
func New(registry *tools.Registry, c critic.Critic, opts Options) *Executor {
	if opts.PerStepRetries < 0 {
		opts.PerStepRetries = 0
	}
	if opts.DefaultDeadlineMs <= 0 {
		opts.DefaultDeadlineMs = 30_000
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Executor{registry: registry, critic: c, opts: opts, logger: logger}
}

// RunContext carries identifiers threaded into every tool.Context for this
// run, plus any already-completed step results to seed replays after a
// replan reuses completed artifacts.
type RunContext struct {
	SessionID     string
	InteractionID string
	Seed          map[int]plan.StepResult
}

// Run executes p's steps in dependency order.
func (e *Executor) Run(ctx context.Context, p plan.Plan, rc RunContext) Run {
	results := make(map[int]plan.StepResult, len(p.Steps))
	for id, r := range rc.Seed {
		results[id] = r
	}

	remaining := make(map[int]plan.Step, len(p.Steps))
	for _, s := range p.Steps {
		if _, seeded := results[s.ID]; seeded {
			continue
		}
		remaining[s.ID] = s
	}

	for len(remaining) > 0 {
		select {
		case <-ctx.Done():
			markSkipped(results, remaining)
			return Run{Outcome: OutcomeCancelled, StepResults: results}
		default:
		}

		ready := readySteps(remaining, results)
		if len(ready) == 0 {
			// Every remaining step depends on something that never completed
			// (e.g. a prior step was skipped by cancellation elsewhere); treat
			// the rest as skipped rather than spinning.
			markSkipped(results, remaining)
			break
		}

		batch, serial := splitConcurrencySafe(ready, e.registry)

		if len(batch) > 0 {
			var mu sync.Mutex
			g, gctx := errgroup.WithContext(ctx)
			for _, s := range batch {
				s := s
				g.Go(func() error {
					result := e.runStep(gctx, s, results, rc, &mu)
					mu.Lock()
					results[s.ID] = result
					mu.Unlock()
					return nil
				})
			}
			_ = g.Wait() // per-step errors are recorded in results, not returned
			for _, s := range batch {
				delete(remaining, s.ID)
			}
		}

		for _, s := range serial {
			select {
			case <-ctx.Done():
				markSkipped(results, remaining)
				return Run{Outcome: OutcomeCancelled, StepResults: results}
			default:
			}
			result := e.runStep(ctx, s, results, rc, nil)
			results[s.ID] = result
			delete(remaining, s.ID)

			if result.Status == plan.StepStatusError && s.Action == plan.ReplyToUserAction {
				guidance, retried := e.handleTerminalFailure(ctx, s, results, rc)
				if retried != nil {
					results[s.ID] = *retried
					continue
				}
				return Run{Outcome: OutcomeNeedsReplan, StepResults: results, FailedStepID: s.ID, Guidance: guidance}
			}
			if result.Status == plan.StepStatusError && isTerminalFailure(s, p) {
				guidance, retried := e.handleTerminalFailure(ctx, s, results, rc)
				if retried != nil {
					results[s.ID] = *retried
					continue
				}
				return Run{Outcome: OutcomeNeedsReplan, StepResults: results, FailedStepID: s.ID, Guidance: guidance}
			}
		}
	}

	return Run{Outcome: OutcomeCompleted, StepResults: results}
}

// isTerminalFailure reports whether a non-reply_to_user step's failure
// leaves the plan with no way to reach its terminal step; a failed
// dependency of the only reply_to_user step is equivalent for this purpose
// since the Finalizer cannot proceed without it.
func isTerminalFailure(failed plan.Step, p plan.Plan) bool {
	for _, term := range p.TerminalSteps() {
		if term.DependsOn(failed.ID) {
			return true
		}
	}
	return false
}

func (e *Executor) handleTerminalFailure(ctx context.Context, s plan.Step, results map[int]plan.StepResult, rc RunContext) (critic.Guidance, *plan.StepResult) {
	failed := results[s.ID]
	e.logger.Error(ctx, "terminal step exhausted retries", "step_id", s.ID, "action", s.Action)
	if e.critic == nil || failed.Error == nil {
		return critic.Guidance{}, nil
	}

	resolvedParams, _ := template.Resolve(s.Parameters, stateFrom(results))
	resolvedMap, _ := resolvedParams.(map[string]any)

	guidance, err := e.critic.Diagnose(ctx, critic.Input{
		FailedStep:       s,
		ResolvedParams:   resolvedMap,
		Error:            *failed.Error,
		CompletedResults: results,
	})
	if err != nil || !guidance.ShouldRetry || guidance.AlternativeTool != "" {
		return guidance, nil
	}
	if len(guidance.SuggestedParameterAdjustments) == 0 {
		return guidance, nil
	}

	merged := make(map[string]any, len(s.Parameters)+len(guidance.SuggestedParameterAdjustments))
	for k, v := range s.Parameters {
		merged[k] = v
	}
	for k, v := range guidance.SuggestedParameterAdjustments {
		merged[k] = v
	}
	retryStep := s
	retryStep.Parameters = merged
	result := e.invokeOnce(ctx, retryStep, results, rc)
	return guidance, &result
}

// runStep resolves parameters, invokes the tool, and retries on error up to
// PerStepRetries times with the same resolved parameters. mu, when non-nil,
// guards reads of the shared results map from a concurrent batch so a step
// never observes a torn sibling result.
func (e *Executor) runStep(ctx context.Context, s plan.Step, results map[int]plan.StepResult, rc RunContext, mu *sync.Mutex) plan.StepResult {
	var last plan.StepResult
	attempts := e.opts.PerStepRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		snapshot := results
		if mu != nil {
			mu.Lock()
			snapshot = make(map[int]plan.StepResult, len(results))
			for id, r := range results {
				snapshot[id] = r
			}
			mu.Unlock()
		}
		result := e.invokeOnce(ctx, s, snapshot, rc)
		last = result
		if result.Status != plan.StepStatusError {
			return result
		}
		if result.Error != nil && !result.Error.RetryPossible {
			e.logger.Warn(ctx, "step failed, not retryable", "step_id", s.ID, "action", s.Action, "error_kind", result.Error.Kind)
			return result
		}
		if attempt < attempts-1 {
			e.logger.Warn(ctx, "step failed, retrying", "step_id", s.ID, "action", s.Action, "attempt", attempt+1)
		}
	}
	return last
}

func (e *Executor) invokeOnce(ctx context.Context, s plan.Step, results map[int]plan.StepResult, rc RunContext) plan.StepResult {
	started := time.Now().UTC()

	resolved, err := template.Resolve(s.Parameters, stateFrom(results))
	if err != nil {
		return errorResult(s.ID, started, toolerrors.Classify(toolerrors.KindInvalidArguments, err.Error(), false))
	}
	params, _ := resolved.(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	deadline := e.opts.DefaultDeadlineMs
	stepCtx, cancel := context.WithTimeout(ctx, time.Duration(deadline)*time.Millisecond)
	defer cancel()

	toolCtx := tools.Context{Context: stepCtx, SessionID: rc.SessionID, InteractionID: rc.InteractionID}
	res, err := e.registry.Execute(toolCtx, tools.Ident(s.Action), params)
	if err != nil {
		if stepCtx.Err() == context.Canceled {
			return plan.StepResult{StepID: s.ID, Status: plan.StepStatusSkipped, StartedAt: started, FinishedAt: time.Now().UTC()}
		}
		return errorResult(s.ID, started, toolerrors.FromError(err))
	}

	return plan.StepResult{
		StepID:     s.ID,
		Status:     plan.StepStatusSuccess,
		Payload:    res.Payload,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
}

func errorResult(stepID int, started time.Time, te *toolerrors.ToolError) plan.StepResult {
	return plan.StepResult{
		StepID: stepID,
		Status: plan.StepStatusError,
		Error: &plan.StepError{
			Kind:          string(te.Kind),
			Message:       te.Message,
			RetryPossible: te.RetryPossible,
		},
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
}

func stateFrom(results map[int]plan.StepResult) template.State {
	payloads := make(map[int]any, len(results))
	for id, r := range results {
		payloads[id] = r.Payload
	}
	return template.State{StepResults: payloads}
}

// readySteps returns the subset of remaining whose dependencies are all
// present (and non-error) in results.
func readySteps(remaining map[int]plan.Step, results map[int]plan.StepResult) []plan.Step {
	var ready []plan.Step
	for _, s := range remaining {
		ok := true
		for _, dep := range s.Dependencies {
			r, done := results[dep]
			if !done || r.Status == plan.StepStatusError {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// splitConcurrencySafe partitions ready steps into those whose tool is
// declared concurrency-safe (run together under an errgroup) and the rest
// (run one at a time, in the order the plan declares them).
func splitConcurrencySafe(ready []plan.Step, registry *tools.Registry) (concurrent, serial []plan.Step) {
	if len(ready) < 2 {
		return nil, ready
	}
	for _, s := range ready {
		spec, ok := registry.Spec(tools.Ident(s.Action))
		if ok && spec.ConcurrencySafe {
			concurrent = append(concurrent, s)
		} else {
			serial = append(serial, s)
		}
	}
	return concurrent, serial
}

func markSkipped(results map[int]plan.StepResult, remaining map[int]plan.Step) {
	now := time.Now().UTC()
	for id := range remaining {
		if _, ok := results[id]; ok {
			continue
		}
		results[id] = plan.StepResult{StepID: id, Status: plan.StepStatusSkipped, StartedAt: now, FinishedAt: now}
	}
}
