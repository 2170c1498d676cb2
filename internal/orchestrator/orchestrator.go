// Package orchestrator drives the control loop: Planner → Plan Validator
// (repair loop, bounded) → Executor → Critic (replan loop, bounded) →
// Finalizer, recording every transition into a session's Session Memory /
// Reasoning Trace.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/solace-ai/orchestrator/internal/config"
	"github.com/solace-ai/orchestrator/internal/executor"
	"github.com/solace-ai/orchestrator/internal/finalizer"
	"github.com/solace-ai/orchestrator/internal/memory"
	"github.com/solace-ai/orchestrator/internal/plan"
	"github.com/solace-ai/orchestrator/internal/planner"
	"github.com/solace-ai/orchestrator/internal/tools"
	"github.com/solace-ai/orchestrator/internal/validator"
)

// Orchestrator wires one Planner, one Executor (and the Critic/Registry it
// owns), and the delivery/round-limit configuration into the single
// entry point Session/Task Manager calls per submitted request.
type Orchestrator struct {
	planner  planner.Planner
	executor *executor.Executor
	registry *tools.Registry
	cfg      *config.Config
}

// New constructs an Orchestrator.
func New(p planner.Planner, e *executor.Executor, registry *tools.Registry, cfg *config.Config) *Orchestrator {
	return &Orchestrator{planner: p, executor: e, registry: registry, cfg: cfg}
}

// StepUpdate describes one completed step of an interaction. Run does not
// emit StepUpdate values and takes no observer: it returns only the final
// Reply, so no per-step progress reaches a transport.
type StepUpdate struct {
	InteractionID string
	Result        plan.StepResult
}

// Run executes one user request end to end within sess, returning the final
// Reply. sessionID is threaded into every tool.Context for telemetry
// correlation; ctx is cancelled by the Session/Task Manager's cancel signal.
func (o *Orchestrator) Run(ctx context.Context, sess *memory.SessionMemory, sessionID, userRequest string) plan.Reply {
	interactionID := sess.AddInteraction(userRequest)
	sess.StartReasoningTrace(interactionID)

	intent := plan.DetectDeliveryIntent(userRequest, o.cfg.Delivery.IntentVerbs, o.cfg.Delivery.RequiredTool)

	p, err := o.planAndValidate(ctx, sess, interactionID, userRequest, intent)
	if err != nil {
		reply := plan.Reply{Message: err.Error(), Status: plan.InteractionStatusError}
		sess.UpdateInteraction(interactionID, func(it *plan.Interaction) { it.Reply = &reply })
		return reply
	}

	sess.UpdateInteraction(interactionID, func(it *plan.Interaction) { it.Plan = p })

	reply := o.executeWithReplan(ctx, sess, sessionID, interactionID, *p, intent)
	sess.UpdateInteraction(interactionID, func(it *plan.Interaction) { it.Reply = &reply })
	return reply
}

// planAndValidate runs the first-round Planner call, then the repair loop:
// up to config's max_repair_rounds re-prompts of the Planner with the Plan
// Validator's accumulated violations, before giving up.
func (o *Orchestrator) planAndValidate(ctx context.Context, sess *memory.SessionMemory, interactionID, userRequest string, intent plan.DeliveryIntent) (*plan.Plan, error) {
	caps := o.registry.Capabilities()
	in := planner.Input{
		UserRequest:      userRequest,
		PlanningContext:  sess.PlanningContext(),
		Capabilities:     caps,
		DeliveryIntent:   intent,
		ReasoningSummary: summarize(sess),
	}

	entryID := sess.AddReasoningEntry(interactionID, memory.StagePlanning, "generating initial plan")
	p, err := o.planner.GeneratePlan(ctx, in)
	if err != nil {
		sess.UpdateReasoningEntry(entryID, func(e *memory.ReasoningEntry) { e.Outcome = memory.OutcomeFailed; e.Error = err.Error() })
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	sess.UpdateReasoningEntry(entryID, func(e *memory.ReasoningEntry) { e.Outcome = memory.OutcomeSuccess })

	requireDelivery := o.cfg.Delivery.Validation.RejectMissingTool
	violations := validator.Validate(*p, o.registry, intent, requireDelivery)

	for round := 0; len(violations) > 0 && round < o.cfg.Planning.MaxRepairRounds; round++ {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		repairEntry := sess.AddReasoningEntry(interactionID, memory.StageCorrection, strings.Join(msgs, "; "))
		repaired, err := o.planner.RepairPlan(ctx, planner.RepairInput{Input: in, PriorPlan: p, Violations: msgs})
		if err != nil {
			sess.UpdateReasoningEntry(repairEntry, func(e *memory.ReasoningEntry) { e.Outcome = memory.OutcomeFailed; e.Error = err.Error() })
			return nil, fmt.Errorf("repair plan: %w", err)
		}
		p = repaired
		violations = validator.Validate(*p, o.registry, intent, requireDelivery)
		if len(violations) == 0 {
			sess.UpdateReasoningEntry(repairEntry, func(e *memory.ReasoningEntry) { e.Outcome = memory.OutcomeSuccess })
		} else {
			sess.UpdateReasoningEntry(repairEntry, func(e *memory.ReasoningEntry) { e.Outcome = memory.OutcomePartial })
		}
	}

	if len(violations) > 0 {
		return nil, fmt.Errorf("plan still invalid after %d repair rounds: %s", o.cfg.Planning.MaxRepairRounds, violations[0].String())
	}
	return p, nil
}

// executeWithReplan runs the Executor, and on OutcomeNeedsReplan asks the
// Planner for a fresh plan (seeded with whatever completed successfully) up
// to config's max_replan_rounds times.
func (o *Orchestrator) executeWithReplan(ctx context.Context, sess *memory.SessionMemory, sessionID, interactionID string, p plan.Plan, intent plan.DeliveryIntent) plan.Reply {
	rc := executor.RunContext{SessionID: sessionID, InteractionID: interactionID}

	for round := 0; ; round++ {
		run := o.executor.Run(ctx, p, rc)
		for id, r := range run.StepResults {
			sess.SetStepResult(interactionID, id, r)
		}

		switch run.Outcome {
		case executor.OutcomeCancelled:
			return plan.Reply{Message: "Request cancelled.", Status: plan.InteractionStatusCancelled}
		case executor.OutcomeCompleted:
			term := p.TerminalSteps()
			if len(term) == 0 {
				return plan.Reply{Message: "Plan completed with no terminal reply step.", Status: plan.InteractionStatusError}
			}
			return finalizer.Finalize(term[0], run.StepResults)
		case executor.OutcomeNeedsReplan:
			if round >= o.cfg.Planning.MaxReplanRounds {
				return plan.Reply{
					Message: fmt.Sprintf("Could not complete the request after %d replan attempts: %s", o.cfg.Planning.MaxReplanRounds, run.Guidance.Rationale),
					Status:  plan.InteractionStatusError,
				}
			}

			replanEntry := sess.AddReasoningEntry(interactionID, memory.StageCorrection, "replanning after step "+fmt.Sprint(run.FailedStepID)+" failure")

			caps := o.registry.Capabilities()
			fresh, err := o.planner.ReplanAfterFailure(ctx, planner.ReplanInput{
				Input: planner.Input{
					UserRequest:      interactionUserRequest(sess, interactionID),
					PlanningContext:  sess.PlanningContext(),
					Capabilities:     caps,
					DeliveryIntent:   intent,
					ReasoningSummary: summarize(sess),
				},
				PriorPlan:           &p,
				CompletedResults:    run.StepResults,
				CriticGuidance:      run.Guidance.Rationale,
				FailedStepID:        run.FailedStepID,
				FailedStepErrorText: errText(run.StepResults[run.FailedStepID]),
			})
			if err != nil {
				sess.UpdateReasoningEntry(replanEntry, func(e *memory.ReasoningEntry) { e.Outcome = memory.OutcomeFailed; e.Error = err.Error() })
				return plan.Reply{Message: "Could not produce a replan: " + err.Error(), Status: plan.InteractionStatusError}
			}
			sess.UpdateReasoningEntry(replanEntry, func(e *memory.ReasoningEntry) { e.Outcome = memory.OutcomeSuccess })

			requireDelivery := o.cfg.Delivery.Validation.RejectMissingTool
			if violations := validator.Validate(*fresh, o.registry, intent, requireDelivery); len(violations) > 0 {
				return plan.Reply{Message: "Replanned plan is invalid: " + violations[0].String(), Status: plan.InteractionStatusError}
			}

			p = *fresh
			rc.Seed = successfulOnly(run.StepResults)
		}
	}
}

func successfulOnly(results map[int]plan.StepResult) map[int]plan.StepResult {
	out := make(map[int]plan.StepResult, len(results))
	for id, r := range results {
		if r.Status == plan.StepStatusSuccess {
			out[id] = r
		}
	}
	return out
}

func errText(r plan.StepResult) string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

func summarize(sess *memory.SessionMemory) string {
	entries := sess.GetReasoningSummary(5, false)
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s (%s)\n", e.Stage, e.Thought, e.Outcome)
	}
	return b.String()
}

func interactionUserRequest(sess *memory.SessionMemory, interactionID string) string {
	it, ok := sess.Snapshot(interactionID)
	if !ok {
		return ""
	}
	return it.UserRequest
}
