// Package finalizer implements the Finalizer: given a completed (or
// partially completed) Executor Run, it builds the Reply shown to the user
// from the terminal reply_to_user step's resolved parameters. It never
// reaches into an LLM; every decision here is a pure function of the step
// results already on hand.
package finalizer

import (
	"github.com/solace-ai/orchestrator/internal/plan"
	"github.com/solace-ai/orchestrator/internal/replyformat"
)

// Finalize builds a Reply from p's terminal reply_to_user step and the
// results accumulated by the Executor. term must be the plan's single
// terminal step (plan.Plan.TerminalSteps()). The reply's message, details and
// artifacts are read from that step's StepResult.Payload in results, which
// holds its already-template-resolved parameters (the reply_to_user tool
// echoes its own parameters as its payload).
func Finalize(term plan.Step, results map[int]plan.StepResult) plan.Reply {
	terminalResult, ok := results[term.ID]
	if !ok || terminalResult.Status == plan.StepStatusError {
		return plan.Reply{
			Message: errorMessage(terminalResult),
			Status:  plan.InteractionStatusError,
		}
	}

	payload, _ := terminalResult.Payload.(map[string]any)

	message, _ := payload["message"].(string)
	reply := plan.Reply{
		Message:   message,
		Artifacts: artifactsOf(payload["artifacts"]),
		Status:    statusOf(results, term.ID),
	}

	if details, ok := payload["details"]; ok {
		reply.Details = renderDetails(details)
	}

	return reply
}

// renderDetails passes a string through unchanged and hands anything else
// (structured records, scalar lists) to the Reply Formatter.
func renderDetails(details any) any {
	if s, ok := details.(string); ok {
		return s
	}
	return replyformat.Render(details)
}

func artifactsOf(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// statusOf derives the Reply's status: success unless some non-terminal step
// ended in error (partial_success, since a reply was still produced despite
// it).
func statusOf(results map[int]plan.StepResult, terminalID int) plan.InteractionStatus {
	for id, r := range results {
		if id == terminalID {
			continue
		}
		if r.Status == plan.StepStatusError {
			return plan.InteractionStatusPartialSuccess
		}
	}
	return plan.InteractionStatusSuccess
}

func errorMessage(r plan.StepResult) string {
	if r.Error != nil && r.Error.Message != "" {
		return "Could not complete the request: " + r.Error.Message
	}
	return "Could not complete the request."
}
