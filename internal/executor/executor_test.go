package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-ai/orchestrator/internal/critic"
	"github.com/solace-ai/orchestrator/internal/plan"
	"github.com/solace-ai/orchestrator/internal/tools"
	"github.com/solace-ai/orchestrator/internal/tools/toolerrors"
)

func handlerFunc(fn func(tools.Context, map[string]any) (tools.Result, error)) func() (tools.Handler, error) {
	return func() (tools.Handler, error) {
		return tools.HandlerFunc(fn), nil
	}
}

func registerOK(r *tools.Registry, name string, payload map[string]any) {
	r.Register(tools.Spec{
		Name:       tools.Ident(name),
		NewHandler: handlerFunc(func(_ tools.Context, _ map[string]any) (tools.Result, error) { return tools.Result{Payload: payload}, nil }),
	})
}

type stubCritic struct {
	guidance critic.Guidance
	err      error
}

func (s stubCritic) Diagnose(_ context.Context, _ critic.Input) (critic.Guidance, error) {
	return s.guidance, s.err
}

func replyStep(id int, deps ...int) plan.Step {
	return plan.Step{
		ID:           id,
		Action:       plan.ReplyToUserAction,
		Dependencies: deps,
		Parameters:   map[string]any{"message": "done"},
	}
}

func TestRunExecutesStepsInDependencyOrder(t *testing.T) {
	t.Parallel()
	reg := tools.New()
	registerOK(reg, "find_duplicates", map[string]any{"count": 2})
	reg.Register(tools.Spec{
		Name: plan.ReplyToUserAction,
		NewHandler: handlerFunc(func(_ tools.Context, params map[string]any) (tools.Result, error) {
			return tools.Result{Payload: params}, nil
		}),
	})

	p := plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "find_duplicates"},
		{ID: 2, Action: plan.ReplyToUserAction, Dependencies: []int{1}, Parameters: map[string]any{"message": "ok"}},
	}}

	e := New(reg, nil, Options{})
	run := e.Run(context.Background(), p, RunContext{SessionID: "s1", InteractionID: "i1"})

	require.Equal(t, OutcomeCompleted, run.Outcome)
	assert.Equal(t, plan.StepStatusSuccess, run.StepResults[1].Status)
	assert.Equal(t, plan.StepStatusSuccess, run.StepResults[2].Status)
}

func TestRunRetriesRetryableErrorUpToPerStepBound(t *testing.T) {
	t.Parallel()
	var attempts int32
	reg := tools.New()
	reg.Register(tools.Spec{
		Name: "flaky",
		NewHandler: handlerFunc(func(_ tools.Context, _ map[string]any) (tools.Result, error) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return tools.Result{}, toolerrors.Classify(toolerrors.KindTimeout, "timed out", true)
			}
			return tools.Result{Payload: map[string]any{"ok": true}}, nil
		}),
	})
	reg.Register(tools.Spec{
		Name:       plan.ReplyToUserAction,
		NewHandler: handlerFunc(func(_ tools.Context, p map[string]any) (tools.Result, error) { return tools.Result{Payload: p}, nil }),
	})

	p := plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "flaky"},
		replyStep(2, 1),
	}}

	e := New(reg, nil, Options{PerStepRetries: 2})
	run := e.Run(context.Background(), p, RunContext{})

	require.Equal(t, OutcomeCompleted, run.Outcome)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, plan.StepStatusSuccess, run.StepResults[1].Status)
}

func TestRunDoesNotRetryNonRetryableError(t *testing.T) {
	t.Parallel()
	var attempts int32
	reg := tools.New()
	reg.Register(tools.Spec{
		Name: "sandbox_violation",
		NewHandler: handlerFunc(func(_ tools.Context, _ map[string]any) (tools.Result, error) {
			atomic.AddInt32(&attempts, 1)
			return tools.Result{}, toolerrors.Classify(toolerrors.KindOutOfSandbox, "outside sandbox", false)
		}),
	})
	reg.Register(tools.Spec{
		Name:       plan.ReplyToUserAction,
		NewHandler: handlerFunc(func(_ tools.Context, p map[string]any) (tools.Result, error) { return tools.Result{Payload: p}, nil }),
	})

	p := plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "sandbox_violation"},
		replyStep(2, 1),
	}}

	e := New(reg, nil, Options{PerStepRetries: 5})
	run := e.Run(context.Background(), p, RunContext{})

	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Equal(t, OutcomeNeedsReplan, run.Outcome)
	assert.Equal(t, 1, run.FailedStepID)
}

func TestRunEscalatesToReplanWhenCriticDeclinesRetry(t *testing.T) {
	t.Parallel()
	reg := tools.New()
	reg.Register(tools.Spec{
		Name: "google_search",
		NewHandler: handlerFunc(func(_ tools.Context, _ map[string]any) (tools.Result, error) {
			return tools.Result{}, toolerrors.Classify(toolerrors.KindTimeout, "timed out", true)
		}),
	})
	reg.Register(tools.Spec{
		Name:       plan.ReplyToUserAction,
		NewHandler: handlerFunc(func(_ tools.Context, p map[string]any) (tools.Result, error) { return tools.Result{Payload: p}, nil }),
	})

	p := plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "google_search"},
		replyStep(2, 1),
	}}

	c := stubCritic{guidance: critic.Guidance{ShouldRetry: false, Rationale: "tool keeps failing"}}
	e := New(reg, c, Options{PerStepRetries: 0})
	run := e.Run(context.Background(), p, RunContext{})

	assert.Equal(t, OutcomeNeedsReplan, run.Outcome)
	assert.Equal(t, 1, run.FailedStepID)
	assert.Equal(t, "tool keeps failing", run.Guidance.Rationale)
}

func TestRunAppliesCriticSuggestedParameterAdjustmentsAsSingleRetry(t *testing.T) {
	t.Parallel()
	var seenTimeout []any
	reg := tools.New()
	reg.Register(tools.Spec{
		Name: "google_search",
		NewHandler: handlerFunc(func(_ tools.Context, params map[string]any) (tools.Result, error) {
			seenTimeout = append(seenTimeout, params["timeout_ms"])
			if len(seenTimeout) == 1 {
				return tools.Result{}, toolerrors.Classify(toolerrors.KindTimeout, "timed out", true)
			}
			return tools.Result{Payload: map[string]any{"results": []any{"a"}}}, nil
		}),
	})
	reg.Register(tools.Spec{
		Name:       plan.ReplyToUserAction,
		NewHandler: handlerFunc(func(_ tools.Context, p map[string]any) (tools.Result, error) { return tools.Result{Payload: p}, nil }),
	})

	p := plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "google_search", Parameters: map[string]any{"query": "cats", "timeout_ms": 1000}},
		replyStep(2, 1),
	}}

	c := stubCritic{guidance: critic.Guidance{
		ShouldRetry:                   true,
		SuggestedParameterAdjustments: map[string]any{"timeout_ms": 5000},
		Rationale:                     "previous call timed out",
	}}
	e := New(reg, c, Options{PerStepRetries: 0})
	run := e.Run(context.Background(), p, RunContext{})

	require.Equal(t, OutcomeCompleted, run.Outcome)
	require.Len(t, seenTimeout, 2)
	assert.EqualValues(t, 1000, seenTimeout[0])
	assert.EqualValues(t, 5000, seenTimeout[1])
	assert.Equal(t, plan.StepStatusSuccess, run.StepResults[1].Status)
}

func TestRunCancelledMidwayMarksRemainingStepsSkipped(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	reg := tools.New()
	reg.Register(tools.Spec{
		Name: "slow",
		NewHandler: handlerFunc(func(_ tools.Context, _ map[string]any) (tools.Result, error) {
			cancel()
			return tools.Result{Payload: map[string]any{}}, nil
		}),
	})
	reg.Register(tools.Spec{
		Name:       plan.ReplyToUserAction,
		NewHandler: handlerFunc(func(_ tools.Context, p map[string]any) (tools.Result, error) { return tools.Result{Payload: p}, nil }),
	})

	p := plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "slow"},
		replyStep(2, 1),
	}}

	e := New(reg, nil, Options{})
	run := e.Run(ctx, p, RunContext{})

	assert.Equal(t, OutcomeCancelled, run.Outcome)
	assert.Equal(t, plan.StepStatusSkipped, run.StepResults[2].Status)
}

func TestRunExecutesConcurrencySafeStepsTogether(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var order []int
	reg := tools.New()
	mkHandler := func(id int) func() (tools.Handler, error) {
		return handlerFunc(func(_ tools.Context, _ map[string]any) (tools.Result, error) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return tools.Result{Payload: map[string]any{"id": id}}, nil
		})
	}
	reg.Register(tools.Spec{Name: "a", ConcurrencySafe: true, NewHandler: mkHandler(1)})
	reg.Register(tools.Spec{Name: "b", ConcurrencySafe: true, NewHandler: mkHandler(2)})
	reg.Register(tools.Spec{
		Name:       plan.ReplyToUserAction,
		NewHandler: handlerFunc(func(_ tools.Context, p map[string]any) (tools.Result, error) { return tools.Result{Payload: p}, nil }),
	})

	p := plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "a"},
		{ID: 2, Action: "b"},
		replyStep(3, 1, 2),
	}}

	e := New(reg, nil, Options{})
	run := e.Run(context.Background(), p, RunContext{})

	require.Equal(t, OutcomeCompleted, run.Outcome)
	assert.Len(t, order, 2)
	assert.Equal(t, plan.StepStatusSuccess, run.StepResults[1].Status)
	assert.Equal(t, plan.StepStatusSuccess, run.StepResults[2].Status)
}

func TestRunSeedsFromPreviousResults(t *testing.T) {
	t.Parallel()
	reg := tools.New()
	reg.Register(tools.Spec{
		Name:       plan.ReplyToUserAction,
		NewHandler: handlerFunc(func(_ tools.Context, p map[string]any) (tools.Result, error) { return tools.Result{Payload: p}, nil }),
	})

	p := plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "find_duplicates"},
		replyStep(2, 1),
	}}

	seed := map[int]plan.StepResult{
		1: {StepID: 1, Status: plan.StepStatusSuccess, Payload: map[string]any{"count": 4}},
	}
	e := New(reg, nil, Options{})
	run := e.Run(context.Background(), p, RunContext{Seed: seed})

	require.Equal(t, OutcomeCompleted, run.Outcome)
	assert.Equal(t, plan.StepStatusSuccess, run.StepResults[2].Status)
}
