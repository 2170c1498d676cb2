package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-ai/orchestrator/internal/config"
	"github.com/solace-ai/orchestrator/internal/executor"
	"github.com/solace-ai/orchestrator/internal/orchestrator"
	"github.com/solace-ai/orchestrator/internal/plan"
	"github.com/solace-ai/orchestrator/internal/planner"
	"github.com/solace-ai/orchestrator/internal/tools"
)

type blockingPlanner struct {
	release chan struct{}
}

func (p *blockingPlanner) GeneratePlan(ctx context.Context, in planner.Input) (*plan.Plan, error) {
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: plan.ReplyToUserAction, Parameters: map[string]any{"message": "ok"}},
	}}, nil
}

func (p *blockingPlanner) RepairPlan(context.Context, planner.RepairInput) (*plan.Plan, error) {
	return nil, nil
}

func (p *blockingPlanner) ReplanAfterFailure(context.Context, planner.ReplanInput) (*plan.Plan, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T, p planner.Planner) *orchestrator.Orchestrator {
	t.Helper()
	reg := tools.New()
	reg.Register(tools.Spec{
		Name: plan.ReplyToUserAction,
		NewHandler: func() (tools.Handler, error) {
			return tools.HandlerFunc(func(_ tools.Context, params map[string]any) (tools.Result, error) {
				return tools.Result{Payload: params}, nil
			}), nil
		},
	})
	exec := executor.New(reg, nil, executor.Options{})
	cfg := &config.Config{Planning: config.PlanningConfig{MaxRepairRounds: 1, MaxReplanRounds: 1}}
	return orchestrator.New(p, exec, reg, cfg)
}

func TestSubmitRejectsWhenInFlight(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	orch := newTestOrchestrator(t, &blockingPlanner{release: release})
	m := New(orch, nil, nil, false)

	complete := make(chan struct{}, 1)
	err := m.Submit(context.Background(), "sess-1", "hello", func(tc TaskComplete) {
		complete <- struct{}{}
	})
	require.NoError(t, err)

	err = m.Submit(context.Background(), "sess-1", "hello again", func(TaskComplete) {})
	assert.ErrorIs(t, err, ErrTaskInFlight)

	close(release)
	select {
	case <-complete:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}
}

func TestSubmitRequiresSessionID(t *testing.T) {
	t.Parallel()
	orch := newTestOrchestrator(t, &blockingPlanner{release: make(chan struct{})})
	m := New(orch, nil, nil, false)

	err := m.Submit(context.Background(), "  ", "hello", nil)
	assert.ErrorIs(t, err, ErrMissingSessionID)
}

func TestSubmitAllowsSecondTaskAfterFirstCompletes(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	close(release)
	orch := newTestOrchestrator(t, &blockingPlanner{release: release})
	m := New(orch, nil, nil, false)

	complete := make(chan TaskComplete, 2)
	require.NoError(t, m.Submit(context.Background(), "sess-1", "first", func(tc TaskComplete) { complete <- tc }))
	<-complete

	require.NoError(t, m.Submit(context.Background(), "sess-1", "second", func(tc TaskComplete) { complete <- tc }))
	<-complete
}

func TestCancelSignalsInFlightTask(t *testing.T) {
	t.Parallel()
	reg := tools.New()
	reached := make(chan struct{})
	reg.Register(tools.Spec{
		Name: "block",
		NewHandler: func() (tools.Handler, error) {
			return tools.HandlerFunc(func(ctx tools.Context, _ map[string]any) (tools.Result, error) {
				close(reached)
				<-ctx.Done()
				return tools.Result{}, ctx.Err()
			}), nil
		},
	})
	reg.Register(tools.Spec{
		Name: plan.ReplyToUserAction,
		NewHandler: func() (tools.Handler, error) {
			return tools.HandlerFunc(func(_ tools.Context, params map[string]any) (tools.Result, error) {
				return tools.Result{Payload: params}, nil
			}), nil
		},
	})
	blockingPlan := &plan.Plan{Steps: []plan.Step{
		{ID: 1, Action: "block"},
		{ID: 2, Action: plan.ReplyToUserAction, Dependencies: []int{1}, Parameters: map[string]any{"message": "done"}},
	}}
	fp := &instantPlanner{plan: blockingPlan}
	exec := executor.New(reg, nil, executor.Options{})
	cfg := &config.Config{Planning: config.PlanningConfig{MaxRepairRounds: 1, MaxReplanRounds: 1}}
	orch := orchestrator.New(fp, exec, reg, cfg)
	m := New(orch, nil, nil, false)

	complete := make(chan TaskComplete, 1)
	require.NoError(t, m.Submit(context.Background(), "sess-1", "hello", func(tc TaskComplete) { complete <- tc }))

	<-reached
	m.Cancel("sess-1")

	select {
	case tc := <-complete:
		assert.Equal(t, plan.InteractionStatusCancelled, tc.Reply.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed after cancel")
	}
}

type instantPlanner struct {
	plan *plan.Plan
}

func (p *instantPlanner) GeneratePlan(context.Context, planner.Input) (*plan.Plan, error) {
	return p.plan, nil
}

func (p *instantPlanner) RepairPlan(context.Context, planner.RepairInput) (*plan.Plan, error) {
	return nil, nil
}

func (p *instantPlanner) ReplanAfterFailure(context.Context, planner.ReplanInput) (*plan.Plan, error) {
	return nil, nil
}

func TestClearWithoutStoreResetsInMemorySession(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	close(release)
	orch := newTestOrchestrator(t, &blockingPlanner{release: release})
	m := New(orch, nil, nil, false)

	complete := make(chan TaskComplete, 1)
	require.NoError(t, m.Submit(context.Background(), "sess-1", "hello", func(tc TaskComplete) { complete <- tc }))
	<-complete

	mem, err := m.sessionMemory(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.NotEmpty(t, mem.AllInteractions())

	require.NoError(t, m.Clear(context.Background(), "sess-1"))
	mem, err = m.sessionMemory(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, mem.AllInteractions())
}

func TestClearDuringActiveTaskCancelsJoinsThenResets(t *testing.T) {
	t.Parallel()
	release := make(chan struct{}) // never closed: GeneratePlan blocks until ctx is cancelled
	orch := newTestOrchestrator(t, &blockingPlanner{release: release})
	m := New(orch, nil, nil, false)

	complete := make(chan TaskComplete, 1)
	require.NoError(t, m.Submit(context.Background(), "sess-1", "hello", func(tc TaskComplete) { complete <- tc }))

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		st, ok := m.sessions["sess-1"]
		return ok && st.cancel != nil
	}, 2*time.Second, 10*time.Millisecond, "task never registered its cancel func")

	require.NoError(t, m.Clear(context.Background(), "sess-1"))

	// Clear must not return until the in-flight task has fully settled, so
	// its onComplete callback has already fired by the time Clear returns.
	select {
	case <-complete:
	default:
		t.Fatal("Clear returned before the in-flight task settled")
	}

	mem, err := m.sessionMemory(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, mem.AllInteractions(), "Clear should have reset memory after the task settled")

	// The task lock must be free again, since the cancelled task released it
	// before Clear returned.
	require.NoError(t, m.Submit(context.Background(), "sess-1", "second", func(TaskComplete) {}))
}

func TestInProcessLockOnlyAllowsOneHolderPerSession(t *testing.T) {
	t.Parallel()
	l := NewInProcessLock()

	release1, ok1, err1 := l.TryAcquire(context.Background(), "a")
	require.NoError(t, err1)
	require.True(t, ok1)

	_, ok2, err2 := l.TryAcquire(context.Background(), "a")
	require.NoError(t, err2)
	assert.False(t, ok2)

	release1()

	_, ok3, err3 := l.TryAcquire(context.Background(), "a")
	require.NoError(t, err3)
	assert.True(t, ok3)
}

func TestInProcessLockIndependentPerSession(t *testing.T) {
	t.Parallel()
	l := NewInProcessLock()

	_, ok1, _ := l.TryAcquire(context.Background(), "a")
	_, ok2, _ := l.TryAcquire(context.Background(), "b")
	assert.True(t, ok1)
	assert.True(t, ok2)
}
