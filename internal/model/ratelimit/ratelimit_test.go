package ratelimit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/time/rate"

	"github.com/solace-ai/orchestrator/internal/model"
)

type fakeClient struct {
	err   error
	calls int
}

func (f *fakeClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	f.calls++
	return &model.Response{Text: "ok"}, f.err
}

func req() *model.Request {
	return &model.Request{Messages: []model.Message{{Role: model.RoleUser, Text: "hello"}}}
}

func TestMiddlewareWrapsNilAsNil(t *testing.T) {
	t.Parallel()
	l := New(60000, 60000)
	assert.Nil(t, l.Middleware(nil))
}

func TestBackoffOnRateLimited(t *testing.T) {
	t.Parallel()
	l := New(60000, 60000)
	initial := l.currentBudget()

	client := &fakeClient{err: fmt.Errorf("wrapped: %w", model.ErrRateLimited)}
	wrapped := l.Middleware(client)

	_, err := wrapped.Complete(context.Background(), req())
	require.ErrorIs(t, err, model.ErrRateLimited)
	assert.Less(t, l.currentBudget(), initial)
}

func TestProbeOnSuccess(t *testing.T) {
	t.Parallel()
	l := New(60000, 120000)
	l.mu.Lock()
	l.recoveryRate = 1000
	l.mu.Unlock()
	initial := l.currentBudget()

	wrapped := l.Middleware(&fakeClient{})
	_, err := wrapped.Complete(context.Background(), req())
	require.NoError(t, err)
	assert.Greater(t, l.currentBudget(), initial)
}

func TestProbeNeverExceedsMaxTPM(t *testing.T) {
	t.Parallel()
	l := New(60000, 60000)
	wrapped := l.Middleware(&fakeClient{})

	for i := 0; i < 5; i++ {
		_, err := wrapped.Complete(context.Background(), req())
		require.NoError(t, err)
	}
	assert.Equal(t, 60000.0, l.currentBudget())
}

func TestBackoffNeverBelowMinTPM(t *testing.T) {
	t.Parallel()
	l := New(1000, 1000)
	wrapped := l.Middleware(&fakeClient{err: model.ErrRateLimited})

	for i := 0; i < 10; i++ {
		_, err := wrapped.Complete(context.Background(), req())
		require.ErrorIs(t, err, model.ErrRateLimited)
	}
	assert.GreaterOrEqual(t, l.currentBudget(), l.minTPM)
}

func TestNonRateLimitErrorDoesNotBackoff(t *testing.T) {
	t.Parallel()
	l := New(60000, 60000)
	initial := l.currentBudget()

	wrapped := l.Middleware(&fakeClient{err: fmt.Errorf("transient network error")})
	_, err := wrapped.Complete(context.Background(), req())
	require.Error(t, err)
	assert.Equal(t, initial, l.currentBudget())
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	l := New(60, 60)
	l.mu.Lock()
	l.limiter = rate.NewLimiter(0, 0)
	l.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wrapped := l.Middleware(&fakeClient{})
	_, err := wrapped.Complete(ctx, req())
	assert.Error(t, err)
}

func TestNewClampsDefaults(t *testing.T) {
	t.Parallel()
	l := New(0, 0)
	assert.Equal(t, 60000.0, l.currentBudget())

	l2 := New(1000, 10)
	assert.Equal(t, 1000.0, l2.maxTPM)
}
