// Package ratelimit implements an adaptive token-bucket limiter that sits in
// front of a model.Client, throttling outbound Planner/Critic completions and
// backing off the effective budget when the provider signals it is
// rate-limiting requests.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/solace-ai/orchestrator/internal/model"
)

// Limiter applies an AIMD-style adaptive token bucket on top of a
// model.Client. It estimates the token cost of each request, blocks callers
// until capacity is available, and adjusts its effective tokens-per-minute
// budget in response to rate limiting signals from the provider: halving the
// budget on a model.ErrRateLimited observation and recovering it gradually on
// successful calls.
//
// A Limiter is process-local. Callers construct one per provider and wrap
// that provider's model.Client with Middleware before handing it to the
// Planner or Critic.
type Limiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// New constructs a Limiter configured with an initial tokens-per-minute
// budget and an upper bound. initialTPM and maxTPM are expressed in tokens
// per minute; when initialTPM is zero or negative, a conservative default is
// used, and maxTPM is clamped up to initialTPM when it is smaller.
func New(initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Middleware wraps next with the limiter, returning nil when next is nil.
func (l *Limiter) Middleware(next model.Client) model.Client {
	if next == nil {
		return nil
	}
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    model.Client
	limiter *Limiter
}

// Complete waits for capacity, delegates to the wrapped client, then adjusts
// the limiter's budget based on whether the call succeeded or was rejected
// as rate-limited.
func (c *limitedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (l *Limiter) wait(ctx context.Context, req *model.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *Limiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, model.ErrRateLimited) {
		l.backoff()
	}
}

// backoff halves the effective budget, floored at minTPM.
func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.setTPMLocked(newTPM)
}

// probe nudges the effective budget back toward maxTPM by recoveryRate after
// a successful call.
func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.setTPMLocked(newTPM)
}

func (l *Limiter) setTPMLocked(tpm float64) {
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// currentBudget returns the limiter's current tokens-per-minute budget, for
// tests.
func (l *Limiter) currentBudget() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens computes a cheap heuristic for the number of tokens in the
// request transcript: it counts message text characters, converts them to
// tokens using a fixed ratio, and adds a small buffer for system prompts and
// provider overhead.
func estimateTokens(req *model.Request) int {
	charCount := 0
	for _, m := range req.Messages {
		charCount += len(m.Text)
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
