// Package memory implements the session-scoped Session Memory and Reasoning
// Trace store: a per-session, mutex-serialized record of interactions, step
// results, and planning context, with an optional append-only reasoning
// trace.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solace-ai/orchestrator/internal/plan"
)

// SessionMemory owns a sequence of Interactions and a mutable
// planning_context map shared across interactions within a session. All
// mutating operations are serialized by mu; readers receive deep copies so
// callers never observe torn state.
//
// clear() is structured as a public entry point (Clear) that acquires mu
// once and delegates to an unlocked helper, since Go's sync.Mutex is not
// reentrant and Clear must be callable from within a task owned by the same
// session without deadlocking on its own lock.
type SessionMemory struct {
	mu              sync.Mutex
	interactions    []*plan.Interaction
	interactionIdx  map[string]int
	planningContext map[string]any

	reasoningEnabled bool
	reasoningByID    map[string][]*ReasoningEntry // interactionID -> entries
	reasoningEntries map[string]*ReasoningEntry   // entryID -> entry
}

// New constructs an empty SessionMemory. reasoningEnabled mirrors config's
// reasoning_trace.enabled, read once at construction so a trace started
// while the flag was on stays consistently recorded and readable.
func New(reasoningEnabled bool) *SessionMemory {
	return &SessionMemory{
		interactionIdx:   make(map[string]int),
		planningContext:  make(map[string]any),
		reasoningEnabled: reasoningEnabled,
		reasoningByID:    make(map[string][]*ReasoningEntry),
		reasoningEntries: make(map[string]*ReasoningEntry),
	}
}

// AddInteraction records the start of a new interaction and returns its id.
func (m *SessionMemory) AddInteraction(userRequest string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	it := &plan.Interaction{
		ID:          id,
		UserRequest: userRequest,
		StepResults: make(map[int]plan.StepResult),
		CreatedAt:   time.Now().UTC(),
	}
	m.interactions = append(m.interactions, it)
	m.interactionIdx[id] = len(m.interactions) - 1
	return id
}

// SetStepResult records or replaces the StepResult for a step within an
// interaction.
func (m *SessionMemory) SetStepResult(interactionID string, stepID int, result plan.StepResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.find(interactionID)
	if it == nil {
		return
	}
	it.StepResults[stepID] = result
}

// UpdateInteraction applies fn to the stored interaction under lock,
// allowing callers to set the accepted plan, the finalized reply, etc.,
// without exposing the internal pointer outside the lock.
func (m *SessionMemory) UpdateInteraction(interactionID string, fn func(*plan.Interaction)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.find(interactionID)
	if it == nil {
		return
	}
	fn(it)
}

// Snapshot returns a deep copy of the named interaction.
func (m *SessionMemory) Snapshot(interactionID string) (plan.Interaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.find(interactionID)
	if it == nil {
		return plan.Interaction{}, false
	}
	return cloneInteraction(*it), true
}

// AllInteractions returns deep copies of every interaction recorded so far,
// in submission order. Used by persistence backends to snapshot the full
// session document.
func (m *SessionMemory) AllInteractions() []plan.Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]plan.Interaction, len(m.interactions))
	for i, it := range m.interactions {
		out[i] = cloneInteraction(*it)
	}
	return out
}

// AllReasoningEntries returns a deep copy of the full reasoning trace, keyed
// by interaction id. Empty when the feature is disabled.
func (m *SessionMemory) AllReasoningEntries() map[string][]ReasoningEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]ReasoningEntry, len(m.reasoningByID))
	for id, entries := range m.reasoningByID {
		cloned := make([]ReasoningEntry, len(entries))
		for i, e := range entries {
			cloned[i] = cloneReasoningEntry(*e)
		}
		out[id] = cloned
	}
	return out
}

// SetContext writes a key into the shared planning context.
func (m *SessionMemory) SetContext(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planningContext[key] = value
}

// GetContext reads a key from the shared planning context.
func (m *SessionMemory) GetContext(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.planningContext[key]
	return v, ok
}

// PlanningContext returns a deep-ish copy of the entire context map, for
// injecting into planner prompts.
func (m *SessionMemory) PlanningContext() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(m.planningContext))
	for k, v := range m.planningContext {
		out[k] = v
	}
	return out
}

// Restore appends a previously-persisted interaction verbatim, reconstructing
// the interaction index used by find. Used only while hydrating a
// SessionMemory from a Store; live mutation goes through AddInteraction.
func (m *SessionMemory) Restore(it plan.Interaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := cloneInteraction(it)
	m.interactions = append(m.interactions, &cloned)
	m.interactionIdx[it.ID] = len(m.interactions) - 1
}

// Clear discards all interactions, planning context, and reasoning trace
// entries. It is reentrant-safe when invoked from within a task owned by
// the same session because it acquires mu exactly once and never calls back
// into another locking method.
func (m *SessionMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *SessionMemory) clearLocked() {
	m.interactions = nil
	m.interactionIdx = make(map[string]int)
	m.planningContext = make(map[string]any)
	m.reasoningByID = make(map[string][]*ReasoningEntry)
	m.reasoningEntries = make(map[string]*ReasoningEntry)
}

// find returns the live interaction pointer for id, or nil. Callers must
// hold mu.
func (m *SessionMemory) find(id string) *plan.Interaction {
	idx, ok := m.interactionIdx[id]
	if !ok || idx >= len(m.interactions) {
		return nil
	}
	return m.interactions[idx]
}

func cloneInteraction(it plan.Interaction) plan.Interaction {
	out := it
	if it.Plan != nil {
		p := *it.Plan
		p.Steps = append([]plan.Step(nil), it.Plan.Steps...)
		out.Plan = &p
	}
	out.StepResults = make(map[int]plan.StepResult, len(it.StepResults))
	for k, v := range it.StepResults {
		out.StepResults[k] = v
	}
	if it.Reply != nil {
		r := *it.Reply
		r.Artifacts = append([]string(nil), it.Reply.Artifacts...)
		out.Reply = &r
	}
	return out
}
