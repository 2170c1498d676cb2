package memory

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// StartReasoningTrace begins an empty trace for an interaction. A no-op when
// the reasoning trace feature is disabled.
func (m *SessionMemory) StartReasoningTrace(interactionID string) {
	if !m.reasoningEnabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reasoningByID[interactionID]; !ok {
		m.reasoningByID[interactionID] = nil
	}
}

// AddReasoningEntry appends a new entry with outcome "pending" and returns
// its id. Returns "" when the feature is disabled.
func (m *SessionMemory) AddReasoningEntry(interactionID string, stage ReasoningStage, thought string) string {
	if !m.reasoningEnabled {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &ReasoningEntry{
		EntryID:       uuid.NewString(),
		InteractionID: interactionID,
		Stage:         stage,
		Thought:       thought,
		Outcome:       OutcomePending,
		Timestamp:     time.Now().UTC(),
	}
	m.reasoningByID[interactionID] = append(m.reasoningByID[interactionID], entry)
	m.reasoningEntries[entry.EntryID] = entry
	return entry.EntryID
}

// UpdateReasoningEntry transitions an entry from pending to a terminal
// outcome exactly once; subsequent calls are ignored. A no-op when the
// feature is disabled.
func (m *SessionMemory) UpdateReasoningEntry(entryID string, mutate func(*ReasoningEntry)) {
	if !m.reasoningEnabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.reasoningEntries[entryID]
	if !ok || entry.Outcome != OutcomePending {
		return
	}
	mutate(entry)
}

// RestoreReasoningEntries reinstates a previously-persisted reasoning trace
// for one interaction. Used only while hydrating a SessionMemory from a
// Store; live recording goes through AddReasoningEntry/UpdateReasoningEntry.
func (m *SessionMemory) RestoreReasoningEntries(interactionID string, entries []ReasoningEntry) {
	if !m.reasoningEnabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	restored := make([]*ReasoningEntry, len(entries))
	for i, e := range entries {
		cloned := cloneReasoningEntry(e)
		restored[i] = &cloned
		m.reasoningEntries[cloned.EntryID] = &cloned
	}
	m.reasoningByID[interactionID] = restored
}

// GetReasoningSummary returns up to maxEntries entries across all
// interactions tracked by this SessionMemory, most recent first, optionally
// filtered to entries carrying at least one correction. Returns an empty
// (non-nil) slice when the feature is disabled.
func (m *SessionMemory) GetReasoningSummary(maxEntries int, includeCorrectionsOnly bool) []ReasoningEntry {
	if !m.reasoningEnabled {
		return []ReasoningEntry{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*ReasoningEntry
	for _, entries := range m.reasoningByID {
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	// Most recent first.
	out := make([]ReasoningEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if includeCorrectionsOnly && len(e.Corrections) == 0 {
			continue
		}
		out = append(out, cloneReasoningEntry(*e))
		if maxEntries > 0 && len(out) >= maxEntries {
			break
		}
	}
	return out
}

// GetPendingCommitments returns the commitments of every entry still in the
// "pending" outcome, across all interactions. Returns an empty (non-nil)
// slice when the feature is disabled.
func (m *SessionMemory) GetPendingCommitments() []string {
	if !m.reasoningEnabled {
		return []string{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, entries := range m.reasoningByID {
		for _, e := range entries {
			if e.Outcome == OutcomePending {
				out = append(out, e.Commitments...)
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// GetTraceAttachments returns the union of attachments across all entries.
// Returns an empty (non-nil) slice when the feature is disabled.
func (m *SessionMemory) GetTraceAttachments() []string {
	if !m.reasoningEnabled {
		return []string{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, entries := range m.reasoningByID {
		for _, e := range entries {
			out = append(out, e.Attachments...)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// GetTraceCorrections returns the union of corrections across all entries.
// Returns an empty (non-nil) slice when the feature is disabled.
func (m *SessionMemory) GetTraceCorrections() []string {
	if !m.reasoningEnabled {
		return []string{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, entries := range m.reasoningByID {
		for _, e := range entries {
			out = append(out, e.Corrections...)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
