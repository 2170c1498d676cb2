// Package filestore persists SessionMemory as one JSON document per session
// under sessions/<user>/<session_id>.json. Writes are atomic: a temp
// sibling file is written and fsynced, then renamed over the destination,
// so a crash mid-write never corrupts the existing document.
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/solace-ai/orchestrator/internal/memory"
	"github.com/solace-ai/orchestrator/internal/plan"
)

const schemaVersion = 1

// Document is the on-disk shape of a persisted session.
type Document struct {
	SchemaVersion   int                        `json:"schema_version"`
	Interactions    []plan.Interaction         `json:"interactions"`
	PlanningContext map[string]any             `json:"planning_context"`
	ReasoningTrace  map[string][]memory.ReasoningEntry `json:"reasoning_trace,omitempty"`
}

// Store is a filesystem-backed Session Memory persistence layer.
type Store struct {
	root string // sessions/
}

// New constructs a Store rooted at root (typically "sessions").
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) path(user, sessionID string) string {
	return filepath.Join(s.root, user, sessionID+".json")
}

// Save writes doc to disk atomically for (user, sessionID).
func (s *Store) Save(user, sessionID string, doc Document) error {
	doc.SchemaVersion = schemaVersion
	dest := s.path(user, sessionID)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session document: %w", err)
	}

	tmp, err := os.CreateTemp(dir, sessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup if rename fails

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename session file into place: %w", err)
	}
	return nil
}

// Load reads the persisted document for (user, sessionID). A missing file is
// not an error; it returns a zero-value Document and ok=false.
func (s *Store) Load(user, sessionID string) (Document, bool, error) {
	data, err := os.ReadFile(s.path(user, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, false, nil
		}
		return Document{}, false, fmt.Errorf("read session file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, false, fmt.Errorf("parse session file: %w", err)
	}
	return doc, true, nil
}

// Clear removes the persisted document for (user, sessionID), if any. A
// missing file is not an error, mirroring Load's not-found handling.
func (s *Store) Clear(user, sessionID string) error {
	if err := os.Remove(s.path(user, sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// ToDocument snapshots an in-memory SessionMemory into a persistable
// Document. The caller supplies the interactions, planning context and
// trace, typically from SessionMemory's AllInteractions, PlanningContext and
// AllReasoningEntries.
func ToDocument(interactions []plan.Interaction, planningContext map[string]any, trace map[string][]memory.ReasoningEntry) Document {
	return Document{
		SchemaVersion:   schemaVersion,
		Interactions:    interactions,
		PlanningContext: planningContext,
		ReasoningTrace:  trace,
	}
}
