package session

import (
	"context"

	"github.com/solace-ai/orchestrator/internal/memory"
	"github.com/solace-ai/orchestrator/internal/memory/filestore"
	"github.com/solace-ai/orchestrator/internal/memory/mongostore"
	"github.com/solace-ai/orchestrator/internal/plan"
)

// FileStore adapts filestore.Store to the Manager's Store contract. Both
// persistence backends key documents by (user, session_id); user defaults to
// a fixed partition since the WS protocol identifies sessions by session_id
// alone.
type FileStore struct {
	store *filestore.Store
	user  string
}

// NewFileStore constructs a FileStore. user partitions the on-disk layout
// (sessions/<user>/<session_id>.json); pass "" to use the default partition.
func NewFileStore(store *filestore.Store, user string) *FileStore {
	if user == "" {
		user = "default"
	}
	return &FileStore{store: store, user: user}
}

// Load implements Store.
func (f *FileStore) Load(_ context.Context, sessionID string) (*memory.SessionMemory, error) {
	doc, ok, err := f.store.Load(f.user, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return hydrate(doc.Interactions, doc.PlanningContext, doc.ReasoningTrace), nil
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, sessionID string, mem *memory.SessionMemory) error {
	doc := filestore.ToDocument(mem.AllInteractions(), mem.PlanningContext(), mem.AllReasoningEntries())
	return f.store.Save(f.user, sessionID, doc)
}

// Clear implements Store.
func (f *FileStore) Clear(_ context.Context, sessionID string) error {
	return f.store.Clear(f.user, sessionID)
}

// MongoStore adapts mongostore.Store to the Manager's Store contract.
type MongoStore struct {
	store *mongostore.Store
	user  string
}

// NewMongoStore constructs a MongoStore; user mirrors FileStore's partition.
func NewMongoStore(store *mongostore.Store, user string) *MongoStore {
	if user == "" {
		user = "default"
	}
	return &MongoStore{store: store, user: user}
}

// Load implements Store.
func (m *MongoStore) Load(ctx context.Context, sessionID string) (*memory.SessionMemory, error) {
	doc, ok, err := m.store.Load(ctx, m.user, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return hydrate(doc.Interactions, doc.PlanningContext, doc.ReasoningTrace), nil
}

// Save implements Store.
func (m *MongoStore) Save(ctx context.Context, sessionID string, mem *memory.SessionMemory) error {
	return m.store.Save(ctx, m.user, sessionID, mem.AllInteractions(), mem.PlanningContext(), mem.AllReasoningEntries())
}

// Clear implements Store.
func (m *MongoStore) Clear(ctx context.Context, sessionID string) error {
	return m.store.Clear(ctx, m.user, sessionID)
}

// hydrate rebuilds a SessionMemory from a persisted document's parts. The
// reasoning trace's presence (non-nil map) determines whether the rebuilt
// SessionMemory re-enables trace recording, matching what was persisted
// rather than the process's current config (a session created with tracing
// on keeps its history readable even if tracing is later disabled).
func hydrate(interactions []plan.Interaction, planningContext map[string]any, trace map[string][]memory.ReasoningEntry) *memory.SessionMemory {
	mem := memory.New(trace != nil)
	for _, it := range interactions {
		mem.Restore(it)
	}
	for k, v := range planningContext {
		mem.SetContext(k, v)
	}
	for interactionID, entries := range trace {
		mem.RestoreReasoningEntries(interactionID, entries)
	}
	return mem
}
