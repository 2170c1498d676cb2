// Package mongostore is a durable, MongoDB-backed alternative to filestore.
// Interactions and reasoning-trace entries for a session become a single
// document in a collection ("orchestrator_sessions" unless
// Options.Collection names another) keyed by (user, session_id), selected
// via config's session.store: "mongo".
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/solace-ai/orchestrator/internal/memory"
	"github.com/solace-ai/orchestrator/internal/plan"
)

const (
	defaultCollection = "orchestrator_sessions"
	defaultOpTimeout   = 5 * time.Second
	schemaVersion      = 1
)

// Document mirrors filestore.Document but is also a valid BSON document,
// keyed by the compound (user, session_id) id.
type Document struct {
	ID              string                              `bson:"_id"`
	User            string                              `bson:"user"`
	SessionID       string                              `bson:"session_id"`
	SchemaVersion   int                                 `bson:"schema_version"`
	Interactions    []plan.Interaction                  `bson:"interactions"`
	PlanningContext map[string]any                      `bson:"planning_context"`
	ReasoningTrace  map[string][]memory.ReasoningEntry   `bson:"reasoning_trace,omitempty"`
	UpdatedAt       time.Time                            `bson:"updated_at"`
}

// Store persists session documents in MongoDB.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// Options configures the Mongo-backed Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// New returns a Store backed by MongoDB, ensuring the compound-key index
// exists before returning.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := coll.Indexes().CreateOne(idxCtx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}, {Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create session index: %w", err)
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

func docID(user, sessionID string) string {
	return user + "/" + sessionID
}

// Save upserts the session document for (user, sessionID).
func (s *Store) Save(ctx context.Context, user, sessionID string, interactions []plan.Interaction, planningContext map[string]any, trace map[string][]memory.ReasoningEntry) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := Document{
		ID:              docID(user, sessionID),
		User:            user,
		SessionID:       sessionID,
		SchemaVersion:   schemaVersion,
		Interactions:    interactions,
		PlanningContext: planningContext,
		ReasoningTrace:  trace,
		UpdatedAt:       time.Now().UTC(),
	}
	_, err := s.coll.ReplaceOne(opCtx, bson.D{{Key: "_id", Value: doc.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert session document: %w", err)
	}
	return nil
}

// Load fetches the session document for (user, sessionID). A missing
// document is not an error; it returns ok=false.
func (s *Store) Load(ctx context.Context, user, sessionID string) (Document, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc Document
	err := s.coll.FindOne(opCtx, bson.D{{Key: "_id", Value: docID(user, sessionID)}}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("load session document: %w", err)
	}
	return doc, true, nil
}

// Clear removes the persisted document for (user, sessionID). Mirrors
// filestore semantics where a subsequent Load observes no prior state.
func (s *Store) Clear(ctx context.Context, user, sessionID string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.coll.DeleteOne(opCtx, bson.D{{Key: "_id", Value: docID(user, sessionID)}})
	if err != nil {
		return fmt.Errorf("clear session document: %w", err)
	}
	return nil
}
