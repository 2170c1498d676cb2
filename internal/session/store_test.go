package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-ai/orchestrator/internal/memory"
	"github.com/solace-ai/orchestrator/internal/memory/filestore"
)

func newHydratedMemory(t *testing.T) *memory.SessionMemory {
	t.Helper()
	mem := memory.New(true)
	id := mem.AddInteraction("hello")
	mem.SetContext("k", "v")
	mem.AddReasoningEntry(id, memory.StagePlanning, "thinking")
	return mem
}

func TestFileStoreLoadReturnsNilWhenNothingPersisted(t *testing.T) {
	t.Parallel()
	fs := NewFileStore(filestore.New(t.TempDir()), "")

	mem, err := fs.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Nil(t, mem)
}

func TestFileStoreSaveThenLoadRehydratesInteractionsAndContext(t *testing.T) {
	t.Parallel()
	fs := NewFileStore(filestore.New(t.TempDir()), "alice")
	mem := newHydratedMemory(t)

	require.NoError(t, fs.Save(context.Background(), "sess-1", mem))

	loaded, err := fs.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	all := loaded.AllInteractions()
	require.Len(t, all, 1)
	assert.Equal(t, "hello", all[0].UserRequest)

	v, ok := loaded.GetContext("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	summary := loaded.GetReasoningSummary(10, false)
	require.Len(t, summary, 1)
	assert.Equal(t, "thinking", summary[0].Thought)
}

func TestFileStoreClearRemovesPersistedSession(t *testing.T) {
	t.Parallel()
	fs := NewFileStore(filestore.New(t.TempDir()), "")
	mem := newHydratedMemory(t)
	require.NoError(t, fs.Save(context.Background(), "sess-1", mem))

	require.NoError(t, fs.Clear(context.Background(), "sess-1"))

	loaded, err := fs.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestNewFileStoreDefaultsUserPartitionWhenEmpty(t *testing.T) {
	t.Parallel()
	underlying := filestore.New(t.TempDir())
	fs := NewFileStore(underlying, "")
	require.NoError(t, fs.Save(context.Background(), "sess-1", newHydratedMemory(t)))

	doc, ok, err := underlying.Load("default", "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, doc.Interactions, 1)
}
