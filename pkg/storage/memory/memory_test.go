package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/storage"
)

func TestAppendAndGetHistory(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	require.NoError(t, store.Append(ctx, "conv-1", storage.StoredMessage{
		ID: "m1", Role: api.RoleUser, Content: "hello", Timestamp: time.Now(),
	}))
	require.NoError(t, store.Append(ctx, "conv-1", storage.StoredMessage{
		ID: "m2", Role: api.RoleAssistant, Content: "hi there",
		Usage:     &api.Usage{InputTokens: 3, OutputTokens: 5, TotalTokens: 8},
		Timestamp: time.Now(),
	}))

	history, err := store.GetHistory(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, api.RoleAssistant, history[1].Role)
	assert.Equal(t, 8, history[1].Usage.TotalTokens)
}

func TestGetHistoryUnknownConversation(t *testing.T) {
	history, err := New(0).GetHistory(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	require.NoError(t, store.Append(ctx, "conv-1", storage.StoredMessage{ID: "m1", Content: "a"}))
	err := store.Append(ctx, "conv-1", storage.StoredMessage{ID: "m1", Content: "b"})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestSetMetadataMerges(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	require.NoError(t, store.SetMetadata(ctx, "conv-1", map[string]any{"title": "chat", "model": "m1"}))
	require.NoError(t, store.SetMetadata(ctx, "conv-1", map[string]any{"model": "m2"}))

	meta := store.Metadata("conv-1")
	assert.Equal(t, "chat", meta["title"])
	assert.Equal(t, "m2", meta["model"])
}

func TestLRUEviction(t *testing.T) {
	ctx := context.Background()
	store := New(2)

	for i := 1; i <= 2; i++ {
		id := fmt.Sprintf("conv-%d", i)
		require.NoError(t, store.Append(ctx, id, storage.StoredMessage{ID: id + "-m", Content: "x"}))
	}

	// Touch conv-1 so conv-2 becomes the eviction candidate.
	_, err := store.GetHistory(ctx, "conv-1")
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "conv-3", storage.StoredMessage{ID: "m3", Content: "y"}))
	assert.Equal(t, 2, store.Len())

	history, err := store.GetHistory(ctx, "conv-2")
	require.NoError(t, err)
	assert.Empty(t, history, "conv-2 should have been evicted")

	history, err = store.GetHistory(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
