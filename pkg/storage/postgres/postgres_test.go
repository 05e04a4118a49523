package postgres

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("unichat_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := New(ctx, Config{DSN: dsn, MigrateOnStart: true})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func TestAppendAndGetHistory(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	userMsg := storage.StoredMessage{
		ID:        api.NewMessageID(),
		Role:      api.RoleUser,
		Content:   "what is the weather in Hamburg?",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.Append(ctx, "conv-1", userMsg))

	assistantMsg := storage.StoredMessage{
		ID:        api.NewMessageID(),
		Role:      api.RoleAssistant,
		Content:   "Let me check.",
		Thinking:  "the user wants current weather",
		Signature: "sig-blob",
		Citations: []api.Citation{{URL: "https://wetter.example", Title: "Wetter"}},
		ToolCalls: []api.ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: api.FunctionCall{
				Name:      "get_weather",
				Arguments: `{"city":"Hamburg"}`,
			},
		}},
		Usage:      &api.Usage{InputTokens: 12, OutputTokens: 30, TotalTokens: 42},
		Moderation: &api.ModerationResult{IsValid: true},
		LogID:      "chat_abc",
		Mode:       "assistant",
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, store.Append(ctx, "conv-1", assistantMsg))

	history, err := store.GetHistory(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	got := history[1]
	assert.Equal(t, api.RoleAssistant, got.Role)
	assert.Equal(t, "Let me check.", got.Content)
	assert.Equal(t, "the user wants current weather", got.Thinking)
	assert.Equal(t, "sig-blob", got.Signature)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "get_weather", got.ToolCalls[0].Function.Name)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 42, got.Usage.TotalTokens)
	require.NotNil(t, got.Moderation)
	assert.True(t, got.Moderation.IsValid)
	assert.Equal(t, "chat_abc", got.LogID)
}

func TestGetHistoryUnknownConversation(t *testing.T) {
	store := setupTestDB(t)

	history, err := store.GetHistory(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendDuplicateMessageID(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	msg := storage.StoredMessage{ID: "dup", Role: api.RoleUser, Content: "a", Timestamp: time.Now().UTC()}
	require.NoError(t, store.Append(ctx, "conv-1", msg))

	err := store.Append(ctx, "conv-1", msg)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestSetMetadataMerges(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.SetMetadata(ctx, "conv-1", map[string]any{"title": "chat", "model": "m1"}))
	require.NoError(t, store.SetMetadata(ctx, "conv-1", map[string]any{"model": "m2"}))

	meta, err := store.Metadata(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "chat", meta["title"])
	assert.Equal(t, "m2", meta["model"])

	_, err = store.Metadata(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
