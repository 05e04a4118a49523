// Package postgres provides a PostgreSQL implementation of
// storage.ConversationStore. It uses pgx/v5 for connection pooling and
// JSONB for citations, tool calls, moderation verdicts, and conversation
// metadata.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/storage"
)

// Store is a PostgreSQL-backed ConversationStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.ConversationStore at compile time.
var _ storage.ConversationStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// GetHistory returns a conversation's messages in append order.
func (s *Store) GetHistory(ctx context.Context, conversationID string) ([]storage.StoredMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, thinking, signature,
		       citations, tool_calls,
		       usage_input_tokens, usage_output_tokens, usage_total_tokens,
		       moderation, log_id, mode, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []storage.StoredMessage
	for rows.Next() {
		var (
			msg            storage.StoredMessage
			role           string
			citationsJSON  []byte
			toolCallsJSON  []byte
			moderationJSON []byte
			usage          api.Usage
			createdAt      time.Time
		)
		if err := rows.Scan(
			&msg.ID, &role, &msg.Content, &msg.Thinking, &msg.Signature,
			&citationsJSON, &toolCallsJSON,
			&usage.InputTokens, &usage.OutputTokens, &usage.TotalTokens,
			&moderationJSON, &msg.LogID, &msg.Mode, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = api.MessageRole(role)
		msg.Timestamp = createdAt
		if usage != (api.Usage{}) {
			msg.Usage = &usage
		}
		if len(citationsJSON) > 0 {
			if err := json.Unmarshal(citationsJSON, &msg.Citations); err != nil {
				return nil, fmt.Errorf("unmarshaling citations: %w", err)
			}
		}
		if len(toolCallsJSON) > 0 {
			if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
			}
		}
		if len(moderationJSON) > 0 {
			msg.Moderation = &api.ModerationResult{}
			if err := json.Unmarshal(moderationJSON, msg.Moderation); err != nil {
				return nil, fmt.Errorf("unmarshaling moderation: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Append adds one message, creating the conversation on first write.
func (s *Store) Append(ctx context.Context, conversationID string, msg storage.StoredMessage) error {
	citationsJSON, err := marshalOrNil(msg.Citations)
	if err != nil {
		return fmt.Errorf("marshaling citations: %w", err)
	}
	toolCallsJSON, err := marshalOrNil(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshaling tool calls: %w", err)
	}
	moderationJSON, err := marshalOrNil(msg.Moderation)
	if err != nil {
		return fmt.Errorf("marshaling moderation: %w", err)
	}

	var usageIn, usageOut, usageTotal int
	if msg.Usage != nil {
		usageIn = msg.Usage.InputTokens
		usageOut = msg.Usage.OutputTokens
		usageTotal = msg.Usage.TotalTokens
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, updated_at) VALUES ($1, now())
			ON CONFLICT (id) DO UPDATE SET updated_at = now()
		`, conversationID); err != nil {
			return fmt.Errorf("upserting conversation: %w", err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO messages (
				id, conversation_id, role, content, thinking, signature,
				citations, tool_calls,
				usage_input_tokens, usage_output_tokens, usage_total_tokens,
				moderation, log_id, mode, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
			msg.ID, conversationID, string(msg.Role), msg.Content, msg.Thinking, msg.Signature,
			citationsJSON, toolCallsJSON,
			usageIn, usageOut, usageTotal,
			moderationJSON, msg.LogID, msg.Mode, timestamp,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("inserting message: %w", err)
		}
		return nil
	})
}

// SetMetadata merges the patch into the conversation's metadata document
// using JSONB concatenation.
func (s *Store) SetMetadata(ctx context.Context, conversationID string, patch map[string]any) error {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshaling metadata patch: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, metadata, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET metadata = conversations.metadata || EXCLUDED.metadata,
		    updated_at = now()
	`, conversationID, patchJSON)
	if err != nil {
		return fmt.Errorf("patching metadata: %w", err)
	}
	return nil
}

// Metadata returns a conversation's metadata document.
func (s *Store) Metadata(ctx context.Context, conversationID string) (map[string]any, error) {
	var metadataJSON []byte
	err := s.pool.QueryRow(ctx,
		"SELECT metadata FROM conversations WHERE id = $1", conversationID,
	).Scan(&metadataJSON)
	if err == pgx.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(metadataJSON, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// marshalOrNil serializes v to JSON, returning nil for nil/empty values so
// nullable JSONB columns stay NULL.
func marshalOrNil(v any) ([]byte, error) {
	switch val := v.(type) {
	case []api.Citation:
		if len(val) == 0 {
			return nil, nil
		}
	case []api.ToolCall:
		if len(val) == 0 {
			return nil, nil
		}
	case *api.ModerationResult:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
