package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

// ConversationRepository stores conversations as numbered message rows.
// Histories are append-only, so Save only inserts positions not yet stored.
type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Save(ctx context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save conversation", errors.New("conversation id is required"))
	}
	if err := conv.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin save conversation", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversations (id, message_count, created_at, updated_at)
VALUES ($1, 0, $2, $3)
ON CONFLICT (id) DO NOTHING
`, conv.ID, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return storeError("insert conversation", err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `
SELECT message_count FROM conversations WHERE id = $1 FOR UPDATE
`, conv.ID).Scan(&stored); err != nil {
		return storeError("lock conversation", err)
	}
	if stored > len(conv.Messages) {
		return domain.WrapError(domain.ErrInvalidInput, "save conversation",
			fmt.Errorf("id=%s: snapshot has %d messages, store has %d", conv.ID, len(conv.Messages), stored))
	}

	for pos := stored; pos < len(conv.Messages); pos++ {
		msg := conv.Messages[pos]
		if _, err := tx.ExecContext(ctx, `
INSERT INTO conversation_messages (conversation_id, position, role, content)
VALUES ($1, $2, $3, $4)
`, conv.ID, pos, string(msg.Role), msg.Content); err != nil {
			return storeError("insert conversation message", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE conversations SET message_count = $2, updated_at = $3 WHERE id = $1
`, conv.ID, len(conv.Messages), conv.UpdatedAt); err != nil {
		return storeError("update conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit save conversation", err)
	}
	return nil
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	conv := &domain.Conversation{ID: id}
	err := r.db.QueryRowContext(ctx, `
SELECT created_at, updated_at FROM conversations WHERE id = $1
`, id).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrConversationNotFound, "get conversation", fmt.Errorf("id=%s", id))
		}
		return nil, storeError("get conversation", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT role, content FROM conversation_messages
WHERE conversation_id = $1
ORDER BY position ASC
`, id)
	if err != nil {
		return nil, storeError("list conversation messages", err)
	}
	defer rows.Close()

	conv.Messages = make([]domain.Message, 0)
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, storeError("scan conversation message", err)
		}
		conv.Messages = append(conv.Messages, domain.Message{Role: domain.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate conversation messages", err)
	}
	return conv, nil
}
