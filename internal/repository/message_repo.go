package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	// Concurrent appends to the same conversation race on the next seq; the
	// losing insert hits the (conversation_id, seq) unique constraint and is
	// recomputed. The window is a single statement, so a small bound suffices.
	maxAppendAttempts = 16
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

type AppendMessageInput struct {
	ConversationID   string
	Role             models.MessageRole
	Content          string
	TokensUsed       *int
	ProcessingTimeMs *int64
}

// Append inserts a message with the next per-conversation sequence number.
// Sequence assignment is compare-and-append: the insert computes MAX(seq)+1
// and retries when another append claimed the same slot first, so appends to
// one conversation always serialize without a global lock. A missing
// conversation surfaces as pgx.ErrNoRows.
func (r *MessageRepository) Append(ctx context.Context, input AppendMessageInput) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, conversation_id, seq, role, content, tokens_used, processing_time_ms)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6
		FROM messages
		WHERE conversation_id = $2
		RETURNING id, conversation_id, seq, role, content, created_at, tokens_used, processing_time_ms
	`

	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		var message models.Message
		err := r.db.QueryRow(
			ctx,
			query,
			uuid.NewString(),
			input.ConversationID,
			input.Role,
			input.Content,
			input.TokensUsed,
			input.ProcessingTimeMs,
		).Scan(
			&message.ID,
			&message.ConversationID,
			&message.Seq,
			&message.Role,
			&message.Content,
			&message.CreatedAt,
			&message.TokensUsed,
			&message.ProcessingTimeMs,
		)
		if err == nil {
			return &message, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				lastErr = err
				continue
			case pgForeignKeyViolation:
				return nil, pgx.ErrNoRows
			}
		}
		return nil, err
	}

	return nil, lastErr
}

func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, seq, role, content, created_at, tokens_used, processing_time_ms
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListRecent returns the newest limit messages in conversation order, for
// building the model turn history without loading the whole thread.
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, seq, role, content, created_at, tokens_used, processing_time_ms
		FROM (
			SELECT id, conversation_id, seq, role, content, created_at, tokens_used, processing_time_ms
			FROM messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *MessageRepository) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
	`, conversationID).Scan(&count)
	return count, err
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.Seq,
			&message.Role,
			&message.Content,
			&message.CreatedAt,
			&message.TokensUsed,
			&message.ProcessingTimeMs,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
