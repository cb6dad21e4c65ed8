package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
)

const lastMessagePreviewRunes = 200

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(
	ctx context.Context,
	ownerID int64,
	title string,
	language string,
	modelName string,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (id, owner_id, title, language, model_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, title, language, model_name, pinned, created_at, updated_at, last_read_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, uuid.NewString(), ownerID, title, language, modelName).Scan(
		&conversation.ID,
		&conversation.OwnerID,
		&conversation.Title,
		&conversation.Language,
		&conversation.ModelName,
		&conversation.Pinned,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
		&conversation.LastReadAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID string) (*models.Conversation, error) {
	query := `
		SELECT id, owner_id, title, language, model_name, pinned, created_at, updated_at, last_read_at
		FROM conversations
		WHERE id = $1
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, conversationID).Scan(
		&conversation.ID,
		&conversation.OwnerID,
		&conversation.Title,
		&conversation.Language,
		&conversation.ModelName,
		&conversation.Pinned,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
		&conversation.LastReadAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

// ListForOwner returns a page of the owner's conversations, pinned first,
// most recently updated first, ids breaking ties for a deterministic order.
// unread_count is recomputed from the messages table on every call and counts
// messages the owner did not author that arrived after last_read_at.
func (r *ConversationRepository) ListForOwner(
	ctx context.Context,
	ownerID int64,
	limit int,
	offset int,
) ([]models.ConversationSummary, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM conversations
		WHERE owner_id = $1
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT
			c.id,
			c.owner_id,
			c.title,
			c.language,
			c.model_name,
			c.pinned,
			c.created_at,
			c.updated_at,
			c.last_read_at,
			lm.content,
			lm.role,
			COALESCE(mc.message_count, 0),
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT content, role
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY seq DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS message_count
			FROM messages
			WHERE conversation_id = c.id
		) mc ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND role <> 'user'
			  AND (c.last_read_at IS NULL OR created_at > c.last_read_at)
		) uc ON TRUE
		WHERE c.owner_id = $1
		ORDER BY c.pinned DESC, c.updated_at DESC, c.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var lastMessage sql.NullString
		var lastMessageRole sql.NullString

		if err := rows.Scan(
			&summary.ID,
			&summary.OwnerID,
			&summary.Title,
			&summary.Language,
			&summary.ModelName,
			&summary.Pinned,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&summary.LastReadAt,
			&lastMessage,
			&lastMessageRole,
			&summary.MessageCount,
			&summary.UnreadCount,
		); err != nil {
			return nil, 0, err
		}

		if lastMessage.Valid {
			summary.LastMessage = truncateRunes(lastMessage.String, lastMessagePreviewRunes)
		}
		if lastMessageRole.Valid {
			role := models.MessageRole(lastMessageRole.String)
			summary.LastMessageType = &role
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return summaries, total, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, conversationID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET updated_at = clock_timestamp()
		WHERE id = $1
	`, conversationID)
	return err
}

func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_read_at = clock_timestamp()
		WHERE id = $1
	`, conversationID)
	return err
}

func (r *ConversationRepository) SetTitle(ctx context.Context, conversationID string, title string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET title = $2
		WHERE id = $1
	`, conversationID, title)
	return err
}

func (r *ConversationRepository) SetPinned(ctx context.Context, conversationID string, pinned bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET pinned = $2
		WHERE id = $1
	`, conversationID, pinned)
	return err
}

// Delete cascades to messages and their meal suggestions.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM conversations
		WHERE id = $1
	`, conversationID)
	return err
}

func (r *ConversationRepository) DeleteAllForOwner(ctx context.Context, ownerID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM conversations
		WHERE owner_id = $1
	`, ownerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
