package models

import "time"

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleError     MessageRole = "error"
)

func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleError:
		return true
	}
	return false
}

type Conversation struct {
	ID         string     `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	Title      string     `json:"title"`
	Language   string     `json:"language"`
	ModelName  string     `json:"model_name"`
	Pinned     bool       `json:"pinned"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	// Seq is assigned per conversation in append order and is the ordering
	// authority; CreatedAt can tie at clock resolution, Seq never does.
	Seq              int64            `json:"seq"`
	Role             MessageRole      `json:"role"`
	Content          string           `json:"content"`
	CreatedAt        time.Time        `json:"created_at"`
	TokensUsed       *int             `json:"tokens_used,omitempty"`
	ProcessingTimeMs *int64           `json:"processing_time_ms,omitempty"`
	Suggestions      []MealSuggestion `json:"suggestions,omitempty"`
}

type ConversationSummary struct {
	Conversation
	UnreadCount     int          `json:"unread_count"`
	LastMessage     string       `json:"last_message"`
	LastMessageType *MessageRole `json:"last_message_type,omitempty"`
	MessageCount    int          `json:"message_count"`
}

type PaginationMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}
