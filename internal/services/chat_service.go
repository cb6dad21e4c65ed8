package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/minhaz-42/FitWell-Using-Django/internal/inference"
	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
	"github.com/minhaz-42/FitWell-Using-Django/internal/repair"
	"github.com/minhaz-42/FitWell-Using-Django/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// List pagination bounds. Exported so the HTTP layer reports the same
// effective limit it was served with.
const (
	DefaultListLimit = 20
	MaxListLimit     = 50
)

const (
	titleRuneLimit = 50

	nutritionSystemPrompt = `You are an expert nutrition and health advisor. Provide evidence-based advice about:
- Nutrition and diet
- Exercise and physical activity
- Health and wellness
- Weight management
- Meal planning
Keep responses concise, practical, and tailored to the user's health context when provided.`

	suggestionSystemPrompt = `When asked for meal suggestions, respond with valid JSON only: a single object or an array of objects with the fields meal_type (breakfast, lunch, dinner or snack), name, description, calories, protein_g, carbs_g, fats_g, fiber_g, ingredients (array of strings), instructions and dietary_flags.`
)

type conversationRepository interface {
	Create(ctx context.Context, ownerID int64, title, language, modelName string) (*models.Conversation, error)
	GetByID(ctx context.Context, conversationID string) (*models.Conversation, error)
	ListForOwner(ctx context.Context, ownerID int64, limit, offset int) ([]models.ConversationSummary, int, error)
	Touch(ctx context.Context, conversationID string) error
	MarkRead(ctx context.Context, conversationID string) error
	SetTitle(ctx context.Context, conversationID, title string) error
	SetPinned(ctx context.Context, conversationID string, pinned bool) error
	Delete(ctx context.Context, conversationID string) error
	DeleteAllForOwner(ctx context.Context, ownerID int64) (int64, error)
}

type messageRepository interface {
	Append(ctx context.Context, input repository.AppendMessageInput) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	ListRecent(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	CountByConversation(ctx context.Context, conversationID string) (int, error)
}

type suggestionRepository interface {
	CreateBatch(ctx context.Context, messageID string, suggestions []models.MealSuggestion) error
	ListByConversation(ctx context.Context, conversationID string) (map[string][]models.MealSuggestion, error)
}

type inferenceClient interface {
	Chat(ctx context.Context, model string, turns []inference.Turn) (*inference.Reply, error)
}

// ChatService owns conversations and messages and orchestrates a user turn:
// resolve the conversation, persist the user message, call the model, repair
// structured output, persist the reply.
type ChatService struct {
	conversationRepo conversationRepository
	messageRepo      messageRepository
	suggestionRepo   suggestionRepository
	inference        inferenceClient
	repair           repair.Engine
	maxHistoryTurns  int
	logger           *zap.Logger
}

func NewChatService(
	conversationRepo conversationRepository,
	messageRepo messageRepository,
	suggestionRepo suggestionRepository,
	inferenceClient inferenceClient,
	maxHistoryTurns int,
	logger *zap.Logger,
) *ChatService {
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		suggestionRepo:   suggestionRepo,
		inference:        inferenceClient,
		maxHistoryTurns:  maxHistoryTurns,
		logger:           logger,
	}
}

type ChatInput struct {
	OwnerID int64
	// ConversationID resumes an existing conversation; empty starts a new
	// one. An id that no longer exists also starts a new one rather than
	// failing the turn.
	ConversationID  string
	Text            string
	Language        string
	ModelName       string
	WantSuggestions bool
}

type ChatResult struct {
	Success            bool                    `json:"success"`
	ConversationID     string                  `json:"conversation_id"`
	ConversationTitle  string                  `json:"conversation_title"`
	Reply              string                  `json:"response"`
	Suggestions        []models.MealSuggestion `json:"suggestions"`
	UserMessageID      string                  `json:"user_message_id"`
	AssistantMessageID string                  `json:"ai_message_id"`
}

type ConversationDetail struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}

// HandleUserMessage is the single entry point for a user turn. The user's
// message is durable before the model is called; whatever happens afterwards,
// the turn is never silently lost. Inference failures are recorded as an
// error-role message and reported with Success=false instead of an error.
func (s *ChatService) HandleUserMessage(ctx context.Context, input ChatInput) (*ChatResult, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" || input.OwnerID <= 0 {
		return nil, ErrInvalidInput
	}

	conversation, err := s.resolveConversation(ctx, input, text)
	if err != nil {
		return nil, err
	}

	userMessage, err := s.messageRepo.Append(ctx, repository.AppendMessageInput{
		ConversationID: conversation.ID,
		Role:           models.MessageRoleUser,
		Content:        text,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	turns, err := s.buildTurns(ctx, conversation, input.WantSuggestions)
	if err != nil {
		return nil, err
	}

	reply, err := s.inference.Chat(ctx, conversation.ModelName, turns)
	if err != nil {
		// The caller went away: stop here, the assistant message is only
		// ever written after the call concludes.
		if ctx.Err() != nil {
			return nil, err
		}
		return s.recordFailedTurn(ctx, conversation, userMessage, err)
	}

	// Always a non-nil slice so the API envelope is stable: plain-text turns
	// serialize as an empty list, not null.
	suggestions := []models.MealSuggestion{}
	if input.WantSuggestions {
		result, repairErr := s.repair.Extract(reply.Text)
		if repairErr != nil {
			s.logger.Warn("no meal suggestions recoverable from reply",
				zap.String("conversation_id", conversation.ID),
				zap.Error(repairErr))
		} else {
			suggestions = result.Suggestions
			s.logger.Debug("recovered meal suggestions",
				zap.String("conversation_id", conversation.ID),
				zap.String("strategy", string(result.Strategy)),
				zap.Int("count", len(suggestions)),
				zap.Int("dropped", result.Dropped))
		}
	}

	processingMs := reply.ProcessingTime.Milliseconds()
	assistantMessage, err := s.messageRepo.Append(ctx, repository.AppendMessageInput{
		ConversationID:   conversation.ID,
		Role:             models.MessageRoleAssistant,
		Content:          reply.Text,
		TokensUsed:       &reply.TokensUsed,
		ProcessingTimeMs: &processingMs,
	})
	if err != nil {
		return nil, err
	}

	// Touch before persisting suggestions: updated_at must reflect the
	// appended messages even if the suggestion write fails.
	if err := s.conversationRepo.Touch(ctx, conversation.ID); err != nil {
		return nil, err
	}

	if len(suggestions) > 0 {
		if err := s.suggestionRepo.CreateBatch(ctx, assistantMessage.ID, suggestions); err != nil {
			return nil, err
		}
	}

	s.refreshTitle(ctx, conversation, text)

	return &ChatResult{
		Success:            true,
		ConversationID:     conversation.ID,
		ConversationTitle:  conversation.Title,
		Reply:              reply.Text,
		Suggestions:        suggestions,
		UserMessageID:      userMessage.ID,
		AssistantMessageID: assistantMessage.ID,
	}, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, input ChatInput, text string) (*models.Conversation, error) {
	if input.ConversationID != "" {
		conversation, err := s.conversationRepo.GetByID(ctx, input.ConversationID)
		switch {
		case err == nil:
			if conversation.OwnerID != input.OwnerID {
				return nil, ErrForbidden
			}
			return conversation, nil
		case errors.Is(err, pgx.ErrNoRows):
			s.logger.Warn("conversation not found, starting a new one",
				zap.String("conversation_id", input.ConversationID),
				zap.Int64("owner_id", input.OwnerID))
		default:
			return nil, err
		}
	}

	language := input.Language
	if language == "" {
		language = "en"
	}
	modelName := input.ModelName
	if modelName == "" {
		modelName = "nutrition"
	}

	return s.conversationRepo.Create(ctx, input.OwnerID, deriveTitle(text), language, modelName)
}

// buildTurns assembles the system prompt plus the most recent exchange
// history, bounded to respect the model's context window. Error-role
// placeholders are not part of the dialogue and are skipped.
func (s *ChatService) buildTurns(ctx context.Context, conversation *models.Conversation, wantSuggestions bool) ([]inference.Turn, error) {
	recent, err := s.messageRepo.ListRecent(ctx, conversation.ID, s.maxHistoryTurns)
	if err != nil {
		return nil, err
	}

	system := nutritionSystemPrompt
	if wantSuggestions {
		system += "\n\n" + suggestionSystemPrompt
	}
	if conversation.Language != "" && conversation.Language != "en" {
		system += "\n\nRespond in the user's language (code: " + conversation.Language + ")."
	}

	turns := make([]inference.Turn, 0, len(recent)+1)
	turns = append(turns, inference.Turn{Role: "system", Content: system})
	for _, message := range recent {
		if message.Role == models.MessageRoleError {
			continue
		}
		turns = append(turns, inference.Turn{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}

	return turns, nil
}

func (s *ChatService) recordFailedTurn(
	ctx context.Context,
	conversation *models.Conversation,
	userMessage *models.Message,
	cause error,
) (*ChatResult, error) {
	content := userFacingError(cause)

	errorMessage, err := s.messageRepo.Append(ctx, repository.AppendMessageInput{
		ConversationID: conversation.ID,
		Role:           models.MessageRoleError,
		Content:        content,
	})
	if err != nil {
		s.logger.Error("failed to record error message",
			zap.String("conversation_id", conversation.ID),
			zap.Error(err))
		return nil, err
	}

	if err := s.conversationRepo.Touch(ctx, conversation.ID); err != nil {
		return nil, err
	}

	s.logger.Warn("inference failed, turn preserved with error placeholder",
		zap.String("conversation_id", conversation.ID),
		zap.Error(cause))

	return &ChatResult{
		Success:            false,
		ConversationID:     conversation.ID,
		ConversationTitle:  conversation.Title,
		Reply:              content,
		Suggestions:        []models.MealSuggestion{},
		UserMessageID:      userMessage.ID,
		AssistantMessageID: errorMessage.ID,
	}, nil
}

// refreshTitle re-derives the title while the thread is still young, so a
// conversation resumed by id gets named after its first real exchange.
func (s *ChatService) refreshTitle(ctx context.Context, conversation *models.Conversation, text string) {
	count, err := s.messageRepo.CountByConversation(ctx, conversation.ID)
	if err != nil || count > 2 {
		return
	}

	title := deriveTitle(text)
	if title == conversation.Title {
		return
	}
	if err := s.conversationRepo.SetTitle(ctx, conversation.ID, title); err != nil {
		s.logger.Warn("failed to update conversation title",
			zap.String("conversation_id", conversation.ID),
			zap.Error(err))
		return
	}
	conversation.Title = title
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	ownerID int64,
	limit int,
	offset int,
) ([]models.ConversationSummary, int, error) {
	if ownerID <= 0 || limit < 0 || offset < 0 {
		return nil, 0, ErrInvalidInput
	}
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	return s.conversationRepo.ListForOwner(ctx, ownerID, limit, offset)
}

// GetConversation returns the full history oldest-first and marks the
// conversation read as a side effect of a successful owner fetch.
func (s *ChatService) GetConversation(ctx context.Context, ownerID int64, conversationID string) (*ConversationDetail, error) {
	conversation, err := s.ownedConversation(ctx, ownerID, conversationID, ErrNotFound)
	if err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	suggestionsByMessage, err := s.suggestionRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Suggestions = suggestionsByMessage[messages[i].ID]
	}

	if err := s.conversationRepo.MarkRead(ctx, conversationID); err != nil {
		return nil, err
	}

	return &ConversationDetail{
		Conversation: *conversation,
		Messages:     messages,
	}, nil
}

func (s *ChatService) MarkRead(ctx context.Context, ownerID int64, conversationID string) error {
	if _, err := s.ownedConversation(ctx, ownerID, conversationID, ErrForbidden); err != nil {
		return err
	}
	return s.conversationRepo.MarkRead(ctx, conversationID)
}

func (s *ChatService) RenameConversation(ctx context.Context, ownerID int64, conversationID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidInput
	}
	if _, err := s.ownedConversation(ctx, ownerID, conversationID, ErrNotFound); err != nil {
		return err
	}
	return s.conversationRepo.SetTitle(ctx, conversationID, title)
}

func (s *ChatService) SetPinned(ctx context.Context, ownerID int64, conversationID string, pinned bool) error {
	if _, err := s.ownedConversation(ctx, ownerID, conversationID, ErrNotFound); err != nil {
		return err
	}
	return s.conversationRepo.SetPinned(ctx, conversationID, pinned)
}

func (s *ChatService) DeleteConversation(ctx context.Context, ownerID int64, conversationID string) error {
	if _, err := s.ownedConversation(ctx, ownerID, conversationID, ErrNotFound); err != nil {
		return err
	}
	return s.conversationRepo.Delete(ctx, conversationID)
}

func (s *ChatService) ClearConversations(ctx context.Context, ownerID int64) (int64, error) {
	if ownerID <= 0 {
		return 0, ErrInvalidInput
	}
	return s.conversationRepo.DeleteAllForOwner(ctx, ownerID)
}

// ownedConversation loads a conversation and enforces ownership.
// mismatchErr distinguishes operations that report Forbidden from those that
// hide the conversation's existence behind NotFound.
func (s *ChatService) ownedConversation(
	ctx context.Context,
	ownerID int64,
	conversationID string,
	mismatchErr error,
) (*models.Conversation, error) {
	if ownerID <= 0 || conversationID == "" {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if conversation.OwnerID != ownerID {
		return nil, mismatchErr
	}
	return conversation, nil
}

func deriveTitle(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= titleRuneLimit {
		return string(runes)
	}
	return string(runes[:titleRuneLimit]) + "..."
}

func userFacingError(err error) string {
	switch {
	case errors.Is(err, inference.ErrUnavailable):
		return "The nutrition assistant is not responding right now. Your message has been saved - please try again in a moment."
	case errors.Is(err, inference.ErrModel):
		return "The nutrition assistant could not process this request. Your message has been saved - please try again."
	default:
		return "Something went wrong while generating a reply. Your message has been saved - please try again."
	}
}
