package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
	"github.com/minhaz-42/FitWell-Using-Django/internal/services"
)

// chatApplicationService is the slice of ChatService the handlers consume.
type chatApplicationService interface {
	HandleUserMessage(ctx context.Context, input services.ChatInput) (*services.ChatResult, error)
	ListConversations(ctx context.Context, ownerID int64, limit, offset int) ([]models.ConversationSummary, int, error)
	GetConversation(ctx context.Context, ownerID int64, conversationID string) (*services.ConversationDetail, error)
	MarkRead(ctx context.Context, ownerID int64, conversationID string) error
	RenameConversation(ctx context.Context, ownerID int64, conversationID, title string) error
	SetPinned(ctx context.Context, ownerID int64, conversationID string, pinned bool) error
	DeleteConversation(ctx context.Context, ownerID int64, conversationID string) error
	ClearConversations(ctx context.Context, ownerID int64) (int64, error)
}

type ChatHandler struct {
	service chatApplicationService
}

func NewChatHandler(service chatApplicationService) *ChatHandler {
	return &ChatHandler{service: service}
}

type sendMessageRequest struct {
	Message         string `json:"message"`
	ConversationID  string `json:"conversation_id"`
	Language        string `json:"language"`
	Model           string `json:"model"`
	WantSuggestions bool   `json:"want_suggestions"`
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

type pinConversationRequest struct {
	Pinned *bool `json:"pinned"`
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	ownerID, err := ownerIDFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid user identity"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.service.HandleUserMessage(c.Context(), services.ChatInput{
		OwnerID:         ownerID,
		ConversationID:  req.ConversationID,
		Text:            req.Message,
		Language:        req.Language,
		ModelName:       req.Model,
		WantSuggestions: req.WantSuggestions,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(result)
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	ownerID, err := ownerIDFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid user identity"})
	}

	limit := clampPageLimit(parseNonNegativeInt(c.Query("limit"), services.DefaultListLimit))
	offset := parseNonNegativeInt(c.Query("offset"), 0)

	conversations, total, err := h.service.ListConversations(c.Context(), ownerID, limit, offset)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"conversations": conversations,
		"pagination":    buildPaginationMeta(limit, offset, total),
	})
}

func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	ownerID, err := ownerIDFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid user identity"})
	}

	detail, err := h.service.GetConversation(c.Context(), ownerID, c.Params("id"))
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(detail)
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	ownerID, err := ownerIDFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid user identity"})
	}

	if err := h.service.MarkRead(c.Context(), ownerID, c.Params("id")); err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (h *ChatHandler) RenameConversation(c *fiber.Ctx) error {
	ownerID, err := ownerIDFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid user identity"})
	}

	var req renameConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.service.RenameConversation(c.Context(), ownerID, c.Params("id"), req.Title); err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "title": strings.TrimSpace(req.Title)})
}

func (h *ChatHandler) PinConversation(c *fiber.Ctx) error {
	ownerID, err := ownerIDFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid user identity"})
	}

	var req pinConversationRequest
	if err := c.BodyParser(&req); err != nil || req.Pinned == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Pinned flag required"})
	}

	if err := h.service.SetPinned(c.Context(), ownerID, c.Params("id"), *req.Pinned); err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "pinned": *req.Pinned})
}

func (h *ChatHandler) DeleteConversation(c *fiber.Ctx) error {
	ownerID, err := ownerIDFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid user identity"})
	}

	if err := h.service.DeleteConversation(c.Context(), ownerID, c.Params("id")); err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (h *ChatHandler) ClearConversations(c *fiber.Ctx) error {
	ownerID, err := ownerIDFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid user identity"})
	}

	deleted, err := h.service.ClearConversations(c.Context(), ownerID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "deleted_count": deleted})
}

// ownerIDFromRequest reads the authenticated user id the upstream layer
// resolved. Authentication itself is out of scope here.
func ownerIDFromRequest(c *fiber.Ctx) (int64, error) {
	header := strings.TrimSpace(c.Get("X-User-ID"))
	if header == "" {
		return 0, errors.New("missing X-User-ID header")
	}
	ownerID, err := strconv.ParseInt(header, 10, 64)
	if err != nil || ownerID <= 0 {
		return 0, errors.New("invalid X-User-ID header")
	}
	return ownerID, nil
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
