package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minhaz-42/FitWell-Using-Django/internal/config"
	"github.com/minhaz-42/FitWell-Using-Django/internal/handlers"
	"github.com/minhaz-42/FitWell-Using-Django/internal/inference"
	"github.com/minhaz-42/FitWell-Using-Django/internal/repository"
	"github.com/minhaz-42/FitWell-Using-Django/internal/services"
	"go.uber.org/zap"
)

func RegisterRoutes(
	app *fiber.App,
	cfg *config.Config,
	db *pgxpool.Pool,
	inferenceClient *inference.Client,
	logger *zap.Logger,
) {
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	suggestionRepo := repository.NewMealSuggestionRepository(db)

	chatService := services.NewChatService(
		conversationRepo,
		messageRepo,
		suggestionRepo,
		inferenceClient,
		cfg.MaxHistoryTurns,
		logger,
	)
	chatHandler := handlers.NewChatHandler(chatService)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.SendMessage)

	conversations := api.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Delete("", chatHandler.ClearConversations)
	conversations.Get("/:id", chatHandler.GetConversation)
	conversations.Post("/:id/read", chatHandler.MarkRead)
	conversations.Patch("/:id/title", chatHandler.RenameConversation)
	conversations.Post("/:id/pin", chatHandler.PinConversation)
	conversations.Delete("/:id", chatHandler.DeleteConversation)
}
