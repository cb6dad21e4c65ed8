package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/minhaz-42/FitWell-Using-Django/internal/config"
	"github.com/minhaz-42/FitWell-Using-Django/internal/database"
	"github.com/minhaz-42/FitWell-Using-Django/internal/inference"
	"github.com/minhaz-42/FitWell-Using-Django/internal/routes"
	"go.uber.org/zap"
)

const (
	inferenceProbeAttempts = 5
	inferenceProbeDelay    = 2 * time.Second
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := newLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB()
	zlog.Info("Connected to PostgreSQL")

	inferenceClient := inference.NewClient(inference.Options{
		Endpoint:    cfg.InferenceURL,
		Model:       cfg.InferenceModel,
		Timeout:     cfg.InferenceTimeout,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
		Logger:      zlog,
	})
	probeInference(inferenceClient, cfg.InferenceURL, zlog)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, cfg, database.DB, inferenceClient, zlog)

	zlog.Info("Server starting", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("Server failed to start", zap.Error(err))
	}
}

// probeInference waits for the local model server to come up. The server may
// still be loading weights, so failure is logged rather than fatal; the
// client retries per request anyway.
func probeInference(client *inference.Client, endpoint string, zlog *zap.Logger) {
	for attempt := 1; attempt <= inferenceProbeAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		healthy := client.Healthy(ctx)
		cancel()

		if healthy {
			zlog.Info("Inference server is ready", zap.String("endpoint", endpoint))
			return
		}
		time.Sleep(inferenceProbeDelay)
	}
	zlog.Warn("Inference server not ready, continuing anyway",
		zap.String("endpoint", endpoint))
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "development" || appEnv == "test" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
