package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port   string
	DBUrl  string
	AppEnv string

	// Local inference server settings. The server is OpenAI-compatible and
	// typically a llama.cpp-style process on localhost.
	InferenceURL     string
	InferenceModel   string
	InferenceTimeout time.Duration
	Temperature      float64
	MaxTokens        int

	// MaxHistoryTurns bounds how many prior messages are replayed to the
	// model per request.
	MaxHistoryTurns int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	dbURL := getEnv("DB_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DBUrl:            dbURL,
		AppEnv:           normalizeEnv(getEnv("APP_ENV", "production")),
		InferenceURL:     getEnv("INFERENCE_URL", "http://localhost:21002"),
		InferenceModel:   getEnv("INFERENCE_MODEL", "nutrition"),
		InferenceTimeout: getEnvDuration("INFERENCE_TIMEOUT", 60*time.Second),
		Temperature:      getEnvFloat("INFERENCE_TEMPERATURE", 0.7),
		MaxTokens:        getEnvInt("INFERENCE_MAX_TOKENS", 512),
		MaxHistoryTurns:  getEnvInt("MAX_HISTORY_TURNS", 10),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go duration syntax ("90s") or a bare number of
// seconds, which is what most deployment scripts export.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	trimmed := strings.TrimSpace(value)
	if parsed, err := time.ParseDuration(trimmed); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(trimmed); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
