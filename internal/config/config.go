package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Neon      NeonConfig
	Ai        AIConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type NeonConfig struct {
	BaseURL string
	// APIKey is the fallback key for local development; production requests
	// carry their own key in the body.
	APIKey string
}

type AIConfig struct {
	Provider          string // "openai" or "ollama"
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OllamaBaseURL     string
	FunctionCallModel string // model used for tool selection
	ChatModel         string // cheaper model used for result summaries
}

type RateLimitConfig struct {
	ChatPerMinute int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DATABASE_URL", ""),
		},
		Neon: NeonConfig{
			BaseURL: getEnv("NEON_API_BASE_URL", "https://console.neon.tech/api/v2"),
			APIKey:  getEnv("NEON_API_KEY", ""),
		},
		Ai: AIConfig{
			Provider:          getEnv("LLM_PROVIDER", "openai"),
			OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			FunctionCallModel: getEnv("FUNCTION_CALL_MODEL", "gpt-4o"),
			ChatModel:         getEnv("CHAT_MODEL", "gpt-4o-mini"),
		},
		RateLimit: RateLimitConfig{
			ChatPerMinute: getEnvAsInt("CHAT_RATE_LIMIT_PER_MINUTE", 20),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
