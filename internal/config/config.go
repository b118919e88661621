package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Upstream UpstreamConfig
	Chat     ChatConfig
	Admin    AdminConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

// UpstreamConfig is the RAG backend the proxy forwards /api/* to.
type UpstreamConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ChatConfig drives the terminal chat client.
type ChatConfig struct {
	APIBaseURL     string
	StorageDriver  string // "file", "memory" or "redis"
	StateFile      string
	TypingInterval time.Duration
	CharsPerTick   int
}

type AdminConfig struct {
	APIBaseURL string
	JWTSecret  string
}

type OtelConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			// Empty keeps audit and lifecycle events local.
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Upstream: UpstreamConfig{
			BaseURL: strings.TrimRight(getEnv("UPSTREAM_BASE_URL", "http://localhost:8000"), "/"),
			APIKey:  getEnv("UPSTREAM_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Chat: ChatConfig{
			APIBaseURL:     strings.TrimRight(getEnv("CHAT_API_BASE_URL", "http://localhost:3000/api"), "/"),
			StorageDriver:  getEnv("CHAT_STORAGE_DRIVER", "file"),
			StateFile:      getEnv("CHAT_STATE_FILE", ".portfolio-chat.json"),
			TypingInterval: time.Duration(getEnvAsInt("CHAT_TYPING_INTERVAL_MS", 25)) * time.Millisecond,
			CharsPerTick:   getEnvAsInt("CHAT_TYPING_CHARS_PER_TICK", 2),
		},
		Admin: AdminConfig{
			APIBaseURL: strings.TrimRight(getEnv("ADMIN_API_BASE_URL", "http://localhost:8000"), "/"),
			JWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
		},
		Otel: OtelConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
