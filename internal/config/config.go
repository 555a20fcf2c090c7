package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Rag     RagConfig
	Session SessionConfig
	Otel    OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WsLogFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	ActivityTopic      string
}

type RagConfig struct {
	BaseURL   string
	TimeoutMs int
}

type SessionConfig struct {
	Store      string // "memory" or "redis"
	TTLMinutes int
	CookieName string
}

type OtelConfig struct {
	Enabled     bool
	Endpoint    string // host:port of the OTLP HTTP collector
	ServiceName string
}

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			WsLogFilePath:      getEnv("WS_LOG_FILE_PATH", "logs/websocket.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			ActivityTopic:      getEnv("CHAT_ACTIVITY_TOPIC", "CHAT_ACTIVITY"),
		},
		Rag: RagConfig{
			BaseURL:   getEnv("RAG_API_URL", "https://afiabakr-deploy-chatbot.hf.space"),
			TimeoutMs: getEnvAsInt("RAG_API_TIMEOUT_MS", 10000),
		},
		Session: SessionConfig{
			Store:      getEnv("SESSION_STORE", SessionStoreMemory),
			TTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 60),
			CookieName: getEnv("SESSION_COOKIE_NAME", "chat_session"),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "textbook-chat-be"),
		},
	}
}

func (c RagConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
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
