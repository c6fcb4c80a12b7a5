package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey   string
	DatabaseURL    string
	HTTPPort       string
	LogLevel       string
	JWTSecret      string
	SessionTTL     time.Duration
	SweepInterval  time.Duration
	ReplyTimeout   time.Duration
	DevLoginUser   string
	DevLoginSecret string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", "parkwell_rewards.db"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SweepInterval:  getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		ReplyTimeout:   getEnvAsDuration("REPLY_TIMEOUT", 30*time.Second),
		DevLoginUser:   getEnv("DEV_LOGIN_USER", ""),
		DevLoginSecret: getEnv("DEV_LOGIN_SECRET", ""),
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set, chat will answer with the fallback reply only")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
