package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey      string
	DatabaseURL       string
	HTTPPort          string
	LogLevel          string
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string
	RedisAddr         string
	RelatedCacheTTL   time.Duration
}

// Load reads .env (if present) and the environment. A missing Gemini key or
// JWT secret is a deployment misconfiguration and aborts startup; everything
// else has a usable default.
func Load() Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:       getEnv("DATABASE_URL", "hanlog.db"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminUser:         getEnv("ADMIN_USER", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RelatedCacheTTL:   time.Duration(getEnvAsInt("RELATED_CACHE_TTL_MINUTES", 10)) * time.Minute,
	}

	if cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	if cfg.AdminPasswordHash == "" {
		log.Println("Warning: ADMIN_PASSWORD_HASH is not set; admin login is disabled")
	}

	return cfg
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
