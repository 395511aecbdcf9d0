package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT
	JWTSecret               string
	InstructorTokenTTLHours int

	// Attendance protocol
	RotationIntervalSeconds int
	SessionDurationMinutes  int
	CodeTokenTTLHours       int
	AllowPlainTokens        bool

	// Admin
	AdminAPIKey string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                    getEnvOrDefault("PORT", "8080"),
		DatabaseURL:             mustGetEnv("DATABASE_URL"),
		MigrationsDir:           getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:                mustGetEnv("REDIS_URL"),
		JWTSecret:               mustGetEnv("JWT_SECRET"),
		InstructorTokenTTLHours: getEnvAsIntOrDefault("INSTRUCTOR_TOKEN_TTL_HOURS", 8),
		RotationIntervalSeconds: getEnvAsIntOrDefault("ROTATION_INTERVAL_SECONDS", 40),
		SessionDurationMinutes:  getEnvAsIntOrDefault("SESSION_DURATION_MINUTES", 90),
		CodeTokenTTLHours:       getEnvAsIntOrDefault("CODE_TOKEN_TTL_HOURS", 3),
		AllowPlainTokens:        getEnvAsBoolOrDefault("ALLOW_PLAIN_TOKENS", true),
		AdminAPIKey:             getEnvOrDefault("ADMIN_API_KEY", ""),
		FrontendURL:             getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// RotationInterval is both the tick period and the grace window.
func (c *Config) RotationInterval() time.Duration {
	return time.Duration(c.RotationIntervalSeconds) * time.Second
}

func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.SessionDurationMinutes) * time.Minute
}

func (c *Config) CodeTokenTTL() time.Duration {
	return time.Duration(c.CodeTokenTTLHours) * time.Hour
}

func (c *Config) InstructorTokenTTL() time.Duration {
	return time.Duration(c.InstructorTokenTTLHours) * time.Hour
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
