package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at process start and passed by reference into each
// component's constructor. Business logic never reads the environment.
type Config struct {
	Server    Server
	Store     Store
	Token     Token
	Signing   Signing
	Delivery  Delivery
	Directory Directory
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Store selects and configures the token/event store backend.
type Store struct {
	// Backend is one of "memory", "postgres", "redis".
	Backend     string
	DatabaseURL string
	RedisURL    string
}

// Token configures registration token generation.
type Token struct {
	// LengthBytes is the raw entropy per token before URL-safe encoding.
	LengthBytes int
	// CreateAttempts bounds the generate-and-insert retry loop.
	CreateAttempts int
}

// Signing configures credential issuance.
type Signing struct {
	Key       string
	Algorithm string
}

// Delivery configures outbound mail.
type Delivery struct {
	SMTPHost    string
	SMTPPort    int
	SenderName  string
	SenderEmail string
	Password    string
	MaxAttempts int
	BackoffUnit time.Duration
	SendTimeout time.Duration
}

// Directory points at the external patient directory.
type Directory struct {
	URL     string
	Timeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file is honored when present.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Server: Server{
			Addr:            getEnv("VIGIL_ADDR", ":8080"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: Store{
			Backend:     getEnv("STORE_BACKEND", "memory"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			RedisURL:    getEnv("REDIS_URL", ""),
		},
		Token: Token{
			LengthBytes:    getEnvInt("TOKEN_LENGTH", 16),
			CreateAttempts: getEnvInt("TOKEN_CREATE_ATTEMPTS", 3),
		},
		Signing: Signing{
			// Default for development - must be overridden in production.
			Key:       getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Algorithm: getEnv("JWT_ALGORITHM", "HS256"),
		},
		Delivery: Delivery{
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SenderName:  getEnv("SENDER_NAME", "Event Registration"),
			SenderEmail: getEnv("SENDER_EMAIL", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			MaxAttempts: getEnvInt("DELIVERY_MAX_ATTEMPTS", 3),
			BackoffUnit: getEnvDuration("DELIVERY_BACKOFF_UNIT", time.Second),
			SendTimeout: getEnvDuration("DELIVERY_SEND_TIMEOUT", 15*time.Second),
		},
		Directory: Directory{
			URL:     getEnv("DIRECTORY_URL", ""),
			Timeout: getEnvDuration("DIRECTORY_TIMEOUT", 5*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
