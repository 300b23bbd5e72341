// Package config reads the process configuration from the environment, with
// an optional .env file loaded first.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Redis     RedisConfig
	OAuth     OAuthConfig
	RolesFile string
	Env       string
}

type ServerConfig struct {
	Port          int
	BaseURL       string
	FrontendURL   string
	SessionSecret string
	RateLimit     int
	RateWindow    time.Duration
}

type DatabaseConfig struct {
	DSN string
}

type StorageConfig struct {
	Bucket        string
	Region        string
	EndpointURL   string
	EncryptionKey string
}

// Enabled reports whether object storage is configured.
func (c StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

type RedisConfig struct {
	URL string
}

type OAuthConfig struct {
	GoogleKey    string
	GoogleSecret string
	GithubKey    string
	GithubSecret string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}
	rateWindow, err := time.ParseDuration(getEnv("RATE_WINDOW", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_WINDOW: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:          port,
			BaseURL:       getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
			FrontendURL:   getEnv("FRONTEND_URL", "http://localhost:3000"),
			SessionSecret: getEnv("SESSION_SECRET", ""),
			RateLimit:     rateLimit,
			RateWindow:    rateWindow,
		},
		Database: DatabaseConfig{
			DSN: getEnv("DB_STRING", ""),
		},
		Storage: StorageConfig{
			Bucket:        getEnv("AWS_S3_BUCKET", ""),
			Region:        getEnv("AWS_REGION", "us-east-1"),
			EndpointURL:   getEnv("AWS_ENDPOINT_URL", ""),
			EncryptionKey: getEnv("DOCUMENT_ENCRYPTION_KEY", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		OAuth: OAuthConfig{
			GoogleKey:    getEnv("GOOGLE_KEY", ""),
			GoogleSecret: getEnv("GOOGLE_SECRET", ""),
			GithubKey:    getEnv("GITHUB_KEY", ""),
			GithubSecret: getEnv("GITHUB_SECRET", ""),
		},
		RolesFile: getEnv("ROLES_FILE", ""),
		Env:       getEnv("ENVIRONMENT", "development"),
	}

	if config.Env == "production" && len(config.Server.SessionSecret) < 32 {
		return nil, errors.New("SESSION_SECRET must be at least 32 characters in production")
	}

	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
