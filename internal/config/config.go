// Package config loads configuration from environment variables (and an
// optional .env file), the way the teacher's config package does via
// godotenv, generalized from the teacher's Arduino-deployment variables to
// this system's trading/broker/security variables per spec section 8.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// devPlaceholderSecret is the value production refuses to boot with.
const devPlaceholderSecret = "dev-secret-change-me"

// RabbitConfig mirrors the RABBITMQ_* environment variables spec section 8
// names. The running system uses the in-process message bus
// (internal/bus), not a real broker, so these fields are parsed but
// otherwise unused; Validate does not check them. They are kept so a
// future real-broker swap has somewhere to read them from.
type RabbitConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

// BinanceConfig carries exchange API credentials for the Exchange Connector.
type BinanceConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// ArchiveConfig carries credentials for the optional S3-compatible
// reconciliation-report/system-log archival sink (internal/reliability).
// An empty Bucket disables archival entirely.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for R2/MinIO-style S3-compatible endpoints
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether archival has enough configuration to run.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// Config holds application configuration loaded once at startup.
type Config struct {
	Environment string // "development" | "production"
	Port        int    // HTTP server port
	LogLevel    string

	DatabaseURL string

	Rabbit  RabbitConfig
	Binance BinanceConfig
	Archive ArchiveConfig

	JWTSecretKey     string
	TelegramBotToken string
	MockMode         bool
}

// Load reads configuration from environment variables, loading a .env file
// first if one exists (godotenv.Load returning an error when absent is not
// itself a failure).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnvAsInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", "file:meridian.db?cache=shared"),
		Rabbit: RabbitConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnvAsInt("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", "/"),
		},
		Binance: BinanceConfig{
			APIKey:    getEnv("BINANCE_API_KEY", ""),
			APISecret: getEnv("BINANCE_API_SECRET", ""),
			Testnet:   getEnvAsBool("BINANCE_TESTNET", true),
		},
		Archive: ArchiveConfig{
			Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
			Region:          getEnv("ARCHIVE_S3_REGION", "auto"),
			Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		},
		JWTSecretKey:     getEnv("JWT_SECRET_KEY", devPlaceholderSecret),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		MockMode:         getEnvAsBool("MOCK_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces spec section 8's production refusal checks: a
// production boot with the dev placeholder JWT secret, an empty Telegram
// bot token, or mock mode enabled is a configuration error, not a runtime
// warning.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	var problems []string
	if c.JWTSecretKey == devPlaceholderSecret || c.JWTSecretKey == "" {
		problems = append(problems, "JWT_SECRET_KEY is the development placeholder")
	}
	if c.TelegramBotToken == "" {
		problems = append(problems, "TELEGRAM_BOT_TOKEN is empty")
	}
	if c.MockMode {
		problems = append(problems, "MOCK_MODE is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("production config invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether Environment is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
