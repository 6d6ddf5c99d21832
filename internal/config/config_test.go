package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"ENVIRONMENT", "PORT", "LOG_LEVEL", "DATABASE_URL",
		"RABBITMQ_HOST", "RABBITMQ_PORT", "RABBITMQ_USER", "RABBITMQ_PASSWORD", "RABBITMQ_VHOST",
		"BINANCE_API_KEY", "BINANCE_API_SECRET", "BINANCE_TESTNET",
		"JWT_SECRET_KEY", "TELEGRAM_BOT_TOKEN", "MOCK_MODE",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_DevelopmentDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.IsProduction())
}

func TestValidate_ProductionRejectsDevSecret(t *testing.T) {
	clearEnv(t)
	cfg := &Config{Environment: "production", TelegramBotToken: "x"}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_ProductionRejectsEmptyTelegramToken(t *testing.T) {
	cfg := &Config{Environment: "production", JWTSecretKey: "a-real-secret"}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_ProductionRejectsMockMode(t *testing.T) {
	cfg := &Config{Environment: "production", JWTSecretKey: "a-real-secret", TelegramBotToken: "x", MockMode: true}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_ProductionPassesWithValidConfig(t *testing.T) {
	cfg := &Config{Environment: "production", JWTSecretKey: "a-real-secret", TelegramBotToken: "x"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DevelopmentNeverRejects(t *testing.T) {
	cfg := &Config{Environment: "development"}
	assert.NoError(t, cfg.Validate())
}
