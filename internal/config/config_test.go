package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ConfigYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join("..", "..", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Database.Host)
	assert.NotZero(t, cfg.RabbitMQ.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.RequestTimeout)

	rate, err := cfg.TaxRate()
	require.NoError(t, err)
	assert.Equal(t, "0.1", rate.String())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv blanks overrides that may leak in from the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"STORAGE_DRIVER", "POSTGRES_HOST", "POSTGRES_DBNAME", "RABBITMQ_HOST", "RABBITMQ_ENABLED", "HTTP_PORT", "BILLING_TAX_RATE"} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultsAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "storage:\n  driver: memory\n")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("BILLING_TAX_RATE", "0.08")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "0.08", cfg.Billing.TaxRate)
	assert.False(t, cfg.RabbitMQ.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "storage:\n  driver: sqlite\n"},
		{"postgres without host", "storage:\n  driver: postgres\n"},
		{"bad tax rate", "storage:\n  driver: memory\nbilling:\n  tax_rate: ten\n"},
		{"tax rate too high", "storage:\n  driver: memory\nbilling:\n  tax_rate: \"1.5\"\n"},
		{"rabbit without host", "storage:\n  driver: memory\nrabbitmq:\n  enabled: true\n"},
	}

	clearEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestURLs(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", Database: "floor"},
		RabbitMQ: RabbitMQConfig{Host: "mq", Port: 5672, User: "guest", Password: "guest", VHost: "/"},
	}

	assert.Equal(t, "postgres://u:p%40ss@db:5432/floor?sslmode=disable", cfg.DatabaseURL())
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.RabbitMQURL())
}
