package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir()) // без config.yaml - только ENV и дефолты
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/approvals")
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("WEBHOOK_FAILURE_POLICY", "strict")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://hooks.example.com/approvals", cfg.Webhook.URL)
	assert.Equal(t, 15*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, FailurePolicyStrict, cfg.Webhook.FailurePolicy)
	assert.False(t, cfg.Webhook.MarkForwarded)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 100, cfg.Journal.BatchSize)
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: DriverMemory},
			Webhook:  WebhookConfig{URL: "http://hook", FailurePolicy: FailurePolicyBestEffort},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Webhook.URL = ""
	assert.ErrorContains(t, cfg.Validate(), "webhook.url")

	cfg = base()
	cfg.Webhook.FailurePolicy = "sometimes"
	assert.ErrorContains(t, cfg.Validate(), "failure_policy")

	cfg = base()
	cfg.Database.Driver = DriverPostgres
	assert.ErrorContains(t, cfg.Validate(), "database.url")

	cfg = base()
	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "database.driver")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(LoggerConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)

	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
