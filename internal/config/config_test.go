package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
jwt:
  secret: a-test-secret-of-enough-length
database:
  driver: memory
`

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 12*time.Hour, cfg.JWT.Expiry)
	assert.Equal(t, "BDP", cfg.Allocation.ProgramCode)
	assert.Equal(t, 15*time.Minute, cfg.Broadcast.DedupeWindow)
	assert.Equal(t, 5, cfg.Outbox.RetryAttempts)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.Empty(t, cfg.Donation.Types)
}

func TestLoadConfig_DonationTypes(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimal+`
donation:
  types:
    - {id: 1, code: whole_blood, component: whole_blood, wait_days: 56}
`))
	require.NoError(t, err)

	require.Len(t, cfg.Donation.Types, 1)
	assert.Equal(t, model.ComponentWholeBlood, cfg.Donation.Types[0].Component)
	assert.Equal(t, 56, cfg.Donation.Types[0].WaitDays)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BLOODBANK_DB_HOST", "db.internal")
	t.Setenv("BLOODBANK_DB_PASSWORD", "s3cret")
	t.Setenv("BLOODBANK_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("BLOODBANK_SERVER_PORT", "9090")
	t.Setenv("BLOODBANK_BROADCAST_CONCURRENCY", "3")

	cfg, err := LoadConfig(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Broadcast.Concurrency)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"short secret", "jwt:\n  secret: short\n"},
		{"unknown driver", "jwt:\n  secret: a-test-secret-of-enough-length\ndatabase:\n  driver: mysql\n"},
		{"empty program code", minimal + "allocation:\n  program_code: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestConversions(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimal))
	require.NoError(t, err)

	wc := cfg.Outbox.ToWorkerConfig()
	assert.Equal(t, cfg.Outbox.BatchSize, wc.BatchSize)
	assert.Equal(t, "bloodbank.events", wc.Channel)

	assert.Equal(t, uint32(5), cfg.Redis.ToBrokerConfig().BreakerFailures)
	assert.Equal(t, cfg.JWT.Expiry, cfg.JWT.ToAuthConfig().AccessTTL)
	assert.True(t, cfg.Log.ToLoggerConfig().JSON)
}
