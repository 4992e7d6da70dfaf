package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raven-chat/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/raven")
	t.Setenv("AUTH_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 5, cfg.AppendMaxAttempts)
	assert.Equal(t, 64, cfg.FanoutConcurrency)
	assert.Equal(t, 5*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, models.DefaultRoomNamespace, cfg.RoomNamespace)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTH_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "AUTH_KEY")
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/raven")
	t.Setenv("AUTH_KEY", "secret")
	t.Setenv("APPEND_MAX_ATTEMPTS", "zero")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APPEND_MAX_ATTEMPTS")
}

func TestMaskDBSource(t *testing.T) {
	assert.Equal(t, "postgres://****:****@db:5432/raven", maskDBSource("postgres://user:pw@db:5432/raven"))
	assert.Equal(t, "invalid-dsn-format", maskDBSource("nonsense"))
}
