package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/app")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "prodamus", cfg.OrderPrefix)
	assert.Equal(t, int64(10), cfg.ReferralPercent)
	assert.Equal(t, 10, cfg.PollMaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.PollDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenRefreshHorizon)
	assert.True(t, cfg.DBAutoMigrate)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "DB_URL=file:test.db\nDB_DRIVER=sqlite\nADMIN_CHAT_IDS=1, 2,3\nPOLL_DELAY=500ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 500*time.Millisecond, cfg.PollDelay)

	ids, err := cfg.AdminIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_URL=from-file\nORDER_PREFIX=file\n"), 0o600))
	t.Setenv("ORDER_PREFIX", "env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.OrderPrefix)
	assert.Equal(t, "from-file", cfg.DB_URL)
}

func TestLoadConfigRequiresDatabase(t *testing.T) {
	t.Setenv("DB_URL", "")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoadConfigRejectsBadAdminIDs(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/app")
	t.Setenv("ADMIN_CHAT_IDS", "12,abc")

	_, err := LoadConfig("")
	require.Error(t, err)
}
