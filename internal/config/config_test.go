package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
)

// allConfigKeys lists every APILOT_ env var that Load() reads.
var allConfigKeys = []string{
	"APILOT_DB_PATH",
	"APILOT_VAULT_KEY",
	"APILOT_VAULT_KEY_EPOCH",
	"APILOT_VAULT_RETIRED_KEYS",
	"APILOT_CONSUMER_KEY",
	"APILOT_CONSUMER_SECRET",
	"APILOT_PLATFORM_BASE_URL",
	"APILOT_REQUEST_TIMEOUT",
	"APILOT_MAX_RETRIES",
	"APILOT_MAX_CONCURRENCY",
	"APILOT_QUOTAS",
	"APILOT_WARMUP_DAYS",
	"APILOT_MIN_DELAY",
	"APILOT_MAX_DELAY",
	"APILOT_EXECUTOR_INTERVAL",
	"APILOT_EXECUTOR_BATCH",
	"APILOT_LOG_RETENTION",
}

// isolateConfigEnv saves and unsets all APILOT_ env vars so tests don't
// inherit values from the host environment. t.Cleanup restores original
// values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

const testVaultKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=" // 32 zero bytes

func setRequired(t *testing.T) {
	t.Setenv("APILOT_VAULT_KEY", testVaultKey)
	t.Setenv("APILOT_VAULT_KEY_EPOCH", "3")
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("APILOT_CONSUMER_KEY", "ck")
	t.Setenv("APILOT_CONSUMER_SECRET", "cs")
	t.Setenv("APILOT_DB_PATH", "/tmp/test.db")
	t.Setenv("APILOT_PLATFORM_BASE_URL", "https://api.example.com/")
	t.Setenv("APILOT_REQUEST_TIMEOUT", "10s")
	t.Setenv("APILOT_MAX_CONCURRENCY", "4")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, testVaultKey, cfg.VaultKey)
	assert.Equal(t, 3, cfg.VaultKeyEpoch)
	assert.Equal(t, "ck", cfg.ConsumerKey)
	assert.Equal(t, "cs", cfg.ConsumerSecret)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "https://api.example.com", cfg.PlatformBaseURL, "trailing slash trimmed")
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, int64(4), cfg.MaxConcurrency)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "accountpilot.db", cfg.DBPath)
	assert.Equal(t, 7, cfg.WarmupDays)
	assert.Equal(t, 2*time.Second, cfg.MinDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, time.Minute, cfg.ExecutorInterval)
	assert.Equal(t, 25, cfg.ExecutorBatch)
	assert.Equal(t, 30*24*time.Hour, cfg.LogRetention)
	assert.Equal(t, 50, cfg.BaseLimits[model.ActionLike])
	assert.Equal(t, 5, cfg.BaseLimits[model.ActionMessage])
	assert.Empty(t, cfg.RetiredKeys)
}

func TestLoad_MissingVaultKey(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("APILOT_VAULT_KEY_EPOCH", "1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APILOT_VAULT_KEY")
}

func TestLoad_MissingEpoch(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("APILOT_VAULT_KEY", testVaultKey)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APILOT_VAULT_KEY_EPOCH")
}

func TestLoad_RetiredKeys(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("APILOT_VAULT_RETIRED_KEYS", "1:keyone, 2:keytwo")

	cfg, err := Load()

	require.NoError(t, err)
	require.Len(t, cfg.RetiredKeys, 2)
	assert.Equal(t, RetiredKey{Epoch: 1, Key: "keyone"}, cfg.RetiredKeys[0])
	assert.Equal(t, RetiredKey{Epoch: 2, Key: "keytwo"}, cfg.RetiredKeys[1])
}

func TestLoad_RetiredKeysMalformed(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("APILOT_VAULT_RETIRED_KEYS", "not-an-entry")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APILOT_VAULT_RETIRED_KEYS")
}

func TestLoad_QuotasOverride(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("APILOT_QUOTAS", "like=100, reply=3")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, map[model.ActionType]int{
		model.ActionLike:  100,
		model.ActionReply: 3,
	}, cfg.BaseLimits)
}

func TestLoad_QuotasUnknownAction(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("APILOT_QUOTAS", "poke=5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestLoad_InvalidDelayBounds(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("APILOT_MIN_DELAY", "10s")
	t.Setenv("APILOT_MAX_DELAY", "1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delay bounds")
}

func TestLoad_InvalidDuration(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("APILOT_REQUEST_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APILOT_REQUEST_TIMEOUT")
}

func TestLoad_InvalidWarmupDays(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("APILOT_WARMUP_DAYS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APILOT_WARMUP_DAYS")
}
