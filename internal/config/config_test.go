package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the duration of the test. envconfig only applies
// defaults to variables that are absent, not to empty ones.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "COUNTER_BACKEND", "BUSINESS_UTC_OFFSET_MINUTES", "INVOICE_SERIES",
		"DRAFT_TTL_MINUTES", "STORAGE_TIMEOUT_SECONDS", "REDIS_DB", "DASHBOARD_CACHE_TTL_SECONDS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, CounterRepository, cfg.CounterBackend)
	assert.Equal(t, "invoice", cfg.InvoiceSeries)
	assert.Equal(t, 330*time.Minute, cfg.BusinessOffset())
	assert.Equal(t, 2*time.Hour, cfg.DraftTTL())
	assert.Equal(t, 5*time.Second, cfg.StorageTimeout())
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoadRejectsRedisCounterWithoutAddress(t *testing.T) {
	unsetEnv(t, "REDIS_ADDR", "INVOICE_SERIES", "BUSINESS_UTC_OFFSET_MINUTES", "DRAFT_TTL_MINUTES", "STORAGE_TIMEOUT_SECONDS")
	t.Setenv("COUNTER_BACKEND", "Redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestLoadRejectsUnknownCounterBackend(t *testing.T) {
	t.Setenv("COUNTER_BACKEND", "etcd")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadReadsEnvFileWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("INVOICE_SERIES=store-b\nPORT=9999\n"), 0o600))
	unsetEnv(t, "COUNTER_BACKEND", "INVOICE_SERIES", "BUSINESS_UTC_OFFSET_MINUTES", "DRAFT_TTL_MINUTES",
		"STORAGE_TIMEOUT_SECONDS", "REDIS_DB", "DASHBOARD_CACHE_TTL_SECONDS")
	t.Setenv("PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "store-b", cfg.InvoiceSeries)
	assert.Equal(t, "7000", cfg.Port)
}
