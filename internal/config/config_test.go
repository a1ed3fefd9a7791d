package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadConfigDefaults verifies a minimal file gets sane defaults.
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "tnb", cfg.Exchange)
	assert.Equal(t, "TNB", cfg.QuoteTicker)
	assert.Equal(t, 5, cfg.TickSeconds)
	assert.Equal(t, 300, cfg.PairRefreshSeconds)
	assert.Equal(t, 120, cfg.LeaseSeconds)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 500, cfg.RetryInitialDelayMs)
	assert.Equal(t, "store", cfg.Lock.Type)
	assert.Equal(t, "tnbbot:run:", cfg.Lock.Prefix)
	assert.Equal(t, 5, cfg.Rules.ShortWindow)
}

// TestLoadConfigOverrides verifies explicit values survive default filling.
func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{
		"exchange": "binance",
		"quote_ticker": "USDT",
		"tick_seconds": 10,
		"lock": {"type": "memory"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "binance", cfg.Exchange)
	assert.Equal(t, "USDT", cfg.QuoteTicker)
	assert.Equal(t, 10, cfg.TickSeconds)
	assert.Equal(t, "memory", cfg.Lock.Type)
}

// TestLoadConfigUnknownExchange verifies exchange validation.
func TestLoadConfigUnknownExchange(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"exchange": "mtgox"}`))
	assert.Error(t, err)
}

// TestLoadConfigUnknownLockType verifies lock type validation.
func TestLoadConfigUnknownLockType(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"lock": {"type": "zookeeper"}}`))
	assert.Error(t, err)
}

// TestLoadConfigLeaseCoversRetries verifies the lease must outlast the retry budget.
func TestLoadConfigLeaseCoversRetries(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{
		"lease_seconds": 1,
		"retry_attempts": 5,
		"retry_initial_delay_ms": 1000
	}`))
	assert.Error(t, err, "a lease shorter than the retry budget allows concurrent runs")
}

// TestLoadConfigMissingFile verifies a missing path errors out.
func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
