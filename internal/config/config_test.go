package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FIREWALL_REQUESTS_PER_MINUTE", "")
	t.Setenv("R2_ENABLED", "")

	cfg := Load()

	assert.Equal(t, DefaultRequestsPerMinute, cfg.Firewall.RequestsPerMinute)
	assert.Equal(t, DefaultUploadsPerHour, cfg.Firewall.UploadsPerHour)
	assert.Equal(t, time.Hour, cfg.Firewall.AutoBlockWindow)
	assert.Equal(t, time.Minute, cfg.Firewall.RateWindow)
	assert.False(t, cfg.Storage.R2Enabled)
	assert.Equal(t, int64(10200547328), cfg.Storage.R2HardLimitBytes)
	assert.Equal(t, int64(900000), cfg.RateLimiter.ClassAMonthly)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FIREWALL_REQUESTS_PER_MINUTE", "250")
	t.Setenv("FIREWALL_AUTO_BLOCK_WINDOW", "30m")
	t.Setenv("FIREWALL_BLOCK_BAD_BOTS", "false")
	t.Setenv("R2_ENABLED", "true")
	t.Setenv("R2_HARD_LIMIT_BYTES", "1000")

	cfg := Load()

	assert.Equal(t, 250, cfg.Firewall.RequestsPerMinute)
	assert.Equal(t, 30*time.Minute, cfg.Firewall.AutoBlockWindow)
	assert.False(t, cfg.Firewall.BlockBadBots)
	assert.True(t, cfg.Storage.R2Enabled)
	assert.Equal(t, int64(1000), cfg.Storage.R2HardLimitBytes)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("FIREWALL_UPLOADS_PER_HOUR", "lots")
	t.Setenv("FIREWALL_RATE_WINDOW", "-5s")

	cfg := Load()

	assert.Equal(t, DefaultUploadsPerHour, cfg.Firewall.UploadsPerHour)
	assert.Equal(t, DefaultRateWindow, cfg.Firewall.RateWindow)
}

func TestBackendConfigured(t *testing.T) {
	b := BackendConfig{Endpoint: "https://example.com", Bucket: "b", AccessKey: "a"}
	assert.False(t, b.Configured())
	b.SecretKey = "s"
	assert.True(t, b.Configured())
}
