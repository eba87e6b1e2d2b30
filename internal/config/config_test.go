package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 15_768_000*time.Second, cfg.SettleDelay)
	assert.Equal(t, time.Second, cfg.RateLimitWindow)
	assert.Equal(t, int64(10), cfg.StagedBufferLimit)
	assert.Equal(t, float64(5), cfg.FudgeFactor)
	assert.Equal(t, 2.905e-6, cfg.PricePerGiBSecond)
	assert.Equal(t, 2.5, cfg.DollarsToDropsRate)
	assert.Equal(t, float64(1), cfg.MachineClasses["standard"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SETTLE_DELAY_SECONDS", "60")
	t.Setenv("FUDGE_FACTOR", "10")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, 60*time.Second, cfg.SettleDelay)
	assert.Equal(t, float64(10), cfg.FudgeFactor)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("FUDGE_FACTOR", "not-a-number")
	cfg := Load()
	assert.Equal(t, float64(5), cfg.FudgeFactor)
}
