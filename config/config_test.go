package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_DRIVER", "DATABASE_URL", "DATA_DIR", "BET_RATE", "RECONCILE_INTERVAL", "CRASH_MAX_ROUND", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 10.0, cfg.BetRate)
	assert.Equal(t, 24*time.Hour, cfg.ReconcileInterval)
	assert.Equal(t, int64(1), cfg.ReconcileTolerance)
	assert.Equal(t, 10*time.Minute, cfg.CrashMaxRound)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://casino@localhost/casino")
	t.Setenv("RECONCILE_INTERVAL", "90")
	t.Setenv("CRASH_MAX_ROUND", "2m")
	t.Setenv("BET_BURST", "nope")

	cfg := Load()
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "pgx", cfg.DatabaseDriver)
	assert.Equal(t, 90*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 2*time.Minute, cfg.CrashMaxRound)
	assert.Equal(t, 20, cfg.BetBurst)
}
