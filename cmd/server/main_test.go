package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	casino "github.com/Ashenafi-pixel/casino-settlement"
	"github.com/Ashenafi-pixel/casino-settlement/config"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRun_ReturnsSetupErrors(t *testing.T) {
	cfg := &config.Config{DatabaseDriver: "oracle", DataDir: t.TempDir()}
	err := run(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open database")
}

func TestRun_ShutsDownCleanly(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "casino.db")
	cfg := &config.Config{
		Port:           freePort(t),
		DatabaseDriver: casino.DriverSQLite,
		DatabaseURL:    dsn,
		DataDir:        dir,
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		BetRate:        10,
		BetBurst:       10,
		CrashMaxRound:  time.Minute,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, run(ctx, cfg, zap.NewNop()))

	db, err := casino.Open(casino.DriverSQLite, dsn)
	require.NoError(t, err)
	defer db.Close()
	users, err := ledger.New(db, nil).Users(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}
