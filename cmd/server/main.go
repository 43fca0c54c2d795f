package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	casino "github.com/Ashenafi-pixel/casino-settlement"
	"github.com/Ashenafi-pixel/casino-settlement/config"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/logging"
	"github.com/Ashenafi-pixel/casino-settlement/server"
)

func main() {
	// .env in the working directory or its parent; real env vars win.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("server exited", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. Everything it opens is closed before
// it returns.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := casino.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabaseDriver, err)
	}
	defer db.Close()
	if err := ledger.New(db, logger).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	srv, err := server.New(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
