// Command casinoctl is the operator CLI: schema migration, users, RTP
// settings, payment decisions, reconciliation and seed checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	casino "github.com/Ashenafi-pixel/casino-settlement"
	"github.com/Ashenafi-pixel/casino-settlement/config"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/logging"
)

var (
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	ldg    *ledger.Ledger

	dbDriver string
	dbURL    string
	dataDir  string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:           "casinoctl",
	Short:         "Operate the casino settlement server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env")
		cfg = config.Load()
		if dbDriver != "" {
			cfg.DatabaseDriver = dbDriver
		}
		if dbURL != "" {
			cfg.DatabaseURL = dbURL
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		level := "warn"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level, "console")
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			_ = db.Close()
			db, ldg = nil, nil
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "database driver: pgx or sqlite (default $DATABASE_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "database URL or SQLite path (default $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding rtp.yaml (default $DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(migrateCmd)
}

// openLedger connects on first use so commands that need no database
// (rtp, verify-seed offline) start without one.
func openLedger() (*ledger.Ledger, error) {
	if ldg != nil {
		return ldg, nil
	}
	var err error
	db, err = casino.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	ldg = ledger.New(db, logger)
	return ldg, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		if err := l.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
