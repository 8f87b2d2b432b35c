// Command recalc resets every user's SSC to the starting balance, wipes the
// credit log, and replays the saved history through the current formulas.
// Run it offline after a scoring-formula change; never against a live bot.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/sailclub/sailcredit/internal/factory"
	redisstorage "github.com/sailclub/sailcredit/internal/storage/redis"
)

// config holds the recalc settings, sourced from env then overridden by flags
type config struct {
	StorageType string `env:"SAILCREDIT_STORAGE" envDefault:"sqlite"`
	SQLitePath  string `env:"SAILCREDIT_SQLITE_PATH" envDefault:"sail_credit.db"`
	RedisURL    string `env:"SAILCREDIT_REDIS_URL" envDefault:"redis://localhost:6379"`
	Verbose     bool   `env:"SAILCREDIT_VERBOSE"`
}

func newRootCmd() *cobra.Command {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse environment", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "recalc",
		Short: "Replay the SSC credit history through the current formulas",
		Long: `recalc resets all users to the starting balance, wipes the credit log,
and replays every saved entry through the current reward and penalty
formulas. Use it after a formula change to rebuild balances from history.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.Flags().StringVar(&cfg.StorageType, "storage", cfg.StorageType, "Ledger backend: sqlite, redis (env: SAILCREDIT_STORAGE)")
	rootCmd.Flags().StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path (env: SAILCREDIT_SQLITE_PATH)")
	rootCmd.Flags().StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis connection URL (env: SAILCREDIT_REDIS_URL)")
	rootCmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Log every replayed entry")

	return rootCmd
}

func run(ctx context.Context, cfg config) error {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	factoryCfg := factory.Config{
		Logger:      logger,
		StorageType: cfg.StorageType,
		SQLitePath:  cfg.SQLitePath,
	}
	if cfg.StorageType == factory.StorageTypeRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		factoryCfg.RedisConfig = &redisCfg
	}

	app, err := factory.New(factoryCfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if err := app.Bureau.Recalculate(ctx); err != nil {
		return err
	}

	balances, err := app.Bureau.Leaderboard(ctx)
	if err != nil {
		return err
	}
	logger.Warn("recalculation finished", slog.Int("users", len(balances)))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
