package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/browse"
	"github.com/jobscout/jobscout/internal/config"
	"github.com/jobscout/jobscout/internal/control"
	"github.com/jobscout/jobscout/internal/engine"
	"github.com/jobscout/jobscout/internal/resilience"
	"github.com/jobscout/jobscout/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "jobscout",
	Short: "Job posting ingestion and deduplication engine",
	Long:  "Ingests job postings discovered by a browser-automation sidecar, validates and deduplicates them, merges organization records, and tracks every run as a session.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initStore opens the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return store.NewSQLite(cfg.Store.DatabaseURL)
	}
}

// initEngine wires the store, the sidecar driver, and a fresh control signal
// into an engine ready to run.
func initEngine(ctx context.Context) (*engine.Engine, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	retry := resilience.DefaultPolicy()
	retry.Attempts = cfg.Driver.Retries
	driver := browse.NewRemoteDriver(cfg.Driver.BaseURL,
		browse.WithSource(cfg.Driver.Source),
		browse.WithRetryPolicy(retry),
		browse.WithHTTPClient(&http.Client{Timeout: cfg.Driver.Timeout()}),
	)

	signal := control.NewSignal(cfg.Ingest.PausePoll())
	eng := engine.New(st, driver, signal,
		engine.WithExtractionRate(cfg.Ingest.ExtractionsPerSecond),
	)
	return eng, st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
