// Command universe runs a one-shot refresh of the monitored token set,
// writing the result through to the store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"solana-signal-pipeline/internal/catalog"
	"solana-signal-pipeline/internal/config"
	"solana-signal-pipeline/internal/logging"
	"solana-signal-pipeline/internal/storage/migrations"
	pgstore "solana-signal-pipeline/internal/storage/postgres"
	"solana-signal-pipeline/internal/universe"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Hour, "Overall refresh deadline")
	force := flag.Bool("force", false, "Refresh from the external catalog even if the store is fresh")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if cfg.StoreURL == "" {
		log.Fatal().Msg("STORE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.StoreURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect store")
	}
	defer pool.Close()

	if err := migrations.RunPostgres(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

	source := catalog.NewClient(catalog.ClientOptions{
		BaseURL:     cfg.CatalogBaseURL,
		APIKey:      cfg.CatalogAPIKey,
		MinInterval: cfg.MinRequestGap,
		MaxRetries:  cfg.CatalogRetries,
		DailyBudget: cfg.DailyBudget,
		Logger:      log,
	})

	minFresh := cfg.MinFreshCount
	if *force {
		// An unreachable freshness bar pushes the refresh to the
		// external catalog.
		minFresh = 1 << 30
	}

	uni, err := universe.NewManager(universe.Options{
		Source:          source,
		Store:           pgstore.NewCatalogStore(pool),
		Logger:          log,
		Network:         cfg.Network,
		MemoryTTL:       cfg.MemoryTTL,
		FreshnessWindow: cfg.FreshnessWindow,
		MinFreshCount:   minFresh,
		BatchSize:       cfg.BatchSize,
		InterBatchDelay: cfg.InterBatchDelay,
		MinLiquidityUSD: cfg.MinLiquidityUSD,
		MaxFDVUSD:       cfg.MaxFDVUSD,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("universe manager")
	}

	start := time.Now()
	if err := uni.Refresh(ctx); err != nil {
		log.Fatal().Err(err).Msg("refresh failed")
	}

	log.Info().
		Int("tokens", uni.Size()).
		Int("requests_spent", source.Spent()).
		Dur("took", time.Since(start)).
		Msg("refresh complete")
}
