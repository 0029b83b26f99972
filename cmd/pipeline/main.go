package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solana-signal-pipeline/internal/catalog"
	"solana-signal-pipeline/internal/config"
	"solana-signal-pipeline/internal/enrich"
	"solana-signal-pipeline/internal/ingest"
	"solana-signal-pipeline/internal/liquidity"
	"solana-signal-pipeline/internal/logging"
	"solana-signal-pipeline/internal/notify"
	"solana-signal-pipeline/internal/observability"
	"solana-signal-pipeline/internal/orchestrator"
	"solana-signal-pipeline/internal/rolling"
	"solana-signal-pipeline/internal/scheduler"
	"solana-signal-pipeline/internal/signal"
	"solana-signal-pipeline/internal/solana"
	"solana-signal-pipeline/internal/storage"
	"solana-signal-pipeline/internal/storage/clickhouse"
	"solana-signal-pipeline/internal/storage/memory"
	"solana-signal-pipeline/internal/storage/migrations"
	pgstore "solana-signal-pipeline/internal/storage/postgres"
	"solana-signal-pipeline/internal/universe"
)

func main() {
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	opsAddr := flag.String("ops-addr", ":9090", "Ops HTTP address for /metrics, /health, /status (empty to disable)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			log.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, *useMemory, *opsAddr, log)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("pipeline exited with error")
		os.Exit(1)
	}
	log.Info().Msg("pipeline stopped")
}

func run(ctx context.Context, cfg *config.Config, useMemory bool, opsAddr string, log zerolog.Logger) error {
	// Storage
	var (
		catalogStore storage.CatalogStore
		poolStore    storage.PoolStore
		candleStore  storage.CandleStore
		signalStore  storage.SignalStore
		pinger       storage.Pinger
		pruner       *storage.Pruner
	)

	if useMemory {
		catalogStore = memory.NewCatalogStore()
		poolStore = memory.NewPoolStore()
		candleStore = memory.NewCandleStore()
		signalStore = memory.NewSignalStore()
	} else {
		if cfg.StoreURL == "" {
			return fmt.Errorf("STORE_URL is required without --use-memory")
		}
		pool, err := pgstore.NewPool(ctx, cfg.StoreURL)
		if err != nil {
			return fmt.Errorf("connect store: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgres(ctx, pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}

		catalogStore = pgstore.NewCatalogStore(pool)
		poolStore = pgstore.NewPoolStore(pool)
		candleStore = pgstore.NewCandleStore(pool)
		signalStore = pgstore.NewSignalStore(pool)
		pinger = pool
	}

	pruner = storage.NewPruner(candleStore, signalStore, catalogStore, storage.DefaultRetention)

	var archive storage.CandleArchive
	if cfg.ClickHouseURL != "" {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouseURL)
		if err != nil {
			log.Warn().Err(err).Msg("candle archive unavailable, continuing without it")
		} else {
			defer conn.Close()
			arch := clickhouse.NewCandleArchive(conn)
			if err := arch.Bootstrap(ctx); err != nil {
				log.Warn().Err(err).Msg("candle archive bootstrap failed, continuing without it")
			} else {
				archive = arch
			}
		}
	}

	// External clients
	source := catalog.NewClient(catalog.ClientOptions{
		BaseURL:     cfg.CatalogBaseURL,
		APIKey:      cfg.CatalogAPIKey,
		MinInterval: cfg.MinRequestGap,
		MaxRetries:  cfg.CatalogRetries,
		DailyBudget: cfg.DailyBudget,
		Logger:      log,
	})

	uni, err := universe.NewManager(universe.Options{
		Source:          source,
		Store:           catalogStore,
		Logger:          log,
		Network:         cfg.Network,
		MemoryTTL:       cfg.MemoryTTL,
		FreshnessWindow: cfg.FreshnessWindow,
		MinFreshCount:   cfg.MinFreshCount,
		BatchSize:       cfg.BatchSize,
		InterBatchDelay: cfg.InterBatchDelay,
		MinLiquidityUSD: cfg.MinLiquidityUSD,
		MaxFDVUSD:       cfg.MaxFDVUSD,
	})
	if err != nil {
		return err
	}

	tracker := rolling.NewTracker()

	enricher := enrich.NewClient(enrich.ClientOptions{
		URL:         cfg.EnrichURL,
		APIKey:      cfg.StreamAPIKey,
		MinInterval: cfg.EnrichMinInterval,
		Logger:      log,
	})

	prober := liquidity.NewClient(liquidity.ClientOptions{
		BaseURL:  cfg.AggregatorBaseURL,
		ProbeUSD: cfg.ProbeUSDAmount,
		Logger:   log,
	})

	wsURL := cfg.StreamWSURL
	if cfg.StreamAPIKey != "" {
		wsURL = fmt.Sprintf("%s/?api-key=%s", cfg.StreamWSURL, cfg.StreamAPIKey)
	}
	wsCfg := solana.DefaultWSConfig()
	wsCfg.MaxReconnectAttempts = cfg.MaxReconnectAttempts
	ws, err := solana.NewWSClient(ctx, wsURL, &wsCfg, log)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer ws.Close()

	// Pipeline components
	ingestor := ingest.NewIngestor(ingest.Options{
		WS:         ws,
		Enricher:   enricher,
		Universe:   uni,
		Pools:      poolStore,
		Candles:    candleStore,
		Archive:    archive,
		Logger:     log,
		MinPoolAge: time.Duration(cfg.MinTokenAgeDays) * 24 * time.Hour,
		Buffer:     cfg.EventBuffer,
	})

	var sink notify.Sink
	if cfg.NotifierToken != "" && cfg.NotifierChannelID != "" {
		sink = notify.NewTelegram(cfg.NotifierBaseURL, cfg.NotifierToken, cfg.NotifierChannelID, nil)
	} else {
		log.Warn().Msg("notifier not configured, signals will only be logged")
		sink = logSink{log: log}
	}

	dispatcher := notify.NewDispatcher(signalStore, sink, 15*time.Second, log)

	engine := signal.NewEngine(signal.Options{
		Tracker:    tracker,
		Candles:    candleStore,
		Signals:    signalStore,
		Prober:     prober,
		Symbols:    uni,
		Dispatcher: dispatcher,
		Logger:     log,
		Thresholds: signal.Thresholds{
			MinVolumeSpike:    cfg.MinVolumeSpike,
			MinUniqueBuyers:   cfg.MinUniqueBuyers,
			MinNetFlow:        cfg.MinNetFlow,
			MaxRSIOversold:    cfg.MaxRSIOversold,
			MinAvgVolUSD:      cfg.MinAvgVolUSD,
			MinVol5mUSD:       cfg.MinVol5mUSD,
			MinLiquidityUSD:   cfg.MinLiquidityUSD,
			MaxPriceImpactPct: cfg.MaxPriceImpactPct,
		},
		Cooldown: cfg.SignalCooldown,
		Required: signal.ParseRequired(cfg.RequiredConds),
	})

	// Tokens leaving the universe lose their rolling state too.
	uni.SetOnEvict(engine.EvictAsync)

	sched := scheduler.New(scheduler.Options{
		Universe:        uni,
		Pruner:          pruner,
		Activity:        ingestor,
		Health:          pinger,
		Sink:            sink,
		Logger:          log,
		RefreshInterval: cfg.RefreshPeriod,
	})

	var ops *observability.Server
	if opsAddr != "" {
		ops = observability.NewServer(observability.ServerOptions{
			Addr:   opsAddr,
			Health: pinger,
			Logger: log,
			Status: func() observability.Status {
				return observability.Status{
					UniverseSize:        uni.Size(),
					UniverseRefreshedAt: uni.RefreshedAt(),
					StreamState:         ws.State().String(),
					CatalogSpent:        source.Spent(),
					Ingestion:           ingestor.Snapshot(),
				}
			},
		})
	}

	return orchestrator.New(orchestrator.Options{
		WS:         ws,
		Ingestor:   ingestor,
		Engine:     engine,
		Dispatcher: dispatcher,
		Scheduler:  sched,
		OpsServer:  ops,
		Sink:       sink,
		Logger:     log,
	}).Run(ctx)
}

// logSink is the fallback notifier when Telegram is not configured.
type logSink struct {
	log zerolog.Logger
}

func (s logSink) Send(_ context.Context, text string) error {
	s.log.Info().Str("message", text).Msg("notification")
	return nil
}
