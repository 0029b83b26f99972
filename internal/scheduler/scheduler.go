// Package scheduler runs the pipeline's periodic maintenance work.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-signal-pipeline/internal/ingest"
	"solana-signal-pipeline/internal/storage"
)

// Refresher rebuilds the monitored universe.
type Refresher interface {
	Refresh(ctx context.Context) error
	Size() int
}

// ActivitySource snapshots ingestion counters.
type ActivitySource interface {
	Snapshot() ingest.Counters
}

// Sink receives the periodic activity digest.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Options configures the Scheduler.
type Options struct {
	Universe Refresher
	Pruner   *storage.Pruner
	Activity ActivitySource
	Health   storage.Pinger
	Sink     Sink // optional; activity digests go to the log when nil
	Logger   zerolog.Logger

	RefreshInterval  time.Duration
	PruneInterval    time.Duration
	ActivityInterval time.Duration
	HealthInterval   time.Duration
}

// Scheduler drives refresh, prune, activity and health ticks.
type Scheduler struct {
	opts Options
	log  zerolog.Logger

	lastActivity ingest.Counters
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = 48 * time.Hour
	}
	if opts.PruneInterval == 0 {
		opts.PruneInterval = 24 * time.Hour
	}
	if opts.ActivityInterval == 0 {
		opts.ActivityInterval = 10 * time.Minute
	}
	if opts.HealthInterval == 0 {
		opts.HealthInterval = time.Minute
	}
	return &Scheduler{
		opts: opts,
		log:  opts.Logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run executes the periodic loops until ctx ends. The first universe
// refresh happens immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.refresh(ctx)

	refresh := time.NewTicker(s.opts.RefreshInterval)
	defer refresh.Stop()
	prune := time.NewTicker(s.opts.PruneInterval)
	defer prune.Stop()
	activity := time.NewTicker(s.opts.ActivityInterval)
	defer activity.Stop()
	health := time.NewTicker(s.opts.HealthInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-refresh.C:
			s.refresh(ctx)
		case <-prune.C:
			s.prune(ctx)
		case <-activity.C:
			s.activity(ctx)
		case <-health.C:
			s.health(ctx)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	start := time.Now()
	if err := s.opts.Universe.Refresh(ctx); err != nil {
		s.log.Error().Err(err).Msg("universe refresh failed")
		return
	}
	s.log.Info().
		Int("tokens", s.opts.Universe.Size()).
		Dur("took", time.Since(start)).
		Msg("universe refresh complete")
}

func (s *Scheduler) prune(ctx context.Context) {
	if s.opts.Pruner == nil {
		return
	}
	stats, err := s.opts.Pruner.Prune(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("retention prune failed")
		return
	}
	s.log.Info().
		Int64("candles", stats.Candles).
		Int64("signals", stats.Signals).
		Int64("catalog", stats.Catalog).
		Msg("retention prune complete")
}

// activity reports the delta since the last digest.
func (s *Scheduler) activity(ctx context.Context) {
	if s.opts.Activity == nil {
		return
	}
	cur := s.opts.Activity.Snapshot()
	prev := s.lastActivity
	s.lastActivity = cur

	msg := fmt.Sprintf(
		"activity: logs=%d swaps=%d pools=%d deposits=%d dropped=%d",
		cur.LogsReceived-prev.LogsReceived,
		cur.SwapsParsed-prev.SwapsParsed,
		cur.PoolsSeen-prev.PoolsSeen,
		cur.DepositsSeen-prev.DepositsSeen,
		cur.EventsDropped-prev.EventsDropped,
	)

	if s.opts.Sink != nil {
		if err := s.opts.Sink.Send(ctx, msg); err != nil {
			s.log.Warn().Err(err).Msg("activity digest delivery failed")
		}
		return
	}
	s.log.Info().Msg(msg)
}

func (s *Scheduler) health(ctx context.Context) {
	if s.opts.Health == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.opts.Health.Ping(pingCtx); err != nil {
		s.log.Warn().Err(err).Msg("store health check failed")
	}
}
