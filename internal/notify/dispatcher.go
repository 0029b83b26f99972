package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/logging"
	"solana-signal-pipeline/internal/storage"
)

// Dispatcher drains unnotified signals to the sink. Signals are marked
// notified only after confirmed delivery, so a crash re-sends rather
// than loses.
type Dispatcher struct {
	signals  storage.SignalStore
	sink     Sink
	log      zerolog.Logger
	limit    *logging.Limiter
	interval time.Duration
	wake     chan struct{}
}

// NewDispatcher creates a Dispatcher polling at interval.
func NewDispatcher(signals storage.SignalStore, sink Sink, interval time.Duration, log zerolog.Logger) *Dispatcher {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Dispatcher{
		signals:  signals,
		sink:     sink,
		log:      log.With().Str("component", "notify").Logger(),
		limit:    logging.NewLimiter(10 * time.Minute),
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// Wake requests an immediate drain.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run polls and drains until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-d.wake:
		}
		d.drain(ctx)
	}
}

// drain sends every pending signal in order, stopping on first failure
// so ordering is preserved on retry.
func (d *Dispatcher) drain(ctx context.Context) {
	pending, err := d.signals.Unnotified(ctx)
	if err != nil {
		if d.limit.Allow("fetch") {
			d.log.Warn().Err(err).Msg("fetch pending signals failed")
		}
		return
	}

	for _, sig := range pending {
		if err := d.sink.Send(ctx, FormatSignal(sig)); err != nil {
			// Retried every tick; warn once per limiter window.
			if d.limit.Allow("send") {
				d.log.Warn().Err(err).Int64("id", sig.ID).Msg("signal delivery failed")
			}
			return
		}
		if err := d.signals.MarkNotified(ctx, sig.ID); err != nil {
			d.log.Error().Err(err).Int64("id", sig.ID).Msg("mark notified failed")
			return
		}
		d.log.Info().Int64("id", sig.ID).Str("mint", sig.Mint).Msg("signal delivered")
	}
}

// FormatSignal renders one signal as the alert message.
func FormatSignal(s *domain.Signal) string {
	ts := time.Unix(s.SignalTS, 0).UTC().Format(time.RFC3339)
	return fmt.Sprintf(
		"BUY SIGNAL: %s\nmint: %s\ntime: %s\nvolume spike: %.2fx\nrsi: %.1f\nema bull: %v\nreasons: %s",
		s.Symbol, s.Mint, ts, s.VolSpike, s.RSI, s.EMACross, s.Reasons,
	)
}
