// Package orchestrator supervises the long-running pipeline components.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-signal-pipeline/internal/ingest"
	"solana-signal-pipeline/internal/notify"
	"solana-signal-pipeline/internal/observability"
	"solana-signal-pipeline/internal/scheduler"
	"solana-signal-pipeline/internal/signal"
	"solana-signal-pipeline/internal/solana"
)

// Options wires the pipeline components together.
type Options struct {
	WS         solana.WSClient
	Ingestor   *ingest.Ingestor
	Engine     *signal.Engine
	Dispatcher *notify.Dispatcher
	Scheduler  *scheduler.Scheduler
	OpsServer  *observability.Server // optional
	Sink       notify.Sink           // optional, receives the fatal notice
	Logger     zerolog.Logger
}

// Orchestrator runs all components and stops them together on the first
// failure.
type Orchestrator struct {
	opts Options
	log  zerolog.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		opts: opts,
		log:  opts.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run blocks until ctx ends or a component fails. A component failure is
// reported through the notifier once before shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := o.opts.Ingestor.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ingestor: %w", err)
		}
		return nil
	})

	events := o.opts.Ingestor.Events()
	g.Go(func() error {
		if err := o.opts.Engine.Run(ctx, events); err != nil && ctx.Err() == nil {
			return fmt.Errorf("signal engine: %w", err)
		}
		// Drain remaining events so the ingestor can close cleanly.
		for range events {
		}
		return nil
	})

	g.Go(func() error {
		if err := o.opts.Dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := o.opts.Scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	if o.opts.OpsServer != nil {
		g.Go(func() error {
			if err := o.opts.OpsServer.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
	}

	// The stream reports a terminal error once reconnection gives up.
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-o.opts.WS.Fatal():
			return fmt.Errorf("stream: %w", err)
		}
	})

	err := g.Wait()
	if err != nil && parent.Err() == nil {
		// Failure originated inside a component, not from shutdown.
		o.reportFatal(err)
	}
	return err
}

// reportFatal sends one bounded notice about the terminal failure.
func (o *Orchestrator) reportFatal(err error) {
	o.log.Error().Err(err).Msg("pipeline terminating")
	if o.opts.Sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msg := fmt.Sprintf("pipeline down: %v", err)
	if sendErr := o.opts.Sink.Send(ctx, msg); sendErr != nil {
		o.log.Warn().Err(sendErr).Msg("fatal notice delivery failed")
	}
}
