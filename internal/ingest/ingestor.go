// Package ingest consumes DEX program log streams, resolves them into
// swap and deposit events, and feeds the signal engine.
package ingest

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/enrich"
	"solana-signal-pipeline/internal/solana"
	"solana-signal-pipeline/internal/storage"
)

// minDepositUSD is the LP deposit size worth surfacing to the engine.
const minDepositUSD = 5000.0

// poolLookupRetry bounds age-gate lookups on the hot path; the default
// policy waits longer than one event is worth.
var poolLookupRetry = storage.RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    time.Second,
}

// Universe is the monitored-set membership check the ingestor needs.
type Universe interface {
	Contains(mint string) bool
}

// Options configures the Ingestor.
type Options struct {
	WS       solana.WSClient
	Enricher enrich.Enricher
	Universe Universe
	Pools    storage.PoolStore
	Candles  storage.CandleStore
	Archive  storage.CandleArchive // optional
	Logger   zerolog.Logger

	// Programs to subscribe to. Defaults to Raydium AMM v4 and Orca
	// Whirlpool.
	Programs []string
	// MinPoolAge gates OHLCV persistence for freshly created pools.
	MinPoolAge time.Duration
	// Buffer is the dispatch channel capacity.
	Buffer int
}

// Counters is a point-in-time snapshot of ingestion activity.
type Counters struct {
	LogsReceived   uint64 `json:"logs_received"`
	SwapsParsed    uint64 `json:"swaps_parsed"`
	PoolsSeen      uint64 `json:"pools_seen"`
	DepositsSeen   uint64 `json:"deposits_seen"`
	EventsDropped  uint64 `json:"events_dropped"`
	SkippedYoung   uint64 `json:"skipped_young_pool"`
	EnrichFailures uint64 `json:"enrich_failures"`
}

// Ingestor turns raw program logs into domain events.
type Ingestor struct {
	ws       solana.WSClient
	enricher enrich.Enricher
	universe Universe
	pools    storage.PoolStore
	candles  storage.CandleStore
	archive  storage.CandleArchive
	log      zerolog.Logger

	programs   []string
	minPoolAge time.Duration

	events   chan *domain.SwapEvent
	eventsMu sync.Mutex // serializes the drop-oldest dance

	logsReceived   atomic.Uint64
	swapsParsed    atomic.Uint64
	poolsSeen      atomic.Uint64
	depositsSeen   atomic.Uint64
	eventsDropped  atomic.Uint64
	skippedYoung   atomic.Uint64
	enrichFailures atomic.Uint64
}

// NewIngestor creates an Ingestor.
func NewIngestor(opts Options) *Ingestor {
	programs := opts.Programs
	if len(programs) == 0 {
		programs = []string{solana.RaydiumAMMV4, solana.OrcaWhirlpool}
	}
	minPoolAge := opts.MinPoolAge
	if minPoolAge == 0 {
		minPoolAge = 14 * 24 * time.Hour
	}
	buffer := opts.Buffer
	if buffer == 0 {
		buffer = 4096
	}

	return &Ingestor{
		ws:         opts.WS,
		enricher:   opts.Enricher,
		universe:   opts.Universe,
		pools:      opts.Pools,
		candles:    opts.Candles,
		archive:    opts.Archive,
		log:        opts.Logger.With().Str("component", "ingest").Logger(),
		programs:   programs,
		minPoolAge: minPoolAge,
		events:     make(chan *domain.SwapEvent, buffer),
	}
}

// Events is the outbound stream consumed by the signal engine.
func (in *Ingestor) Events() <-chan *domain.SwapEvent {
	return in.events
}

// Snapshot returns current counters.
func (in *Ingestor) Snapshot() Counters {
	return Counters{
		LogsReceived:   in.logsReceived.Load(),
		SwapsParsed:    in.swapsParsed.Load(),
		PoolsSeen:      in.poolsSeen.Load(),
		DepositsSeen:   in.depositsSeen.Load(),
		EventsDropped:  in.eventsDropped.Load(),
		SkippedYoung:   in.skippedYoung.Load(),
		EnrichFailures: in.enrichFailures.Load(),
	}
}

// Run subscribes to each program and processes notifications until ctx
// ends. The events channel is closed on return.
func (in *Ingestor) Run(ctx context.Context) error {
	defer close(in.events)

	merged := make(chan solana.LogNotification, 1024)
	var wg sync.WaitGroup

	for _, program := range in.programs {
		ch, err := in.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program}})
		if err != nil {
			return err
		}
		in.log.Info().Str("program", program).Msg("subscribed to program logs")

		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range ch {
				select {
				case merged <- n:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-merged:
			if !ok {
				return nil
			}
			in.handleNotification(ctx, n)
		}
	}
}

// handleNotification classifies one log notification and processes it.
func (in *Ingestor) handleNotification(ctx context.Context, n solana.LogNotification) {
	in.logsReceived.Add(1)

	// Failed transactions carry no executed transfers.
	if n.Err != nil {
		return
	}

	switch classify(n.Logs) {
	case kindPoolInit:
		in.handlePoolInit(ctx, n.Signature)
	case kindSwap:
		in.handleSwap(ctx, n.Signature)
	}
}

type logKind int

const (
	kindOther logKind = iota
	kindPoolInit
	kindSwap
)

// classify inspects program log lines. Pool initialization wins over swap
// since init transactions often also log a swap-shaped instruction.
// Deposit instructions take the swap path; parseSwap recognizes the
// both-legs-out shape and tags the event as a liquidity deposit.
func classify(logs []string) logKind {
	sawSwap := false
	for _, line := range logs {
		lower := strings.ToLower(line)
		// Covers InitializePool, initialize2 and bare anchor-style
		// "initialize" lines.
		if strings.Contains(lower, "initialize") {
			return kindPoolInit
		}
		if sawSwap {
			continue
		}
		if strings.Contains(lower, "swap") ||
			strings.Contains(line, "Instruction: Deposit") ||
			strings.Contains(line, "IncreaseLiquidity") {
			sawSwap = true
		}
	}
	if sawSwap {
		return kindSwap
	}
	return kindOther
}

// handlePoolInit records the pool creation time, which anchors the
// token-age gate.
func (in *Ingestor) handlePoolInit(ctx context.Context, signature string) {
	tx, err := in.enricher.Enrich(ctx, signature)
	if err != nil {
		in.enrichFailures.Add(1)
		in.log.Debug().Err(err).Str("signature", signature).Msg("pool init enrich failed")
		return
	}
	if tx.TransactionErr != nil {
		return
	}

	mint, quoteUSD := targetLeg(tx.TokenTransfers)
	if mint == "" {
		return
	}

	ts := tx.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}

	rec := &domain.PoolRecord{Mint: mint, FirstSeenTS: ts}
	if quoteUSD > 0 {
		liq := quoteUSD
		rec.LiqUSD = &liq
	}
	if err := in.pools.Upsert(ctx, rec); err != nil {
		in.log.Warn().Err(err).Str("mint", mint).Msg("pool record upsert failed")
		return
	}

	in.poolsSeen.Add(1)
	in.log.Info().Str("mint", mint).Str("signature", signature).Msg("new pool observed")
}

// handleSwap enriches a swap transaction and dispatches the resulting
// event.
func (in *Ingestor) handleSwap(ctx context.Context, signature string) {
	tx, err := in.enricher.Enrich(ctx, signature)
	if err != nil {
		in.enrichFailures.Add(1)
		in.log.Debug().Err(err).Str("signature", signature).Msg("swap enrich failed")
		return
	}
	if tx.TransactionErr != nil {
		return
	}

	ev, ok := parseSwap(tx)
	if !ok {
		return
	}
	if !in.universe.Contains(ev.Mint) {
		return
	}

	if ev.DepositUSD > 0 {
		in.depositsSeen.Add(1)
	}

	if ev.PriceUSD > 0 {
		if !in.poolOldEnough(ctx, ev.Mint, ev.Timestamp) {
			in.skippedYoung.Add(1)
			return
		}
		if err := in.candles.IngestSwap(ctx, ev.Mint, ev.PriceUSD, ev.VolumeUSD, ev.Timestamp); err != nil {
			in.log.Warn().Err(err).Str("mint", ev.Mint).Msg("candle write failed")
		}
		in.archiveBucket(ctx, ev.Mint)
		in.swapsParsed.Add(1)
	}

	in.dispatch(ev)
}

// archiveBucket mirrors the newest merged bucket into the analytic
// archive. The archive dedupes by (mint, bucket_ts), so re-appends after
// each merge converge on the final bucket state.
func (in *Ingestor) archiveBucket(ctx context.Context, mint string) {
	if in.archive == nil {
		return
	}
	candles, err := in.candles.GetCandles(ctx, mint, 1)
	if err != nil || len(candles) == 0 {
		return
	}
	if err := in.archive.Append(ctx, candles[0]); err != nil {
		in.log.Debug().Err(err).Str("mint", mint).Msg("candle archive append failed")
	}
}

// poolOldEnough applies the minimum-age gate. A mint with no recorded
// pool creation cannot prove its age and is blocked; transient store
// failures drop the event rather than waving a young pool through.
func (in *Ingestor) poolOldEnough(ctx context.Context, mint string, now int64) bool {
	var rec *domain.PoolRecord
	err := storage.Retry(ctx, poolLookupRetry, func(ctx context.Context) error {
		var err error
		rec, err = in.pools.GetByMint(ctx, mint)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		in.log.Warn().Err(err).Str("mint", mint).Msg("pool age lookup failed, dropping event")
		return false
	}
	age := time.Duration(now-rec.FirstSeenTS) * time.Second
	return age >= in.minPoolAge
}

// dispatch sends the event, evicting the oldest queued event when full.
func (in *Ingestor) dispatch(ev *domain.SwapEvent) {
	in.eventsMu.Lock()
	defer in.eventsMu.Unlock()

	select {
	case in.events <- ev:
		return
	default:
	}

	select {
	case <-in.events:
		in.eventsDropped.Add(1)
	default:
	}

	select {
	case in.events <- ev:
	default:
		in.eventsDropped.Add(1)
	}
}

// targetLeg extracts the first non-quote mint and the absolute USDC
// notional from a transfer set. Used for pool creation transactions,
// where the creator pays both legs in.
func targetLeg(transfers []enrich.TokenTransfer) (string, float64) {
	var mint string
	var usdc float64
	for _, t := range transfers {
		switch {
		case t.Mint == solana.USDCMint:
			usdc += math.Abs(t.TokenAmount)
		case t.Mint == solana.WSOLMint:
		case mint == "" && t.TokenAmount != 0:
			mint = t.Mint
		}
	}
	return mint, usdc
}

// parseSwap turns enriched transfers into a SwapEvent. Amounts are
// signed from the trader's perspective. The target token is the first
// non-quote leg; pricing needs a USDC leg. Both legs paid out by the
// trader mean an LP deposit rather than a trade.
func parseSwap(tx *enrich.Transaction) (*domain.SwapEvent, bool) {
	var (
		targetMint   string
		targetAmount float64
		usdcSum      float64
		sawQuote     bool
	)

	for _, t := range tx.TokenTransfers {
		switch {
		case t.Mint == solana.USDCMint:
			usdcSum += t.TokenAmount
			sawQuote = true
		case t.Mint == solana.WSOLMint:
			sawQuote = true
		case targetMint == "" && t.TokenAmount != 0:
			targetMint = t.Mint
			targetAmount = t.TokenAmount
		case t.Mint == targetMint:
			targetAmount += t.TokenAmount
		}
	}

	if targetMint == "" || !sawQuote {
		return nil, false
	}

	ts := tx.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}

	ev := &domain.SwapEvent{
		Mint:        targetMint,
		TxSignature: tx.Signature,
		Timestamp:   ts,
	}
	if solana.IsOnCurve(tx.FeePayer) {
		ev.Buyer = tx.FeePayer
	}

	// Trader paying both legs out is a liquidity deposit.
	if usdcSum < 0 && targetAmount < 0 {
		deposit := math.Abs(usdcSum)
		if deposit > minDepositUSD {
			ev.DepositUSD = deposit
			return ev, true
		}
		return nil, false
	}

	// WSOL-only swaps cannot be priced in USD.
	if usdcSum == 0 || targetAmount == 0 {
		return nil, false
	}

	ev.VolumeUSD = math.Abs(usdcSum)
	ev.PriceUSD = math.Abs(usdcSum) / math.Abs(targetAmount)
	// USDC paid out by the trader means a buy of the target token.
	ev.IsBuy = usdcSum < 0
	ev.IsSell = usdcSum > 0

	return ev, true
}
