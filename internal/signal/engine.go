// Package signal evaluates rolling token state against the entry rule
// and persists fired signals.
package signal

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/liquidity"
	"solana-signal-pipeline/internal/rolling"
	"solana-signal-pipeline/internal/storage"
)

// Condition names, stable across config and stored signal reasons.
const (
	CondVolumeSpike    = "volume_spike"
	CondUniqueBuyers   = "unique_buyers"
	CondNetFlow        = "net_flow"
	CondRSIOversold    = "rsi_oversold"
	CondEMABull        = "ema_bull"
	CondLiquidityBoost = "liquidity_boost"
	CondAvgVol60m      = "avg_vol_60m"
	CondVol5m          = "vol_5m"
)

// SymbolSource resolves a mint to its listed symbol.
type SymbolSource interface {
	Get(mint string) (domain.CatalogEntry, bool)
}

// Waker is poked when a new signal lands so delivery does not wait for
// the next poll.
type Waker interface {
	Wake()
}

// Thresholds are the tunable condition cutoffs.
type Thresholds struct {
	MinVolumeSpike  float64
	MinUniqueBuyers int
	MinNetFlow      float64
	MaxRSIOversold  float64
	MinAvgVolUSD    float64
	MinVol5mUSD     float64

	// Liquidity probe gate.
	MinLiquidityUSD   float64
	MaxPriceImpactPct float64
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinVolumeSpike:    3.0,
		MinUniqueBuyers:   5,
		MinNetFlow:        1.0,
		MaxRSIOversold:    35,
		MinAvgVolUSD:      1_000,
		MinVol5mUSD:       10_000,
		MinLiquidityUSD:   10_000,
		MaxPriceImpactPct: 3.0,
	}
}

// Options configures the Engine.
type Options struct {
	Tracker    *rolling.Tracker
	Candles    storage.CandleStore
	Signals    storage.SignalStore
	Prober     liquidity.Prober
	Symbols    SymbolSource
	Dispatcher Waker
	Logger     zerolog.Logger

	Thresholds Thresholds
	Cooldown   time.Duration
	// Required lists condition names that must all fire (AND). The
	// remaining conditions are OR-ed: at least one condition overall
	// must fire.
	Required []string
}

// Engine is the single consumer of the swap event stream.
type Engine struct {
	tracker    *rolling.Tracker
	candles    storage.CandleStore
	signals    storage.SignalStore
	prober     liquidity.Prober
	symbols    SymbolSource
	dispatcher Waker
	log        zerolog.Logger

	thresholds Thresholds
	cooldown   time.Duration
	required   []string

	evictCh chan string
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	cooldown := opts.Cooldown
	if cooldown == 0 {
		cooldown = 1800 * time.Second
	}
	th := opts.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}

	return &Engine{
		tracker:    opts.Tracker,
		candles:    opts.Candles,
		signals:    opts.Signals,
		prober:     opts.Prober,
		symbols:    opts.Symbols,
		dispatcher: opts.Dispatcher,
		log:        opts.Logger.With().Str("component", "signal").Logger(),
		thresholds: th,
		cooldown:   cooldown,
		required:   opts.Required,
		evictCh:    make(chan string, 256),
	}
}

// EvictAsync queues rolling-state removal for mint. The removal happens
// on the engine goroutine, which owns the tracker.
func (e *Engine) EvictAsync(mint string) {
	select {
	case e.evictCh <- mint:
	default:
	}
}

// ParseRequired splits a comma-separated condition list from config.
func ParseRequired(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Run consumes events until the channel closes or ctx ends.
func (e *Engine) Run(ctx context.Context, events <-chan *domain.SwapEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case mint := <-e.evictCh:
			e.tracker.Evict(mint)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.Process(ctx, ev)
		}
	}
}

// drainEvictions applies queued removals. Runs on the engine goroutine.
func (e *Engine) drainEvictions() {
	for {
		select {
		case mint := <-e.evictCh:
			e.tracker.Evict(mint)
		default:
			return
		}
	}
}

// Process applies one event and evaluates the entry rule.
func (e *Engine) Process(ctx context.Context, ev *domain.SwapEvent) {
	e.drainEvictions()

	if !e.tracker.Has(ev.Mint) {
		e.rehydrate(ctx, ev.Mint)
	}
	e.tracker.OnSwap(ev.Mint, ev)

	// Deposit-only events arm the boost but never trigger on their own.
	if ev.PriceUSD <= 0 {
		return
	}

	e.evaluate(ctx, ev.Mint, ev.Timestamp)
}

// rehydrate seeds rolling state from persisted candles on first contact.
func (e *Engine) rehydrate(ctx context.Context, mint string) {
	candles, err := e.candles.GetCandles(ctx, mint, rolling.CandleCapacity)
	if err != nil {
		e.log.Warn().Err(err).Str("mint", mint).Msg("candle rehydration failed")
		return
	}
	e.tracker.Rebuild(mint, candles)
}

// evaluate runs the composite rule for mint at time now.
func (e *Engine) evaluate(ctx context.Context, mint string, now int64) {
	if last := e.tracker.LastSignalTS(mint); last > 0 && now-last < int64(e.cooldown/time.Second) {
		return
	}

	m, ok := e.tracker.Metrics(mint, now)
	if !ok {
		return
	}

	fired := e.conditions(&m)
	if len(fired) == 0 {
		return
	}
	for _, req := range e.required {
		if !fired[req] {
			return
		}
	}

	e.logSellAdvisory(mint, &m)

	// The probe gate runs last: it spends an external request and must
	// fail closed.
	probe, err := e.prober.Probe(ctx, mint)
	if err != nil {
		e.log.Warn().Err(err).Str("mint", mint).Msg("liquidity probe failed, suppressing signal")
		return
	}
	if probe.LiquidityUSD < e.thresholds.MinLiquidityUSD ||
		probe.PriceImpactPct > e.thresholds.MaxPriceImpactPct {
		e.log.Info().
			Str("mint", mint).
			Float64("liquidity_usd", probe.LiquidityUSD).
			Float64("price_impact_pct", probe.PriceImpactPct).
			Msg("signal rejected by liquidity probe")
		return
	}

	symbol := mint
	if e.symbols != nil {
		if entry, ok := e.symbols.Get(mint); ok && entry.Symbol != "" {
			symbol = entry.Symbol
		}
	}

	sig := &domain.Signal{
		Mint:     mint,
		Symbol:   symbol,
		SignalTS: now,
		EMACross: m.EMABull,
		VolSpike: m.VolumeSpike,
		RSI:      m.RSI,
		Reasons:  reasonsString(fired),
	}

	id, err := e.signals.Insert(ctx, sig)
	if err != nil {
		e.log.Error().Err(err).Str("mint", mint).Msg("signal insert failed")
		return
	}

	e.tracker.MarkSignal(mint, now)
	e.log.Info().
		Int64("id", id).
		Str("mint", mint).
		Str("symbol", symbol).
		Str("reasons", sig.Reasons).
		Float64("volume_spike", m.VolumeSpike).
		Float64("rsi", m.RSI).
		Msg("signal emitted")

	if e.dispatcher != nil {
		e.dispatcher.Wake()
	}
}

// conditions evaluates every condition against the metrics snapshot.
func (e *Engine) conditions(m *domain.TokenMetrics) map[string]bool {
	th := &e.thresholds
	fired := make(map[string]bool)

	if m.VolumeSpike >= th.MinVolumeSpike {
		fired[CondVolumeSpike] = true
	}
	if m.UniqueBuyers >= th.MinUniqueBuyers {
		fired[CondUniqueBuyers] = true
	}
	// Strictly more buying than selling, balanced flow does not count.
	if m.NetFlowOK && m.NetFlow > th.MinNetFlow {
		fired[CondNetFlow] = true
	}
	if m.RSIOK && m.RSI <= th.MaxRSIOversold {
		fired[CondRSIOversold] = true
	}
	if m.EMABull {
		fired[CondEMABull] = true
	}
	if m.LiquidityBoost {
		fired[CondLiquidityBoost] = true
	}
	if m.AvgVol60m >= th.MinAvgVolUSD && m.AvgVol60m > 0 {
		fired[CondAvgVol60m] = true
	}
	if m.Vol5m >= th.MinVol5mUSD {
		fired[CondVol5m] = true
	}

	return fired
}

// logSellAdvisory flags exhaustion conditions. Advisory only, no exit
// signal is persisted.
func (e *Engine) logSellAdvisory(mint string, m *domain.TokenMetrics) {
	overbought := m.RSIOK && m.RSI > 70
	outflow := m.NetFlowOK && m.NetFlow < 1
	if overbought || outflow {
		e.log.Info().
			Str("mint", mint).
			Bool("overbought", overbought).
			Bool("outflow", outflow).
			Msg("sell-side advisory")
	}
}

// reasonsString renders fired conditions as a stable comma-separated list.
func reasonsString(fired map[string]bool) string {
	names := make([]string, 0, len(fired))
	for name := range fired {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
