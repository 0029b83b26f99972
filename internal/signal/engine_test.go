package signal

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/liquidity"
	"solana-signal-pipeline/internal/rolling"
	"solana-signal-pipeline/internal/storage/memory"
)

const testMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

type fakeProber struct {
	res   *liquidity.ProbeResult
	err   error
	calls int
}

func (f *fakeProber) Probe(ctx context.Context, mint string) (*liquidity.ProbeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeSymbols struct{}

func (fakeSymbols) Get(mint string) (domain.CatalogEntry, bool) {
	return domain.CatalogEntry{Mint: mint, Symbol: "BONK"}, true
}

type fakeWaker struct{ wakes int }

func (f *fakeWaker) Wake() { f.wakes++ }

type fixture struct {
	engine  *Engine
	tracker *rolling.Tracker
	signals *memory.SignalStore
	prober  *fakeProber
	waker   *fakeWaker
}

func newFixture(t *testing.T, opts func(*Options)) *fixture {
	t.Helper()

	f := &fixture{
		tracker: rolling.NewTracker(),
		signals: memory.NewSignalStore(),
		prober:  &fakeProber{res: &liquidity.ProbeResult{PriceImpactPct: 0.3, LiquidityUSD: 50_000}},
		waker:   &fakeWaker{},
	}

	o := Options{
		Tracker:    f.tracker,
		Candles:    memory.NewCandleStore(),
		Signals:    f.signals,
		Prober:     f.prober,
		Symbols:    fakeSymbols{},
		Dispatcher: f.waker,
		Logger:     zerolog.Nop(),
	}
	if opts != nil {
		opts(&o)
	}
	f.engine = NewEngine(o)
	return f
}

// seedBullish loads a rising, steady-volume candle history so a burst
// event trips the composite rule.
func seedBullish(tr *rolling.Tracker, base int64) {
	candles := make([]*domain.Candle, 40)
	for i := range candles {
		price := 1.0 + float64(i)*0.1
		candles[i] = &domain.Candle{
			Mint:      testMint,
			BucketTS:  base + int64(i)*60,
			Open:      price, High: price, Low: price, Close: price,
			VolumeUSD: 1000,
		}
	}
	tr.Rebuild(testMint, candles)
}

func burstEvent(ts int64) *domain.SwapEvent {
	return &domain.SwapEvent{
		Mint:      testMint,
		Timestamp: ts,
		PriceUSD:  5.0,
		VolumeUSD: 60_000,
		IsBuy:     true,
		Buyer:     "trader-1",
	}
}

func TestEngineEmitsSignalOnBurst(t *testing.T) {
	f := newFixture(t, nil)
	base := domain.BucketTS(1_700_000_000)
	seedBullish(f.tracker, base)

	now := base + 40*60
	f.engine.Process(context.Background(), burstEvent(now))

	all := f.signals.All()
	require.Len(t, all, 1)
	sig := all[0]
	assert.Equal(t, testMint, sig.Mint)
	assert.Equal(t, "BONK", sig.Symbol)
	assert.Equal(t, now, sig.SignalTS)
	assert.True(t, sig.EMACross)
	assert.GreaterOrEqual(t, sig.VolSpike, 3.0)
	assert.False(t, sig.Notified)
	assert.Contains(t, sig.Reasons, CondVolumeSpike)
	assert.Contains(t, sig.Reasons, CondVol5m)
	assert.Contains(t, sig.Reasons, CondNetFlow)
	assert.Contains(t, sig.Reasons, CondEMABull)

	assert.Equal(t, 1, f.waker.wakes)
	assert.Equal(t, now, f.tracker.LastSignalTS(testMint))
}

func TestEngineCooldownSuppressesRepeat(t *testing.T) {
	f := newFixture(t, nil)
	base := domain.BucketTS(1_700_000_000)
	seedBullish(f.tracker, base)

	now := base + 40*60
	f.engine.Process(context.Background(), burstEvent(now))
	f.engine.Process(context.Background(), burstEvent(now+60))

	assert.Len(t, f.signals.All(), 1)
	assert.Equal(t, 1, f.prober.calls)

	// Past the cooldown the rule may fire again.
	f.engine.Process(context.Background(), burstEvent(now+1801))
	assert.Len(t, f.signals.All(), 2)
}

func TestEngineProbeGateRejectsThinPool(t *testing.T) {
	f := newFixture(t, nil)
	f.prober.res = &liquidity.ProbeResult{PriceImpactPct: 4.0, LiquidityUSD: 5_000}

	base := domain.BucketTS(1_700_000_000)
	seedBullish(f.tracker, base)
	f.engine.Process(context.Background(), burstEvent(base+40*60))

	assert.Empty(t, f.signals.All())
	assert.Equal(t, 1, f.prober.calls)
	// No cooldown anchor for a suppressed signal.
	assert.Zero(t, f.tracker.LastSignalTS(testMint))
}

func TestEngineProbeFailureFailsClosed(t *testing.T) {
	f := newFixture(t, nil)
	f.prober.err = fmt.Errorf("aggregator unreachable")

	base := domain.BucketTS(1_700_000_000)
	seedBullish(f.tracker, base)
	f.engine.Process(context.Background(), burstEvent(base+40*60))

	assert.Empty(t, f.signals.All())
}

func TestEngineRequiredConditions(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Required = []string{CondUniqueBuyers}
	})

	base := domain.BucketTS(1_700_000_000)
	seedBullish(f.tracker, base)
	// One buyer only, so the required condition cannot fire.
	f.engine.Process(context.Background(), burstEvent(base+40*60))

	assert.Empty(t, f.signals.All())
	assert.Zero(t, f.prober.calls)
}

func TestEngineQuietTokenStaysQuiet(t *testing.T) {
	f := newFixture(t, nil)

	now := int64(1_700_000_000)
	f.engine.Process(context.Background(), &domain.SwapEvent{
		Mint: testMint, Timestamp: now, PriceUSD: 1.0, VolumeUSD: 20, IsBuy: true,
	})

	assert.Empty(t, f.signals.All())
	assert.Zero(t, f.prober.calls)
}

func TestEngineDepositArmsButDoesNotTrigger(t *testing.T) {
	f := newFixture(t, nil)

	now := int64(1_700_000_000)
	f.engine.Process(context.Background(), &domain.SwapEvent{
		Mint: testMint, Timestamp: now, DepositUSD: 8_000,
	})

	assert.Empty(t, f.signals.All())

	m, ok := f.tracker.Metrics(testMint, now+10)
	require.True(t, ok)
	assert.True(t, m.LiquidityBoost)
}

func TestConditions(t *testing.T) {
	e := NewEngine(Options{Logger: zerolog.Nop()})

	m := &domain.TokenMetrics{
		VolumeSpike:    3.5,
		UniqueBuyers:   7,
		NetFlow:        2.4,
		NetFlowOK:      true,
		RSI:            30,
		RSIOK:          true,
		EMABull:        true,
		LiquidityBoost: true,
		AvgVol60m:      1_500,
		Vol5m:          12_000,
	}

	fired := e.conditions(m)
	for _, name := range []string{
		CondVolumeSpike, CondUniqueBuyers, CondNetFlow, CondRSIOversold,
		CondEMABull, CondLiquidityBoost, CondAvgVol60m, CondVol5m,
	} {
		assert.True(t, fired[name], name)
	}

	assert.Equal(t,
		"avg_vol_60m,ema_bull,liquidity_boost,net_flow,rsi_oversold,unique_buyers,vol_5m,volume_spike",
		reasonsString(fired))
}

func TestConditionsNetFlowNearUnity(t *testing.T) {
	e := NewEngine(Options{Logger: zerolog.Nop()})

	// Any buy excess over sells fires the flow condition.
	fired := e.conditions(&domain.TokenMetrics{NetFlow: 1.5, NetFlowOK: true})
	assert.True(t, fired[CondNetFlow])

	// Balanced flow does not.
	fired = e.conditions(&domain.TokenMetrics{NetFlow: 1.0, NetFlowOK: true})
	assert.False(t, fired[CondNetFlow])
}

func TestConditionsNoneFire(t *testing.T) {
	e := NewEngine(Options{Logger: zerolog.Nop()})

	fired := e.conditions(&domain.TokenMetrics{RSI: 50, RSIOK: true, NetFlow: 0.5, NetFlowOK: true})
	assert.Empty(t, fired)
}

func TestEngineEviction(t *testing.T) {
	f := newFixture(t, nil)
	f.tracker.OnSwap(testMint, &domain.SwapEvent{Mint: testMint, Timestamp: 1, PriceUSD: 1, VolumeUSD: 100})
	require.True(t, f.tracker.Has(testMint))

	f.engine.EvictAsync(testMint)

	// Queued evictions apply before the next event is folded in.
	other := "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	f.engine.Process(context.Background(), &domain.SwapEvent{
		Mint: other, Timestamp: 2, PriceUSD: 1, VolumeUSD: 50,
	})

	assert.False(t, f.tracker.Has(testMint))
	assert.True(t, f.tracker.Has(other))
}

func TestParseRequired(t *testing.T) {
	assert.Nil(t, ParseRequired(""))
	assert.Equal(t, []string{"volume_spike", "vol_5m"}, ParseRequired(" volume_spike , vol_5m "))
}
