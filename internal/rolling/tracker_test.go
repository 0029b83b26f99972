package rolling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-pipeline/internal/domain"
)

const mint = "So11111111111111111111111111111111111111112"

func swapAt(ts int64, price, vol float64) *domain.SwapEvent {
	return &domain.SwapEvent{
		Mint:      mint,
		Timestamp: ts,
		PriceUSD:  price,
		VolumeUSD: vol,
		IsBuy:     true,
	}
}

func TestTrackerCandleWindowBounded(t *testing.T) {
	tr := NewTracker()

	base := int64(1_700_000_000)
	for i := 0; i < CandleCapacity+30; i++ {
		tr.OnSwap(mint, swapAt(base+int64(i)*60, 1.0, 100))
	}

	assert.Equal(t, CandleCapacity, tr.CandleCount(mint))

	candles := tr.Candles(mint)
	// Oldest buckets were evicted; newest survives.
	assert.Equal(t, domain.BucketTS(base+int64(CandleCapacity+29)*60), candles[len(candles)-1].BucketTS)
}

func TestTrackerSwapRingBounded(t *testing.T) {
	tr := NewTracker()

	base := int64(1_700_000_000)
	for i := 0; i < SwapCapacity+50; i++ {
		tr.OnSwap(mint, swapAt(base+int64(i), 1.0, 100))
	}

	assert.Equal(t, SwapCapacity, tr.SwapCount(mint))
}

func TestTrackerLateEventFoldsIntoNewestBucket(t *testing.T) {
	tr := NewTracker()

	base := int64(1_700_000_000)
	tr.OnSwap(mint, swapAt(base, 1.0, 100))
	tr.OnSwap(mint, swapAt(base+120, 2.0, 100))
	// Arrives late, belongs to an already-closed bucket.
	tr.OnSwap(mint, swapAt(base+30, 3.0, 50))

	candles := tr.Candles(mint)
	require.Len(t, candles, 2)

	last := candles[len(candles)-1]
	assert.Equal(t, domain.BucketTS(base+120), last.BucketTS)
	assert.Equal(t, 3.0, last.High)
	assert.Equal(t, 3.0, last.Close)
	assert.Equal(t, 150.0, last.VolumeUSD)

	// Series stays ordered.
	for i := 1; i < len(candles); i++ {
		assert.Greater(t, candles[i].BucketTS, candles[i-1].BucketTS)
	}
}

func TestTrackerRebuild(t *testing.T) {
	tr := NewTracker()

	seed := make([]*domain.Candle, CandleCapacity+10)
	for i := range seed {
		seed[i] = &domain.Candle{Mint: mint, BucketTS: int64(i * 60), Close: 1, VolumeUSD: 100}
	}
	tr.Rebuild(mint, seed)

	assert.Equal(t, CandleCapacity, tr.CandleCount(mint))

	// Rebuild is a no-op once state exists.
	tr.Rebuild(mint, seed[:1])
	assert.Equal(t, CandleCapacity, tr.CandleCount(mint))
}

func TestTrackerMetricsVolumeSpike(t *testing.T) {
	tr := NewTracker()

	base := domain.BucketTS(1_700_000_000)

	// 30 completed buckets of 1000 USD each, restored from the store.
	seed := make([]*domain.Candle, 30)
	for i := range seed {
		seed[i] = &domain.Candle{Mint: mint, BucketTS: base + int64(i)*60, Close: 1, VolumeUSD: 1000}
	}
	tr.Rebuild(mint, seed)

	// Burst of 15000 USD in the current bucket.
	now := base + 30*60
	tr.OnSwap(mint, swapAt(now, 1.0, 15000))

	m, ok := tr.Metrics(mint, now)
	require.True(t, ok)

	// The in-progress bucket is excluded from the baseline average.
	assert.InDelta(t, 1000.0, m.AvgVol30m, 1e-9)
	assert.InDelta(t, 3.0, m.VolumeSpike, 1e-9)
}

func TestTrackerFlowWindowAndIceberg(t *testing.T) {
	tr := NewTracker()
	now := int64(1_700_000_000)

	// Inside the 5-minute window.
	tr.OnSwap(mint, &domain.SwapEvent{Mint: mint, Timestamp: now - 100, PriceUSD: 1, VolumeUSD: 200, IsBuy: true, Buyer: "alice"})
	tr.OnSwap(mint, &domain.SwapEvent{Mint: mint, Timestamp: now - 50, PriceUSD: 1, VolumeUSD: 100, IsSell: true, Buyer: "bob"})
	// Dust: counts toward volume and buyers, not flow.
	tr.OnSwap(mint, &domain.SwapEvent{Mint: mint, Timestamp: now - 20, PriceUSD: 1, VolumeUSD: 10, IsBuy: true, Buyer: "carol"})

	m, ok := tr.Metrics(mint, now)
	require.True(t, ok)

	assert.InDelta(t, 310.0, m.Vol5m, 1e-9)
	assert.Equal(t, 3, m.UniqueBuyers)
	assert.InDelta(t, 200.0, m.BuyVol5m, 1e-9)
	assert.InDelta(t, 100.0, m.SellVol5m, 1e-9)
	assert.True(t, m.NetFlowOK)
	assert.InDelta(t, 2.0, m.NetFlow, 1e-9)
}

func TestTrackerFlowWindowExcludesOldSwaps(t *testing.T) {
	tr := NewTracker()
	now := int64(1_700_000_000)

	tr.OnSwap(mint, &domain.SwapEvent{Mint: mint, Timestamp: now - 400, PriceUSD: 1, VolumeUSD: 500, IsBuy: true, Buyer: "alice"})
	tr.OnSwap(mint, &domain.SwapEvent{Mint: mint, Timestamp: now - 10, PriceUSD: 1, VolumeUSD: 100, IsBuy: true, Buyer: "bob"})

	m, ok := tr.Metrics(mint, now)
	require.True(t, ok)

	assert.InDelta(t, 100.0, m.Vol5m, 1e-9)
	assert.Equal(t, 1, m.UniqueBuyers)
}

func TestTrackerLiquidityBoost(t *testing.T) {
	tr := NewTracker()
	now := int64(1_700_000_000)

	tr.OnSwap(mint, &domain.SwapEvent{Mint: mint, Timestamp: now, DepositUSD: 6000})

	m, ok := tr.Metrics(mint, now+300)
	require.True(t, ok)
	assert.True(t, m.LiquidityBoost)

	// Expired after the boost window.
	m, ok = tr.Metrics(mint, now+700)
	require.True(t, ok)
	assert.False(t, m.LiquidityBoost)
}

func TestTrackerDepositBelowThresholdDoesNotArm(t *testing.T) {
	tr := NewTracker()
	now := int64(1_700_000_000)

	tr.OnSwap(mint, &domain.SwapEvent{Mint: mint, Timestamp: now, DepositUSD: 4000})

	m, ok := tr.Metrics(mint, now+10)
	require.True(t, ok)
	assert.False(t, m.LiquidityBoost)
}

func TestTrackerDepositOnlyEventLeavesCandlesAlone(t *testing.T) {
	tr := NewTracker()
	now := int64(1_700_000_000)

	tr.OnSwap(mint, swapAt(now, 2.0, 100))
	tr.OnSwap(mint, &domain.SwapEvent{Mint: mint, Timestamp: now + 5, DepositUSD: 6000})

	candles := tr.Candles(mint)
	require.Len(t, candles, 1)
	assert.Equal(t, 2.0, candles[0].Low)
	assert.Equal(t, 100.0, candles[0].VolumeUSD)
}

func TestTrackerSignalCooldownAnchor(t *testing.T) {
	tr := NewTracker()
	now := int64(1_700_000_000)

	assert.Zero(t, tr.LastSignalTS(mint))

	tr.OnSwap(mint, swapAt(now, 1.0, 100))
	tr.MarkSignal(mint, now)
	assert.Equal(t, now, tr.LastSignalTS(mint))
}

func TestTrackerEvict(t *testing.T) {
	tr := NewTracker()

	tr.OnSwap(mint, swapAt(1_700_000_000, 1.0, 100))
	require.True(t, tr.Has(mint))

	tr.Evict(mint)
	assert.False(t, tr.Has(mint))
	assert.Zero(t, tr.Len())

	_, ok := tr.Metrics(mint, 1_700_000_100)
	assert.False(t, ok)
}

func TestTrackerMultipleMints(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < 5; i++ {
		m := fmt.Sprintf("mint-%d", i)
		tr.OnSwap(m, &domain.SwapEvent{Mint: m, Timestamp: 1_700_000_000, PriceUSD: 1, VolumeUSD: 100})
	}
	assert.Equal(t, 5, tr.Len())
}
