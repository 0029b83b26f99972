// Package rolling maintains the bounded per-mint event windows the signal
// engine evaluates. A Tracker is owned by a single goroutine (the engine
// consumer) and is not safe for concurrent use.
package rolling

import (
	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/indicator"
)

const (
	// CandleCapacity bounds the per-mint candle window.
	CandleCapacity = 120
	// SwapCapacity bounds the per-mint swap history ring.
	SwapCapacity = 120

	// flowWindowSec is the short flow window.
	flowWindowSec int64 = 300
	// icebergMinUSD excludes dust swaps from the flow volume sums.
	icebergMinUSD = 50.0
	// depositMinUSD is the LP deposit size that arms the liquidity boost.
	depositMinUSD = 5000.0
	// boostWindowSec is how long a deposit keeps the boost armed.
	boostWindowSec int64 = 600
)

type swapRecord struct {
	ts     int64
	buyer  string
	isBuy  bool
	isSell bool
	usd    float64
}

// TokenState is the rolling window for one mint.
type TokenState struct {
	candles       []domain.Candle
	swaps         []swapRecord
	lastSignalTS  int64
	lastDepositTS int64
}

// Tracker owns all per-mint rolling state.
type Tracker struct {
	states map[string]*TokenState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*TokenState)}
}

// Has reports whether state exists for mint.
func (t *Tracker) Has(mint string) bool {
	_, ok := t.states[mint]
	return ok
}

// Len returns the number of tracked mints.
func (t *Tracker) Len() int {
	return len(t.states)
}

// Rebuild seeds the candle window for a mint from persisted buckets,
// oldest first. No-op when state already exists.
func (t *Tracker) Rebuild(mint string, candles []*domain.Candle) {
	if _, ok := t.states[mint]; ok {
		return
	}
	st := &TokenState{}
	start := 0
	if len(candles) > CandleCapacity {
		start = len(candles) - CandleCapacity
	}
	for _, c := range candles[start:] {
		st.candles = append(st.candles, *c)
	}
	t.states[mint] = st
}

// OnSwap applies one swap event to the mint's window.
func (t *Tracker) OnSwap(mint string, e *domain.SwapEvent) {
	st, ok := t.states[mint]
	if !ok {
		st = &TokenState{}
		t.states[mint] = st
	}

	// Deposit-only events carry no trade leg and must not touch candles.
	if e.PriceUSD > 0 {
		st.applyCandle(e)
		st.applySwap(e)
	}

	if e.DepositUSD > depositMinUSD {
		st.lastDepositTS = e.Timestamp
	}
}

// applyCandle merges the swap into the candle window, keeping bucket_ts
// non-decreasing. Late events for already-closed buckets fold into the
// newest bucket rather than reordering the series.
func (st *TokenState) applyCandle(e *domain.SwapEvent) {
	bucket := domain.BucketTS(e.Timestamp)

	if n := len(st.candles); n > 0 {
		last := &st.candles[n-1]
		if bucket <= last.BucketTS {
			last.Apply(e.PriceUSD, e.VolumeUSD)
			return
		}
	}

	st.candles = append(st.candles, domain.Candle{
		Mint: e.Mint, BucketTS: bucket,
		Open: e.PriceUSD, High: e.PriceUSD, Low: e.PriceUSD, Close: e.PriceUSD,
		VolumeUSD: e.VolumeUSD,
	})
	if len(st.candles) > CandleCapacity {
		st.candles = st.candles[len(st.candles)-CandleCapacity:]
	}
}

// applySwap pushes the swap onto the history ring, keeping ts
// non-decreasing.
func (st *TokenState) applySwap(e *domain.SwapEvent) {
	ts := e.Timestamp
	if n := len(st.swaps); n > 0 && ts < st.swaps[n-1].ts {
		ts = st.swaps[n-1].ts
	}

	st.swaps = append(st.swaps, swapRecord{
		ts:     ts,
		buyer:  e.Buyer,
		isBuy:  e.IsBuy,
		isSell: e.IsSell,
		usd:    e.VolumeUSD,
	})
	if len(st.swaps) > SwapCapacity {
		st.swaps = st.swaps[len(st.swaps)-SwapCapacity:]
	}
}

// Metrics computes the indicator snapshot for mint at time now.
// ok=false when no state exists.
func (t *Tracker) Metrics(mint string, now int64) (domain.TokenMetrics, bool) {
	st, ok := t.states[mint]
	if !ok {
		return domain.TokenMetrics{}, false
	}

	var m domain.TokenMetrics

	closes := indicator.Closes(st.candles)
	m.EMABull = indicator.EMABull(closes)
	m.RSI, m.RSIOK = indicator.RSI(closes, 14)
	m.ATR, _ = indicator.ATR(st.candles, 14)

	// Volume averages use completed buckets only; the in-progress bucket
	// would double-count the burst we are trying to detect.
	completed := st.candles
	if len(completed) > 0 && completed[len(completed)-1].BucketTS == domain.BucketTS(now) {
		completed = completed[:len(completed)-1]
	}
	m.AvgVol30m = indicator.AvgVolume(completed, 30)
	m.AvgVol60m = indicator.AvgVolume(completed, 60)

	cutoff := now - flowWindowSec
	buyers := make(map[string]struct{})
	for i := range st.swaps {
		s := &st.swaps[i]
		if s.ts < cutoff {
			continue
		}
		m.Vol5m += s.usd
		if s.buyer != "" {
			buyers[s.buyer] = struct{}{}
		}
		if s.usd < icebergMinUSD {
			continue
		}
		if s.isBuy {
			m.BuyVol5m += s.usd
		}
		if s.isSell {
			m.SellVol5m += s.usd
		}
	}
	m.UniqueBuyers = len(buyers)

	m.VolumeSpike = indicator.VolumeSpike(m.Vol5m, m.AvgVol30m)
	m.NetFlow, m.NetFlowOK = indicator.NetFlow(m.BuyVol5m, m.SellVol5m)
	m.LiquidityBoost = st.lastDepositTS > 0 && now-st.lastDepositTS < boostWindowSec

	return m, true
}

// LastSignalTS returns the cooldown anchor for mint, zero if none.
func (t *Tracker) LastSignalTS(mint string) int64 {
	if st, ok := t.states[mint]; ok {
		return st.lastSignalTS
	}
	return 0
}

// MarkSignal records an emitted signal time for cooldown.
func (t *Tracker) MarkSignal(mint string, ts int64) {
	if st, ok := t.states[mint]; ok {
		st.lastSignalTS = ts
	}
}

// Evict removes all state for mint.
func (t *Tracker) Evict(mint string) {
	delete(t.states, mint)
}

// CandleCount returns the current candle window length. Test helper.
func (t *Tracker) CandleCount(mint string) int {
	if st, ok := t.states[mint]; ok {
		return len(st.candles)
	}
	return 0
}

// SwapCount returns the current swap ring length. Test helper.
func (t *Tracker) SwapCount(mint string) int {
	if st, ok := t.states[mint]; ok {
		return len(st.swaps)
	}
	return 0
}

// Candles returns a copy of the candle window, oldest first. Test helper.
func (t *Tracker) Candles(mint string) []domain.Candle {
	st, ok := t.states[mint]
	if !ok {
		return nil
	}
	out := make([]domain.Candle, len(st.candles))
	copy(out, st.candles)
	return out
}
