// Package indicator holds the pure technical-indicator kernel. All inputs
// are read-only views; no I/O, no shared state.
package indicator

import (
	"solana-signal-pipeline/internal/domain"
)

// NetFlowAllBuys is the sentinel ratio returned when the window contains
// buys and no sells.
const NetFlowAllBuys = 1e9

// EMA returns the last exponential moving average over series.
// Seeded with the first value; p = 2/(period+1). ok=false when the series
// is shorter than period.
func EMA(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period {
		return 0, false
	}

	p := 2.0 / (float64(period) + 1.0)
	ema := series[0]
	for _, x := range series[1:] {
		ema = p*x + (1-p)*ema
	}
	return ema, true
}

// RSI returns the Wilder-smoothed relative strength index over series.
// Clamped to [0,100]; returns 100 when the average loss is zero.
// ok=false when len(series) < period+1.
func RSI(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(series); i++ {
		delta := series[i] - series[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	rsi := 100 - 100/(1+rs)
	if rsi < 0 {
		rsi = 0
	}
	if rsi > 100 {
		rsi = 100
	}
	return rsi, true
}

// ATR returns the Wilder-smoothed average true range over candles.
// ok=false when len(candles) < period+1.
func ATR(candles []domain.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(&candles[i], candles[i-1].Close))
	}

	var atr float64
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, true
}

// trueRange = max(h−l, |h−prevClose|, |l−prevClose|).
func trueRange(c *domain.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if hc := abs(c.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := abs(c.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// VolumeSpike is the ratio of the 5-minute volume to the scaled 30-minute
// average: vol5m / (avgVol30m * 5). Zero when the denominator is zero.
func VolumeSpike(vol5m, avgVol30m float64) float64 {
	denom := avgVol30m * 5
	if denom <= 0 {
		return 0
	}
	return vol5m / denom
}

// NetFlow is the buy/sell USD ratio over the window. All-buys windows
// return the NetFlowAllBuys sentinel with ok=true; windows with no flow at
// all return ok=false.
func NetFlow(buyUSD, sellUSD float64) (float64, bool) {
	if sellUSD > 0 {
		return buyUSD / sellUSD, true
	}
	if buyUSD > 0 {
		return NetFlowAllBuys, true
	}
	return 0, false
}

// EMABull reports whether the fast EMA(12) is above the slow EMA(26).
// False when the series is too short for the slow EMA.
func EMABull(series []float64) bool {
	fast, okFast := EMA(series, 12)
	slow, okSlow := EMA(series, 26)
	return okFast && okSlow && fast > slow
}

// AvgVolume returns the mean bucket volume over the last n candles.
// Zero when candles is empty.
func AvgVolume(candles []domain.Candle, n int) float64 {
	if len(candles) == 0 || n <= 0 {
		return 0
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}

	var sum float64
	for i := range candles {
		sum += candles[i].VolumeUSD
	}
	return sum / float64(len(candles))
}
