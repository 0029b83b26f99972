package indicator

import "solana-signal-pipeline/internal/domain"

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Closes extracts the close series from candles, oldest first.
func Closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
