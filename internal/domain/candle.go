package domain

// CandleInterval is the bucket width in seconds.
const CandleInterval int64 = 60

// BucketTS truncates a unix-seconds timestamp to its candle bucket.
func BucketTS(ts int64) int64 {
	return ts - (ts % CandleInterval)
}

// Candle is a one-minute OHLCV aggregate for a mint.
// Corresponds to the candles table, primary key (mint, bucket_ts).
type Candle struct {
	Mint      string
	BucketTS  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	VolumeUSD float64 // cumulative USD volume in the bucket
}

// Apply merges a swap into the candle per the bucket merge rule.
func (c *Candle) Apply(price, volUSD float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.VolumeUSD += volUSD
}
