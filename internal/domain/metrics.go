package domain

// TokenMetrics is a point-in-time snapshot of a mint's rolling indicators.
type TokenMetrics struct {
	EMABull      bool
	RSI          float64
	RSIOK        bool // false when the candle window is too short
	ATR          float64
	Vol5m        float64 // USD volume over the 5-minute swap window
	AvgVol30m    float64 // average completed-bucket volume, last 30 buckets
	AvgVol60m    float64 // average completed-bucket volume, last 60 buckets
	VolumeSpike  float64
	NetFlow      float64
	NetFlowOK    bool // false when the window had neither buys nor sells
	BuyVol5m     float64
	SellVol5m    float64
	UniqueBuyers int

	LiquidityBoost bool
}
