package domain

// Signal is an emitted buy signal. Corresponds to the signals table,
// append-only with an autoincrement id.
type Signal struct {
	ID       int64
	Mint     string
	Symbol   string
	SignalTS int64 // unix seconds
	EMACross bool
	VolSpike float64
	RSI      float64
	Reasons  string // comma-separated names of the fired conditions
	Notified bool
}
