package domain

// SwapEvent is an enriched, per-mint swap observation dispatched from the
// ingestor to the signal engine. Immutable after construction.
type SwapEvent struct {
	Mint        string
	TxSignature string
	PriceUSD    float64
	VolumeUSD   float64
	Timestamp   int64  // unix seconds
	Buyer       string // fee payer when attributable, otherwise empty
	IsBuy       bool
	IsSell      bool
	DepositUSD  float64 // >0 when the transaction carried a large LP deposit
}
