package domain

// PoolRecord tracks the first observed pool initialization for a mint.
// Corresponds to the pools table, keyed by mint.
type PoolRecord struct {
	Mint        string
	FirstSeenTS int64    // unix seconds of first observed pool-init
	LiqUSD      *float64 // last known pool liquidity (nullable)
	FDVUSD      *float64 // last known FDV (nullable)
}
