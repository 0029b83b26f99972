package domain

// PlaceholderMint marks catalog entries whose mint address has not been
// resolved yet. Entries carrying it never enter the monitored set.
const PlaceholderMint = "pending"

// CatalogEntry represents one token in the external catalog.
// Corresponds to the token_catalog table, unique on (catalog_id, network).
type CatalogEntry struct {
	CatalogID string  // external catalog identifier
	Network   string  // chain network tag, e.g. "solana"
	Mint      string  // token mint address (base58)
	Symbol    string
	Name      string
	PriceUSD  float64
	Volume24h float64
	MarketCap float64
	FDV       float64
	UpdatedAt int64 // unix seconds of last catalog refresh
}

// EffectiveFDV returns FDV, falling back to market cap when the catalog
// does not report a fully diluted valuation.
func (e *CatalogEntry) EffectiveFDV() float64 {
	if e.FDV > 0 {
		return e.FDV
	}
	return e.MarketCap
}
