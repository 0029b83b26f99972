package solana

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known mainnet addresses.
const (
	// USDCMint is the USDC token mint.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// WSOLMint is the wrapped SOL token mint.
	WSOLMint = "So11111111111111111111111111111111111111112"
	// RaydiumAMMV4 is the Raydium AMM v4 program.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// OrcaWhirlpool is the Orca Whirlpool program.
	OrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
)

// QuoteMints is the set of quote-side mints recognized in swap legs.
var QuoteMints = map[string]bool{
	USDCMint: true,
	WSOLMint: true,
}

// ValidMint reports whether addr decodes to a 32-byte public key.
func ValidMint(addr string) bool {
	b, err := base58.Decode(addr)
	return err == nil && len(b) == 32
}

// IsOnCurve reports whether addr is a valid ed25519 curve point. Wallet
// addresses are on-curve; PDAs are not.
func IsOnCurve(addr string) bool {
	b, err := base58.Decode(addr)
	if err != nil || len(b) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}
