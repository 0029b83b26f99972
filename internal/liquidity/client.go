// Package liquidity probes real tradability through the swap aggregator's
// quote endpoint.
package liquidity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"solana-signal-pipeline/internal/solana"
)

// ProbeResult is the outcome of one liquidity probe.
type ProbeResult struct {
	// PriceImpactPct is the quoted price impact for the probe trade, in
	// percent.
	PriceImpactPct float64
	// LiquidityUSD is the pool depth estimated from the impact.
	LiquidityUSD float64
}

// Prober quotes a small probe trade into the token.
type Prober interface {
	Probe(ctx context.Context, mint string) (*ProbeResult, error)
}

// ClientOptions configures the quote client.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	// ProbeUSD is the notional probe size in USD.
	ProbeUSD float64
	Logger   zerolog.Logger
}

// Client is an HTTP Prober against the aggregator quote API.
type Client struct {
	baseURL  string
	http     *http.Client
	probeUSD float64
	log      zerolog.Logger
}

var _ Prober = (*Client)(nil)

// NewClient creates a quote client.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	probe := opts.ProbeUSD
	if probe == 0 {
		probe = 10
	}

	return &Client{
		baseURL:  opts.BaseURL,
		http:     httpClient,
		probeUSD: probe,
		log:      opts.Logger.With().Str("component", "liquidity").Logger(),
	}
}

// Probe quotes a USDC→mint trade of the configured probe size.
func (c *Client) Probe(ctx context.Context, mint string) (*ProbeResult, error) {
	// USDC has 6 decimals.
	amount := int64(c.probeUSD * 1e6)

	q := url.Values{
		"inputMint":  {solana.USDCMint},
		"outputMint": {mint},
		"amount":     {strconv.FormatInt(amount, 10)},
	}

	reqURL := c.baseURL + "/quote?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("quote %s: unexpected status %d", mint, resp.StatusCode)
	}

	var body struct {
		PriceImpactPct json.RawMessage `json:"priceImpactPct"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	impact, err := parseImpact(body.PriceImpactPct)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", mint, err)
	}

	return &ProbeResult{
		PriceImpactPct: impact,
		LiquidityUSD:   EstimateLiquidityUSD(impact),
	}, nil
}

// parseImpact accepts the impact field as either a JSON number or a
// quoted decimal string; the API has shipped both.
func parseImpact(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing priceImpactPct")
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unparseable priceImpactPct %q", raw)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable priceImpactPct %q", s)
	}
	return f, nil
}

// EstimateLiquidityUSD maps a probe price impact to a coarse pool-depth
// estimate.
func EstimateLiquidityUSD(impactPct float64) float64 {
	switch {
	case impactPct < 0.5:
		return 50_000
	case impactPct < 1:
		return 25_000
	case impactPct < 2:
		return 15_000
	case impactPct < 3:
		return 10_000
	default:
		return 5_000
	}
}
