// Package catalog talks to the external token catalog API under a strict
// per-day request budget.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrBudgetExhausted is returned once the daily request budget is spent.
var ErrBudgetExhausted = fmt.Errorf("catalog daily request budget exhausted")

// CoinListing is one row of the full asset list.
type CoinListing struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Platforms map[string]string `json:"platforms"`
}

// PriceData is the market snapshot for one asset.
type PriceData struct {
	USD           float64 `json:"usd"`
	USDMarketCap  float64 `json:"usd_market_cap"`
	USD24hVol     float64 `json:"usd_24h_vol"`
	USD24hChange  float64 `json:"usd_24h_change"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}

// Source is the external catalog surface the universe manager consumes.
type Source interface {
	CoinList(ctx context.Context) ([]CoinListing, error)
	SimplePrices(ctx context.Context, ids []string) (map[string]PriceData, error)
}

// ClientOptions configures the catalog client.
type ClientOptions struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	MinInterval time.Duration
	MaxRetries  int
	DailyBudget int
	Logger      zerolog.Logger
}

// Client is a rate-limited, budget-enforcing catalog API client.
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	minInterval time.Duration
	maxRetries  int

	budgetMu    sync.Mutex
	dailyBudget int
	spent       int
	budgetDay   string // UTC date the counter belongs to
	lastReq     time.Time

	log zerolog.Logger
}

var _ Source = (*Client)(nil)

// NewClient creates a catalog client.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	minInterval := opts.MinInterval
	if minInterval == 0 {
		minInterval = 3 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	budget := opts.DailyBudget
	if budget == 0 {
		budget = 280
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		http:        httpClient,
		minInterval: minInterval,
		maxRetries:  maxRetries,
		dailyBudget: budget,
		log:         opts.Logger.With().Str("component", "catalog").Logger(),
	}
}

// CoinList fetches the full asset listing with platform contract addresses.
func (c *Client) CoinList(ctx context.Context) ([]CoinListing, error) {
	var out []CoinListing
	err := c.get(ctx, "/coins/list", url.Values{"include_platform": {"true"}}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SimplePrices fetches market snapshots for up to one batch of asset IDs.
func (c *Client) SimplePrices(ctx context.Context, ids []string) (map[string]PriceData, error) {
	if len(ids) == 0 {
		return map[string]PriceData{}, nil
	}

	q := url.Values{
		"ids":                     {strings.Join(ids, ",")},
		"vs_currencies":           {"usd"},
		"include_market_cap":      {"true"},
		"include_24hr_vol":        {"true"},
		"include_24hr_change":     {"true"},
		"include_last_updated_at": {"true"},
	}

	out := make(map[string]PriceData, len(ids))
	if err := c.get(ctx, "/simple/price", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Spent returns how many budget units the current UTC day has consumed.
func (c *Client) Spent() int {
	c.budgetMu.Lock()
	defer c.budgetMu.Unlock()
	c.rollBudgetDay(time.Now().UTC())
	return c.spent
}

// get performs a budgeted GET with pacing and 429 retry. Every attempt
// hits the provider, so every attempt spends a budget unit.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.reserve(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http get: %w", err)
			if attempt == c.maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (429)")
			if attempt == c.maxRetries {
				break
			}
			c.log.Warn().Str("path", path).Int("attempt", attempt).
				Msg("catalog rate limited, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(60 * time.Second):
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return fmt.Errorf("catalog %s: unexpected status %d", path, resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}

	return fmt.Errorf("catalog %s: %w", path, lastErr)
}

// reserve spends one budget unit and enforces the inter-request interval.
// Called once per HTTP attempt; the charge stands even when the attempt
// later fails, since it counted against the provider either way.
func (c *Client) reserve(ctx context.Context) error {
	c.budgetMu.Lock()
	now := time.Now().UTC()
	c.rollBudgetDay(now)

	if c.spent >= c.dailyBudget {
		c.budgetMu.Unlock()
		return ErrBudgetExhausted
	}
	c.spent++

	wait := c.minInterval - now.Sub(c.lastReq)
	if wait < 0 {
		wait = 0
	}
	// Reserve the slot this request will fire in.
	c.lastReq = now.Add(wait)
	c.budgetMu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

// rollBudgetDay resets the spend counter at the UTC day boundary.
// Caller holds budgetMu.
func (c *Client) rollBudgetDay(now time.Time) {
	day := now.Format("2006-01-02")
	if day != c.budgetDay {
		c.budgetDay = day
		c.spent = 0
	}
}
