// Package enrich resolves transaction signatures into parsed transfer
// detail via the enrichment HTTP API.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TokenTransfer is one token leg of a parsed transaction. TokenAmount is
// signed from the trader's perspective: negative means the trader paid
// that token out.
type TokenTransfer struct {
	Mint        string  `json:"mint"`
	TokenAmount float64 `json:"tokenAmount"`
	FromUser    string  `json:"fromUserAccount"`
	ToUser      string  `json:"toUserAccount"`
}

// Transaction is a parsed transaction from the enrichment API.
type Transaction struct {
	Signature      string          `json:"signature"`
	Timestamp      int64           `json:"timestamp"`
	FeePayer       string          `json:"feePayer"`
	TokenTransfers []TokenTransfer `json:"tokenTransfers"`
	TransactionErr interface{}     `json:"transactionError"`
}

// Enricher resolves a signature into its parsed transaction.
type Enricher interface {
	Enrich(ctx context.Context, signature string) (*Transaction, error)
}

// ClientOptions configures the enrichment client.
type ClientOptions struct {
	URL         string
	APIKey      string
	HTTPClient  *http.Client
	MaxRetries  int
	RetryDelay  time.Duration
	MinInterval time.Duration
	Logger      zerolog.Logger
}

// Client is an HTTP Enricher with retry and request pacing.
type Client struct {
	url        string
	apiKey     string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration

	minInterval time.Duration
	lastReqMu   sync.Mutex
	lastReq     time.Time

	log zerolog.Logger
}

var _ Enricher = (*Client)(nil)

// NewClient creates an enrichment client.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = 500 * time.Millisecond
	}

	return &Client{
		url:         opts.URL,
		apiKey:      opts.APIKey,
		http:        httpClient,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		minInterval: opts.MinInterval,
		log:         opts.Logger.With().Str("component", "enrich").Logger(),
	}
}

// Enrich fetches the parsed transaction for one signature.
func (c *Client) Enrich(ctx context.Context, signature string) (*Transaction, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string][]string{"transactions": {signature}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.url
	if c.apiKey != "" {
		url = fmt.Sprintf("%s?api-key=%s", c.url, c.apiKey)
	}

	var lastErr error
	delay := c.retryDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		txs, err := c.post(ctx, url, body)
		if err != nil {
			lastErr = err
			c.log.Debug().Err(err).Int("attempt", attempt).Str("signature", signature).
				Msg("enrich request failed")
			continue
		}
		if len(txs) == 0 {
			return nil, fmt.Errorf("transaction %s not found", signature)
		}
		return &txs[0], nil
	}

	return nil, fmt.Errorf("enrich %s: %w", signature, lastErr)
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var txs []Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return txs, nil
}

// pace enforces the minimum interval between requests. Cancellation while
// waiting returns the context error so no request is issued.
func (c *Client) pace(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}

	c.lastReqMu.Lock()
	now := time.Now()
	wait := c.minInterval - now.Sub(c.lastReq)
	if wait < 0 {
		wait = 0
	}
	// Reserve the slot this request will fire in.
	c.lastReq = now.Add(wait)
	c.lastReqMu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
