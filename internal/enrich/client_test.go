package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnricher(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(ClientOptions{
		URL:        srv.URL,
		APIKey:     "test-key",
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Logger:     zerolog.Nop(),
	})
}

func TestEnrich(t *testing.T) {
	c := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.URL.Query().Get("api-key"))

		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"sig123"}, body["transactions"])

		w.Write([]byte(`[{
			"signature": "sig123",
			"timestamp": 1700000000,
			"feePayer": "payer",
			"tokenTransfers": [
				{"mint": "mintA", "tokenAmount": -500.5},
				{"mint": "mintB", "tokenAmount": 1000}
			]
		}]`))
	})

	tx, err := c.Enrich(context.Background(), "sig123")
	require.NoError(t, err)
	assert.Equal(t, "sig123", tx.Signature)
	assert.Equal(t, int64(1_700_000_000), tx.Timestamp)
	require.Len(t, tx.TokenTransfers, 2)
	assert.InDelta(t, -500.5, tx.TokenTransfers[0].TokenAmount, 1e-9)
}

func TestEnrichRetriesTransientFailure(t *testing.T) {
	calls := 0
	c := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream busy", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"signature":"sig123","timestamp":1700000000}]`))
	})

	tx, err := c.Enrich(context.Background(), "sig123")
	require.NoError(t, err)
	assert.Equal(t, "sig123", tx.Signature)
	assert.Equal(t, 2, calls)
}

func TestEnrichNotFound(t *testing.T) {
	c := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := c.Enrich(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestEnrichCancelledWhilePacing(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"signature":"sig1","timestamp":1700000000}]`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientOptions{
		URL:         srv.URL,
		MinInterval: time.Hour,
		Logger:      zerolog.Nop(),
	})

	_, err := c.Enrich(context.Background(), "sig1")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// The second call would wait out the interval; cancellation must skip
	// the request entirely.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Enrich(ctx, "sig2")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestEnrichExhaustsRetries(t *testing.T) {
	calls := 0
	c := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_, err := c.Enrich(context.Background(), "sig123")
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
