package liquidity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-pipeline/internal/solana"
)

const probeMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newTestProber(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(ClientOptions{
		BaseURL:  srv.URL,
		ProbeUSD: 10,
		Logger:   zerolog.Nop(),
	})
}

func TestProbeStringImpact(t *testing.T) {
	c := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, solana.USDCMint, r.URL.Query().Get("inputMint"))
		assert.Equal(t, probeMint, r.URL.Query().Get("outputMint"))
		assert.Equal(t, "10000000", r.URL.Query().Get("amount"))

		w.Write([]byte(`{"priceImpactPct":"0.3"}`))
	})

	got, err := c.Probe(context.Background(), probeMint)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got.PriceImpactPct, 1e-9)
	assert.Equal(t, 50_000.0, got.LiquidityUSD)
}

func TestProbeNumericImpact(t *testing.T) {
	c := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"priceImpactPct":1.7}`))
	})

	got, err := c.Probe(context.Background(), probeMint)
	require.NoError(t, err)
	assert.InDelta(t, 1.7, got.PriceImpactPct, 1e-9)
	assert.Equal(t, 15_000.0, got.LiquidityUSD)
}

func TestProbeErrorStatus(t *testing.T) {
	c := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no route", http.StatusBadRequest)
	})

	_, err := c.Probe(context.Background(), probeMint)
	assert.Error(t, err)
}

func TestProbeMissingImpact(t *testing.T) {
	c := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := c.Probe(context.Background(), probeMint)
	assert.Error(t, err)
}

func TestEstimateLiquidityUSD(t *testing.T) {
	tests := []struct {
		impact float64
		want   float64
	}{
		{0.1, 50_000},
		{0.49, 50_000},
		{0.5, 25_000},
		{0.99, 25_000},
		{1.0, 15_000},
		{1.99, 15_000},
		{2.0, 10_000},
		{2.99, 10_000},
		{3.0, 5_000},
		{12.5, 5_000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateLiquidityUSD(tt.impact), "impact %v", tt.impact)
	}
}
