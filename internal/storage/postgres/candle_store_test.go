package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-pipeline/internal/domain"
)

func TestCandleStore_IngestSwapMergesBucket(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	base := domain.BucketTS(1_700_000_000)

	require.NoError(t, store.IngestSwap(ctx, testMint, 10, 100, base+1))
	require.NoError(t, store.IngestSwap(ctx, testMint, 14, 50, base+20))
	require.NoError(t, store.IngestSwap(ctx, testMint, 8, 25, base+59))

	got, err := store.GetCandles(ctx, testMint, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, base, c.BucketTS)
	assert.Equal(t, 10.0, c.Open)
	assert.Equal(t, 14.0, c.High)
	assert.Equal(t, 8.0, c.Low)
	assert.Equal(t, 8.0, c.Close)
	assert.InDelta(t, 175.0, c.VolumeUSD, 1e-9)
}

func TestCandleStore_ReplayKeepsShape(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	base := domain.BucketTS(1_700_000_000)
	require.NoError(t, store.IngestSwap(ctx, testMint, 10, 100, base))
	require.NoError(t, store.IngestSwap(ctx, testMint, 10, 100, base))

	got, err := store.GetCandles(ctx, testMint, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Same price replayed leaves o/h/l/c alone; volume accumulates.
	assert.Equal(t, 10.0, got[0].Open)
	assert.Equal(t, 10.0, got[0].High)
	assert.Equal(t, 10.0, got[0].Low)
	assert.Equal(t, 10.0, got[0].Close)
	assert.InDelta(t, 200.0, got[0].VolumeUSD, 1e-9)
}

func TestCandleStore_GetCandlesWindow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	base := domain.BucketTS(1_700_000_000)
	for i := 0; i < 10; i++ {
		require.NoError(t, store.IngestSwap(ctx, testMint, 1, 100, base+int64(i)*60))
	}

	got, err := store.GetCandles(ctx, testMint, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Last three buckets, oldest first.
	assert.Equal(t, base+7*60, got[0].BucketTS)
	assert.Equal(t, base+8*60, got[1].BucketTS)
	assert.Equal(t, base+9*60, got[2].BucketTS)
}

func TestCandleStore_DeleteBefore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	base := domain.BucketTS(1_700_000_000)
	for i := 0; i < 10; i++ {
		require.NoError(t, store.IngestSwap(ctx, testMint, 1, 100, base+int64(i)*60))
	}

	n, err := store.DeleteBefore(ctx, base+5*60)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	got, err := store.GetCandles(ctx, testMint, 100)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}
