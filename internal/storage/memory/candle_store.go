package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// CandleStore is an in-memory storage.CandleStore.
type CandleStore struct {
	mu      sync.RWMutex
	candles map[string]map[int64]*domain.Candle // mint -> bucket_ts -> candle
}

// NewCandleStore creates an empty in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{candles: make(map[string]map[int64]*domain.Candle)}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// IngestSwap merges a swap into its bucket per the candle merge rule.
func (s *CandleStore) IngestSwap(ctx context.Context, mint string, price, volUSD float64, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := domain.BucketTS(ts)
	byBucket, ok := s.candles[mint]
	if !ok {
		byBucket = make(map[int64]*domain.Candle)
		s.candles[mint] = byBucket
	}

	c, ok := byBucket[bucket]
	if !ok {
		byBucket[bucket] = &domain.Candle{
			Mint: mint, BucketTS: bucket,
			Open: price, High: price, Low: price, Close: price,
			VolumeUSD: volUSD,
		}
		return nil
	}

	c.Apply(price, volUSD)
	return nil
}

// GetCandles returns the last n buckets ordered oldest to newest.
func (s *CandleStore) GetCandles(ctx context.Context, mint string, n int) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byBucket := s.candles[mint]
	all := make([]*domain.Candle, 0, len(byBucket))
	for _, c := range byBucket {
		cp := *c
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].BucketTS < all[j].BucketTS })
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// DeleteBefore removes buckets with bucket_ts < before.
func (s *CandleStore) DeleteBefore(ctx context.Context, before int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for mint, byBucket := range s.candles {
		for ts := range byBucket {
			if ts < before {
				delete(byBucket, ts)
				deleted++
			}
		}
		if len(byBucket) == 0 {
			delete(s.candles, mint)
		}
	}
	return deleted, nil
}
