package storage

import (
	"context"

	"solana-signal-pipeline/internal/domain"
)

// CatalogStore provides access to token_catalog storage.
type CatalogStore interface {
	// UpsertBatch upserts entries by (catalog_id, network) in one
	// transaction. Failure of any row aborts the whole batch.
	UpsertBatch(ctx context.Context, entries []*domain.CatalogEntry) error

	// FreshEntries returns entries for a network with updated_at > since
	// and a resolved (non-placeholder) mint.
	FreshEntries(ctx context.Context, network string, since int64) ([]*domain.CatalogEntry, error)

	// GetByMint retrieves an entry by mint. Returns ErrNotFound if absent.
	GetByMint(ctx context.Context, mint string) (*domain.CatalogEntry, error)

	// DeleteStale removes entries with updated_at < before.
	DeleteStale(ctx context.Context, before int64) (int64, error)
}

// PoolStore provides access to pools storage.
type PoolStore interface {
	// Upsert inserts a pool record; on conflict only non-null fields are
	// updated and first_seen_ts is preserved.
	Upsert(ctx context.Context, p *domain.PoolRecord) error

	// GetByMint retrieves a pool record. Returns ErrNotFound if absent.
	GetByMint(ctx context.Context, mint string) (*domain.PoolRecord, error)
}

// CandleStore provides access to one-minute OHLCV buckets.
type CandleStore interface {
	// IngestSwap merges a swap into its bucket: o set once on creation,
	// h/l extended, c replaced, v accumulated.
	IngestSwap(ctx context.Context, mint string, price, volUSD float64, ts int64) error

	// GetCandles returns the last n buckets ordered oldest to newest.
	GetCandles(ctx context.Context, mint string, n int) ([]*domain.Candle, error)

	// DeleteBefore removes buckets with bucket_ts < before.
	DeleteBefore(ctx context.Context, before int64) (int64, error)
}

// SignalStore provides access to the emitted-signal log.
type SignalStore interface {
	// Insert appends a signal with notified=false and returns its id.
	Insert(ctx context.Context, s *domain.Signal) (int64, error)

	// Unnotified returns signals with notified=false ordered by signal_ts ASC.
	Unnotified(ctx context.Context) ([]*domain.Signal, error)

	// MarkNotified sets notified=true for the given id.
	MarkNotified(ctx context.Context, id int64) error

	// DeleteBefore removes signals with signal_ts < before.
	DeleteBefore(ctx context.Context, before int64) (int64, error)
}

// CandleArchive is an optional analytic sink for ingested buckets.
// Archive failures must never block ingestion.
type CandleArchive interface {
	Append(ctx context.Context, c *domain.Candle) error
}

// Pinger reports backend liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
