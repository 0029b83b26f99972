package clickhouse

import (
	"context"
	"fmt"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// CandleArchive mirrors ingested buckets into ClickHouse for long-retention
// analytics. ReplacingMergeTree on (mint, bucket_ts) collapses re-ingested
// buckets to the latest version.
type CandleArchive struct {
	conn *Conn
}

// NewCandleArchive creates a new CandleArchive.
func NewCandleArchive(conn *Conn) *CandleArchive {
	return &CandleArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleArchive = (*CandleArchive)(nil)

// Bootstrap creates the archive table if absent. 90-day TTL.
func (a *CandleArchive) Bootstrap(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS candle_archive (
			mint       String,
			bucket_ts  UInt64,
			open       Float64,
			high       Float64,
			low        Float64,
			close      Float64,
			volume_usd Float64
		)
		ENGINE = ReplacingMergeTree
		ORDER BY (mint, bucket_ts)
		TTL toDateTime(bucket_ts) + INTERVAL 90 DAY
	`
	if err := a.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create candle_archive: %w", err)
	}
	return nil
}

// Append writes one bucket snapshot to the archive.
func (a *CandleArchive) Append(ctx context.Context, c *domain.Candle) error {
	query := `
		INSERT INTO candle_archive (mint, bucket_ts, open, high, low, close, volume_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err := a.conn.Exec(ctx, query,
		c.Mint, uint64(c.BucketTS), c.Open, c.High, c.Low, c.Close, c.VolumeUSD)
	if err != nil {
		return fmt.Errorf("append candle to archive: %w", err)
	}
	return nil
}
