package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// IngestSwap merges a swap into its one-minute bucket. The open is set
// once on bucket creation; high/low extend, close replaces, volume
// accumulates. Applying the same swap twice leaves o/h/l/c unchanged and
// adds its volume again.
func (s *CandleStore) IngestSwap(ctx context.Context, mint string, price, volUSD float64, ts int64) error {
	query := `
		INSERT INTO candles (mint, bucket_ts, open, high, low, close, volume_usd)
		VALUES ($1, $2, $3, $3, $3, $3, $4)
		ON CONFLICT (mint, bucket_ts) DO UPDATE SET
			high       = GREATEST(candles.high, EXCLUDED.high),
			low        = LEAST(candles.low, EXCLUDED.low),
			close      = EXCLUDED.close,
			volume_usd = candles.volume_usd + EXCLUDED.volume_usd
	`

	_, err := s.pool.Exec(ctx, query, mint, domain.BucketTS(ts), price, volUSD)
	if err != nil {
		return classify(fmt.Errorf("ingest swap: %w", err))
	}
	return nil
}

// GetCandles returns the last n buckets ordered oldest to newest.
func (s *CandleStore) GetCandles(ctx context.Context, mint string, n int) ([]*domain.Candle, error) {
	query := `
		SELECT mint, bucket_ts, open, high, low, close, volume_usd
		FROM (
			SELECT mint, bucket_ts, open, high, low, close, volume_usd
			FROM candles
			WHERE mint = $1
			ORDER BY bucket_ts DESC
			LIMIT $2
		) recent
		ORDER BY bucket_ts ASC
	`

	rows, err := s.pool.Query(ctx, query, mint, n)
	if err != nil {
		return nil, classify(fmt.Errorf("get candles: %w", err))
	}
	defer rows.Close()

	return scanCandles(rows)
}

// DeleteBefore removes buckets with bucket_ts < before.
func (s *CandleStore) DeleteBefore(ctx context.Context, before int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM candles WHERE bucket_ts < $1`, before)
	if err != nil {
		return 0, classify(fmt.Errorf("delete old candles: %w", err))
	}
	return tag.RowsAffected(), nil
}

// scanCandles scans multiple rows into a slice of Candle.
func scanCandles(rows pgx.Rows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		err := rows.Scan(&c.Mint, &c.BucketTS, &c.Open, &c.High, &c.Low, &c.Close, &c.VolumeUSD)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate candle rows: %w", err))
	}

	return candles, nil
}
