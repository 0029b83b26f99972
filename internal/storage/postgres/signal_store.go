package postgres

import (
	"context"
	"fmt"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Insert appends a signal with notified=false and returns its id.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.Signal) (int64, error) {
	query := `
		INSERT INTO signals (mint, symbol, signal_ts, ema_cross, vol_spike, rsi, reasons, notified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		sig.Mint, sig.Symbol, sig.SignalTS, sig.EMACross, sig.VolSpike, sig.RSI, sig.Reasons,
	).Scan(&id)
	if err != nil {
		return 0, classify(fmt.Errorf("insert signal: %w", err))
	}

	return id, nil
}

// Unnotified returns signals with notified=false ordered by signal_ts ASC.
func (s *SignalStore) Unnotified(ctx context.Context) ([]*domain.Signal, error) {
	query := `
		SELECT id, mint, symbol, signal_ts, ema_cross, vol_spike, rsi, reasons, notified
		FROM signals
		WHERE notified = FALSE
		ORDER BY signal_ts ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, classify(fmt.Errorf("query unnotified signals: %w", err))
	}
	defer rows.Close()

	var signals []*domain.Signal
	for rows.Next() {
		var sig domain.Signal
		err := rows.Scan(&sig.ID, &sig.Mint, &sig.Symbol, &sig.SignalTS,
			&sig.EMACross, &sig.VolSpike, &sig.RSI, &sig.Reasons, &sig.Notified)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		signals = append(signals, &sig)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate signal rows: %w", err))
	}

	return signals, nil
}

// MarkNotified sets notified=true for the given id.
func (s *SignalStore) MarkNotified(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE signals SET notified = TRUE WHERE id = $1`, id)
	if err != nil {
		return classify(fmt.Errorf("mark signal notified: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteBefore removes signals with signal_ts < before.
func (s *SignalStore) DeleteBefore(ctx context.Context, before int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE signal_ts < $1`, before)
	if err != nil {
		return 0, classify(fmt.Errorf("delete old signals: %w", err))
	}
	return tag.RowsAffected(), nil
}
