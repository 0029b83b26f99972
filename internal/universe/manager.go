// Package universe maintains the monitored token set with a layered
// freshness model: in-memory list first, then the store, then the
// external catalog as a last resort.
package universe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-signal-pipeline/internal/catalog"
	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/solana"
	"solana-signal-pipeline/internal/storage"
)

// Options configures the universe Manager.
type Options struct {
	Source catalog.Source
	Store  storage.CatalogStore
	Logger zerolog.Logger

	Network         string
	MemoryTTL       time.Duration // how long the in-memory list stays fresh
	FreshnessWindow time.Duration // store rows younger than this count as fresh
	MinFreshCount   int           // minimum fresh store rows to skip the external fetch
	BatchSize       int           // price batch size
	InterBatchDelay time.Duration
	MinLiquidityUSD float64
	MaxFDVUSD       float64

	// OnEvict is called for each mint dropped from the set on publish.
	OnEvict func(mint string)
}

// Manager owns the monitored token universe.
type Manager struct {
	source catalog.Source
	store  storage.CatalogStore
	log    zerolog.Logger
	opts   Options

	mu          sync.RWMutex
	entries     map[string]domain.CatalogEntry // keyed by mint
	refreshedAt time.Time
}

// NewManager creates a Manager. Source and Store are required.
func NewManager(opts Options) (*Manager, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("catalog source is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	if opts.Network == "" {
		opts.Network = "solana"
	}
	if opts.MemoryTTL == 0 {
		opts.MemoryTTL = 48 * time.Hour
	}
	if opts.FreshnessWindow == 0 {
		opts.FreshnessWindow = 24 * time.Hour
	}
	if opts.MinFreshCount == 0 {
		opts.MinFreshCount = 50
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 50
	}
	if opts.InterBatchDelay == 0 {
		opts.InterBatchDelay = 5 * time.Second
	}

	return &Manager{
		source:  opts.Source,
		store:   opts.Store,
		log:     opts.Logger.With().Str("component", "universe").Logger(),
		opts:    opts,
		entries: make(map[string]domain.CatalogEntry),
	}, nil
}

// SetOnEvict registers the eviction callback. Call before the first
// Refresh.
func (m *Manager) SetOnEvict(fn func(mint string)) {
	m.opts.OnEvict = fn
}

// Contains reports whether mint is in the monitored set.
func (m *Manager) Contains(mint string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[mint]
	return ok
}

// Get returns the catalog entry for mint, if monitored.
func (m *Manager) Get(mint string) (domain.CatalogEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[mint]
	return e, ok
}

// Monitored returns a snapshot of the monitored entries.
func (m *Manager) Monitored() []domain.CatalogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CatalogEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// Size returns the number of monitored mints.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RefreshedAt returns when the current set was published.
func (m *Manager) RefreshedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshedAt
}

// Refresh rebuilds the monitored set. Layer order: the in-memory list if
// still fresh, then fresh store rows, then the external catalog with
// write-through. An empty result never replaces a non-empty set.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	memFresh := len(m.entries) > 0 && time.Since(m.refreshedAt) < m.opts.MemoryTTL
	m.mu.RUnlock()

	if memFresh {
		m.log.Debug().Msg("universe still fresh in memory, skipping refresh")
		return nil
	}

	if m.refreshFromStore(ctx) {
		return nil
	}

	return m.refreshFromExternal(ctx)
}

// refreshFromStore publishes from the store when it holds enough fresh
// rows. Returns true on success.
func (m *Manager) refreshFromStore(ctx context.Context) bool {
	since := time.Now().Add(-m.opts.FreshnessWindow).Unix()
	rows, err := m.store.FreshEntries(ctx, m.opts.Network, since)
	if err != nil {
		m.log.Warn().Err(err).Msg("store freshness check failed")
		return false
	}
	if len(rows) < m.opts.MinFreshCount {
		m.log.Info().
			Int("fresh", len(rows)).
			Int("required", m.opts.MinFreshCount).
			Msg("store not fresh enough, falling back to external catalog")
		return false
	}

	kept := make([]domain.CatalogEntry, 0, len(rows))
	for _, r := range rows {
		if m.passesFilter(r) {
			kept = append(kept, *r)
		}
	}
	if len(kept) == 0 {
		return false
	}

	m.publish(kept)
	m.log.Info().Int("tokens", len(kept)).Msg("universe refreshed from store")
	return true
}

// refreshFromExternal walks the external catalog in budgeted batches,
// writing each batch through to the store as it lands.
func (m *Manager) refreshFromExternal(ctx context.Context) error {
	listings, err := m.source.CoinList(ctx)
	if err != nil {
		return fmt.Errorf("coin list: %w", err)
	}

	// Keep only assets with a valid contract on our network.
	type candidate struct {
		listing catalog.CoinListing
		mint    string
	}
	candidates := make([]candidate, 0)
	for _, l := range listings {
		mint, ok := l.Platforms[m.opts.Network]
		if !ok || !solana.ValidMint(mint) {
			continue
		}
		candidates = append(candidates, candidate{listing: l, mint: mint})
	}
	m.log.Info().
		Int("listed", len(listings)).
		Int("candidates", len(candidates)).
		Msg("external catalog listing fetched")

	var collected []domain.CatalogEntry
	now := time.Now().Unix()

	for start := 0; start < len(candidates); start += m.opts.BatchSize {
		end := start + m.opts.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		ids := make([]string, len(batch))
		byID := make(map[string]candidate, len(batch))
		for i, c := range batch {
			ids[i] = c.listing.ID
			byID[c.listing.ID] = c
		}

		prices, err := m.source.SimplePrices(ctx, ids)
		if err != nil {
			if errors.Is(err, catalog.ErrBudgetExhausted) {
				m.log.Warn().Int("collected", len(collected)).
					Msg("catalog budget exhausted, keeping partial universe")
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Warn().Err(err).Msg("price batch failed, skipping")
			continue
		}

		batchEntries := make([]*domain.CatalogEntry, 0, len(prices))
		for id, p := range prices {
			c, ok := byID[id]
			if !ok {
				continue
			}
			e := domain.CatalogEntry{
				CatalogID: id,
				Network:   m.opts.Network,
				Mint:      c.mint,
				Symbol:    c.listing.Symbol,
				Name:      c.listing.Name,
				PriceUSD:  p.USD,
				Volume24h: p.USD24hVol,
				MarketCap: p.USDMarketCap,
				UpdatedAt: now,
			}
			batchEntries = append(batchEntries, &e)
			if m.passesFilter(&e) {
				collected = append(collected, e)
			}
		}

		// Write-through per batch so a later crash loses at most one batch.
		if len(batchEntries) > 0 {
			if err := m.store.UpsertBatch(ctx, batchEntries); err != nil {
				m.log.Warn().Err(err).Msg("catalog write-through failed")
			}
		}

		if end < len(candidates) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.opts.InterBatchDelay):
			}
		}
	}

	if len(collected) == 0 {
		m.mu.RLock()
		existing := len(m.entries)
		m.mu.RUnlock()
		if existing > 0 {
			m.log.Warn().Msg("external refresh produced no tokens, keeping current universe")
			return nil
		}
		return fmt.Errorf("external refresh produced an empty universe")
	}

	m.publish(collected)
	m.log.Info().Int("tokens", len(collected)).Msg("universe refreshed from external catalog")
	return nil
}

// passesFilter applies the basic universe admission rule.
func (m *Manager) passesFilter(e *domain.CatalogEntry) bool {
	if e.PriceUSD <= 0 {
		return false
	}
	if !solana.ValidMint(e.Mint) {
		return false
	}
	if e.Volume24h < m.opts.MinLiquidityUSD {
		return false
	}
	if fdv := e.EffectiveFDV(); fdv > 0 && fdv > m.opts.MaxFDVUSD {
		return false
	}
	return true
}

// publish atomically swaps in the new set and fires eviction callbacks
// for mints that dropped out.
func (m *Manager) publish(entries []domain.CatalogEntry) {
	next := make(map[string]domain.CatalogEntry, len(entries))
	for _, e := range entries {
		next[e.Mint] = e
	}

	m.mu.Lock()
	var evicted []string
	for mint := range m.entries {
		if _, ok := next[mint]; !ok {
			evicted = append(evicted, mint)
		}
	}
	m.entries = next
	m.refreshedAt = time.Now()
	m.mu.Unlock()

	if m.opts.OnEvict != nil {
		for _, mint := range evicted {
			m.opts.OnEvict(mint)
		}
	}
	if len(evicted) > 0 {
		m.log.Info().Int("evicted", len(evicted)).Msg("tokens dropped from universe")
	}
}
