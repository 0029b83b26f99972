package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// SignalStore is an in-memory storage.SignalStore.
type SignalStore struct {
	mu      sync.RWMutex
	signals []*domain.Signal
	nextID  int64
}

// NewSignalStore creates an empty in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{nextID: 1}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Insert appends a signal with notified=false and returns its id.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.Signal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sig
	cp.ID = s.nextID
	cp.Notified = false
	s.nextID++
	s.signals = append(s.signals, &cp)
	return cp.ID, nil
}

// Unnotified returns signals with notified=false ordered by signal_ts ASC.
func (s *SignalStore) Unnotified(ctx context.Context) ([]*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Signal
	for _, sig := range s.signals {
		if !sig.Notified {
			cp := *sig
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SignalTS != out[j].SignalTS {
			return out[i].SignalTS < out[j].SignalTS
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarkNotified sets notified=true for the given id.
func (s *SignalStore) MarkNotified(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sig := range s.signals {
		if sig.ID == id {
			sig.Notified = true
			return nil
		}
	}
	return storage.ErrNotFound
}

// DeleteBefore removes signals with signal_ts < before.
func (s *SignalStore) DeleteBefore(ctx context.Context, before int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.signals[:0]
	var deleted int64
	for _, sig := range s.signals {
		if sig.SignalTS < before {
			deleted++
			continue
		}
		kept = append(kept, sig)
	}
	s.signals = kept
	return deleted, nil
}

// All returns every stored signal ordered by id. Test helper.
func (s *SignalStore) All() []*domain.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		cp := *sig
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
