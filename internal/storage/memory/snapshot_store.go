package memory

import (
	"context"
	"sort"
	"sync"

	"apex-trader/internal/domain"
	"apex-trader/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data []*domain.EarningsSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.EarningsSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *snap
	s.data = append(s.data, &copy)
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive, unix ms),
// ordered by timestamp ASC.
func (s *SnapshotStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.EarningsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EarningsSnapshot
	for _, snap := range s.data {
		ms := snap.Timestamp.UnixMilli()
		if ms >= start && ms <= end {
			copy := *snap
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}
