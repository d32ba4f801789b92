package memory

import (
	"context"
	"sort"
	"sync"

	"apex-trader/internal/domain"
	"apex-trader/internal/storage"
)

// ReceiptStore is an in-memory implementation of storage.ReceiptStore.
type ReceiptStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransferReceipt // keyed by tx hash
}

// NewReceiptStore creates a new in-memory receipt store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		data: make(map[string]*domain.TransferReceipt),
	}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// Insert adds a receipt. Returns ErrDuplicateKey if the tx hash exists.
func (s *ReceiptStore) Insert(_ context.Context, r *domain.TransferReceipt) error {
	if r == nil || r.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.TxHash] = &copy
	return nil
}

// GetByTxHash retrieves a receipt by transaction hash.
func (s *ReceiptStore) GetByTxHash(_ context.Context, txHash string) (*domain.TransferReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[txHash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// GetRecent retrieves up to limit receipts, newest first.
func (s *ReceiptStore) GetRecent(_ context.Context, limit int) ([]*domain.TransferReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TransferReceipt, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}
