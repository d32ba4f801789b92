package storage

import (
	"context"

	"apex-trader/internal/domain"
)

// ReceiptStore journals confirmed transfer receipts. Append-only.
type ReceiptStore interface {
	// Insert adds a receipt. Returns ErrDuplicateKey if the tx hash exists.
	Insert(ctx context.Context, r *domain.TransferReceipt) error

	// GetByTxHash retrieves a receipt by transaction hash.
	// Returns ErrNotFound if not exists.
	GetByTxHash(ctx context.Context, txHash string) (*domain.TransferReceipt, error)

	// GetRecent retrieves up to limit receipts, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.TransferReceipt, error)
}

// SnapshotStore persists periodic earnings snapshots. Append-only.
type SnapshotStore interface {
	// Insert adds a snapshot.
	Insert(ctx context.Context, s *domain.EarningsSnapshot) error

	// GetByTimeRange retrieves snapshots within [start, end] (inclusive,
	// unix ms), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.EarningsSnapshot, error)
}
