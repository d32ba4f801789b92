package postgres

import (
	"context"
	"fmt"

	"apex-trader/internal/domain"
	"apex-trader/internal/storage"
)

// ReceiptStore implements storage.ReceiptStore using PostgreSQL.
type ReceiptStore struct {
	pool *Pool
}

// NewReceiptStore creates a new ReceiptStore.
func NewReceiptStore(pool *Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// Insert adds a receipt. Returns ErrDuplicateKey if the tx hash exists.
func (s *ReceiptStore) Insert(ctx context.Context, r *domain.TransferReceipt) error {
	if r == nil || r.TxHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transfer_receipts (
			id, tx_hash, block_number, from_address, to_address,
			amount_eth, gas_price_wei, confirmed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.TxHash, r.BlockNumber, r.From, r.To,
		r.AmountETH, r.GasPriceWei, r.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transfer receipt: %w", err)
	}
	return nil
}

// GetByTxHash retrieves a receipt by transaction hash.
// Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetByTxHash(ctx context.Context, txHash string) (*domain.TransferReceipt, error) {
	query := `
		SELECT
			id, tx_hash, block_number, from_address, to_address,
			amount_eth, gas_price_wei, confirmed_at
		FROM transfer_receipts
		WHERE tx_hash = $1
	`

	var r domain.TransferReceipt
	err := s.pool.QueryRow(ctx, query, txHash).Scan(
		&r.ID, &r.TxHash, &r.BlockNumber, &r.From, &r.To,
		&r.AmountETH, &r.GasPriceWei, &r.Timestamp,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transfer receipt: %w", err)
	}
	return &r, nil
}

// GetRecent retrieves up to limit receipts, newest first.
func (s *ReceiptStore) GetRecent(ctx context.Context, limit int) ([]*domain.TransferReceipt, error) {
	query := `
		SELECT
			id, tx_hash, block_number, from_address, to_address,
			amount_eth, gas_price_wei, confirmed_at
		FROM transfer_receipts
		ORDER BY confirmed_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query transfer receipts: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransferReceipt
	for rows.Next() {
		var r domain.TransferReceipt
		if err := rows.Scan(
			&r.ID, &r.TxHash, &r.BlockNumber, &r.From, &r.To,
			&r.AmountETH, &r.GasPriceWei, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan transfer receipt: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer receipts: %w", err)
	}
	return result, nil
}
