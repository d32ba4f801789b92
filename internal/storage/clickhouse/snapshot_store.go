package clickhouse

import (
	"context"
	"fmt"
	"time"

	"apex-trader/internal/domain"
	"apex-trader/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.EarningsSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO earnings_snapshots (
			timestamp_ms, total_earned, total_trades, hourly_rate,
			flash_loans_executed, gas_used_eth, active_strategies
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		snap.Timestamp.UnixMilli(), snap.TotalEarned, snap.TotalTrades, snap.HourlyRate,
		snap.FlashLoansExecuted, snap.GasUsedETH, int32(snap.ActiveStrategies),
	)
	if err != nil {
		return fmt.Errorf("insert earnings snapshot: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive, unix ms),
// ordered by timestamp ASC.
func (s *SnapshotStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.EarningsSnapshot, error) {
	query := `
		SELECT
			timestamp_ms, total_earned, total_trades, hourly_rate,
			flash_loans_executed, gas_used_eth, active_strategies
		FROM earnings_snapshots
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query earnings snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.EarningsSnapshot
	for rows.Next() {
		var (
			snap        domain.EarningsSnapshot
			timestampMs int64
			trades      int64
			flashLoans  int64
			active      int32
		)
		if err := rows.Scan(
			&timestampMs, &snap.TotalEarned, &trades, &snap.HourlyRate,
			&flashLoans, &snap.GasUsedETH, &active,
		); err != nil {
			return nil, fmt.Errorf("scan earnings snapshot: %w", err)
		}
		snap.Timestamp = time.UnixMilli(timestampMs).UTC()
		snap.TotalTrades = trades
		snap.FlashLoansExecuted = flashLoans
		snap.ActiveStrategies = int(active)
		result = append(result, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate earnings snapshots: %w", err)
	}
	return result, nil
}
