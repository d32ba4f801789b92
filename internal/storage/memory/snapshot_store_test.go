package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"apex-trader/internal/domain"
	"apex-trader/internal/storage"
)

func TestSnapshotStore_InsertAndRange(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < 5; i++ {
		snap := &domain.EarningsSnapshot{
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			TotalEarned: float64(i) * 100,
			TotalTrades: int64(i),
		}
		if err := store.Insert(ctx, snap); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	// Inclusive range covering snapshots 1..3.
	start := base.Add(1 * time.Minute).UnixMilli()
	end := base.Add(3 * time.Minute).UnixMilli()
	got, err := store.GetByTimeRange(ctx, start, end)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("snapshots not in ascending order")
		}
	}
	if got[0].TotalEarned != 100 {
		t.Errorf("wrong first snapshot: TotalEarned=%f", got[0].TotalEarned)
	}
}

func TestSnapshotStore_EmptyRange(t *testing.T) {
	store := NewSnapshotStore()

	got, err := store.GetByTimeRange(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestSnapshotStore_InvalidInput(t *testing.T) {
	store := NewSnapshotStore()

	err := store.Insert(context.Background(), nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSnapshotStore_ReturnsCopies(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	snap := &domain.EarningsSnapshot{
		Timestamp:   time.UnixMilli(1000),
		TotalEarned: 50,
	}
	if err := store.Insert(ctx, snap); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := store.GetByTimeRange(ctx, 0, 2000)
	got[0].TotalEarned = 999

	fresh, _ := store.GetByTimeRange(ctx, 0, 2000)
	if fresh[0].TotalEarned != 50 {
		t.Errorf("stored snapshot mutated through returned copy")
	}
}
