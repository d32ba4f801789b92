package treasury

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex-trader/internal/domain"
)

func TestTracker_Lifecycle(t *testing.T) {
	tracker := NewTracker()

	_, ok := tracker.Get("0xabc")
	assert.False(t, ok)

	tracker.MarkPending("0xabc")
	status, ok := tracker.Get("0xabc")
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusPending, status.Status)
	assert.Nil(t, status.Receipt)
	assert.False(t, status.UpdatedAt.IsZero())
	assert.Equal(t, 1, tracker.Pending())

	receipt := &domain.TransferReceipt{TxHash: "0xabc", BlockNumber: 7}
	tracker.MarkConfirmed("0xabc", receipt)
	status, ok = tracker.Get("0xabc")
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusConfirmed, status.Status)
	assert.Equal(t, uint64(7), status.Receipt.BlockNumber)
	assert.Zero(t, tracker.Pending())
}

func TestTracker_MarkFailed(t *testing.T) {
	tracker := NewTracker()

	tracker.MarkPending("0xdef")
	tracker.MarkFailed("0xdef", "transaction reverted on-chain")

	status, ok := tracker.Get("0xdef")
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusFailed, status.Status)
	assert.Equal(t, "transaction reverted on-chain", status.FailedMsg)
	assert.Zero(t, tracker.Pending())
}

func TestTracker_GetReturnsCopy(t *testing.T) {
	tracker := NewTracker()
	tracker.MarkPending("0x123")

	status, ok := tracker.Get("0x123")
	require.True(t, ok)
	status.Status = domain.TransferStatusFailed

	fresh, ok := tracker.Get("0x123")
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusPending, fresh.Status)
}
