package treasury

import (
	"sync"
	"time"

	"apex-trader/internal/domain"
)

// Tracker records the outcome of every broadcast transaction keyed by hash,
// so a disconnected caller's transfer remains queryable instead of being
// lost with the request.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]*domain.TransferStatus
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[string]*domain.TransferStatus),
	}
}

// MarkPending records a freshly broadcast transaction.
func (t *Tracker) MarkPending(txHash string) {
	t.set(&domain.TransferStatus{
		TxHash: txHash,
		Status: domain.TransferStatusPending,
	})
}

// MarkConfirmed records on-chain confirmation with its receipt.
func (t *Tracker) MarkConfirmed(txHash string, receipt *domain.TransferReceipt) {
	t.set(&domain.TransferStatus{
		TxHash:  txHash,
		Status:  domain.TransferStatusConfirmed,
		Receipt: receipt,
	})
}

// MarkFailed records a terminal failure.
func (t *Tracker) MarkFailed(txHash string, reason string) {
	t.set(&domain.TransferStatus{
		TxHash:    txHash,
		Status:    domain.TransferStatusFailed,
		FailedMsg: reason,
	})
}

// Get returns the tracked status for a transaction hash.
func (t *Tracker) Get(txHash string) (*domain.TransferStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.statuses[txHash]
	if !ok {
		return nil, false
	}
	copy := *status
	return &copy, true
}

// Pending returns the number of transactions still awaiting confirmation.
func (t *Tracker) Pending() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, status := range t.statuses {
		if status.Status == domain.TransferStatusPending {
			n++
		}
	}
	return n
}

func (t *Tracker) set(status *domain.TransferStatus) {
	status.UpdatedAt = time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[status.TxHash] = status
}
