package domain

import "time"

// TransferRequest is a validated request to move funds from the treasury
// to a destination address.
type TransferRequest struct {
	To        string  // destination address, 0x-prefixed hex
	AmountETH float64 // positive, in ETH
}

// TransferReceipt is produced only after on-chain confirmation.
// Immutable once created.
type TransferReceipt struct {
	ID          string    `json:"id"`          // journal record id
	TxHash      string    `json:"txHash"`      // transaction hash
	BlockNumber uint64    `json:"blockNumber"` // confirming block
	From        string    `json:"from"`        // treasury address
	To          string    `json:"to"`          // recipient address
	AmountETH   float64   `json:"amountETH"`   // transferred amount
	GasPriceWei string    `json:"gasPriceWei"` // gas price the transaction was signed with
	Timestamp   time.Time `json:"timestamp"`   // confirmation time
}

// Transfer status codes reported by the confirmation tracker.
const (
	TransferStatusPending   = "PENDING"
	TransferStatusConfirmed = "CONFIRMED"
	TransferStatusFailed    = "FAILED"
)

// TransferStatus is the tracker's view of one broadcast transaction.
type TransferStatus struct {
	TxHash    string           `json:"txHash"`
	Status    string           `json:"status"`
	Receipt   *TransferReceipt `json:"receipt,omitempty"`
	FailedMsg string           `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
