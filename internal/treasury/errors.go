package treasury

import (
	"errors"
	"fmt"
)

// Client-correctable validation errors, detected before any network call.
var (
	ErrInvalidAddress = errors.New("invalid destination address")
	ErrInvalidAmount  = errors.New("invalid amount: must be a positive number")
	ErrNoCredential   = errors.New("treasury credential not configured")
)

// GasUnfundedError means the treasury balance is below the minimum needed to
// operate at all. Carries the thresholds so the caller can remediate.
type GasUnfundedError struct {
	BalanceETH     float64
	MinRequiredETH float64
	RecommendedETH float64
}

func (e *GasUnfundedError) Error() string {
	return fmt.Sprintf("treasury needs gas funding: balance %.6f ETH, minimum %.2f ETH",
		e.BalanceETH, e.MinRequiredETH)
}

// InsufficientFundsError means the balance covers the gas minimum but not the
// requested amount plus the fee reserve.
type InsufficientFundsError struct {
	BalanceETH         float64
	RequestedETH       float64
	ReserveETH         float64
	MaxWithdrawableETH float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient treasury balance: have %.6f ETH, requested %.6f ETH + %.3f ETH reserve (max withdrawable %.6f ETH)",
		e.BalanceETH, e.RequestedETH, e.ReserveETH, e.MaxWithdrawableETH)
}

// SigningError is fatal for the request and never retried automatically;
// it indicates a credential or construction problem, not a network one.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign transaction: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// BroadcastError means the network rejected the submission. Retrying the same
// signed transaction is unsafe; the caller re-invokes the whole operation,
// which re-resolves the nonce.
type BroadcastError struct {
	Err error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast transaction: %v", e.Err)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}

// ConfirmationPendingError means the transaction was broadcast but no
// confirmation arrived within the bounded wait. The transaction may still
// land; the tracker keeps polling in the background and the outcome stays
// queryable by hash.
type ConfirmationPendingError struct {
	TxHash string
}

func (e *ConfirmationPendingError) Error() string {
	return fmt.Sprintf("transaction %s broadcast, confirmation still pending", e.TxHash)
}
