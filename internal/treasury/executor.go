package treasury

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"apex-trader/internal/domain"
	"apex-trader/internal/observability"
	"apex-trader/internal/storage"
)

// Funding thresholds and transfer parameters, in ETH unless noted.
const (
	// MinGasETH is the minimum operational balance; below it no transfer or
	// simulated execution is accepted.
	MinGasETH = 0.01

	// RecommendedGasETH is the suggested deposit reported in remediation
	// hints.
	RecommendedGasETH = 0.05

	// GasReserveETH is withheld from every withdrawal so fees stay covered.
	GasReserveETH = 0.003

	// TransferGasLimit is the fixed gas limit of a plain value transfer.
	TransferGasLimit = 21000

	// DefaultConfirmWait bounds the synchronous confirmation wait; past it
	// the request returns pending and polling continues in the background.
	DefaultConfirmWait = 90 * time.Second

	// backgroundConfirmWait bounds the detached confirmation poll.
	backgroundConfirmWait = 15 * time.Minute

	// DefaultPollInterval is the initial receipt poll interval; subsequent
	// polls back off exponentially.
	DefaultPollInterval = 2 * time.Second
)

// Ledger adjusts the simulated book after a confirmed transfer.
type Ledger interface {
	// ApplyWithdrawal deducts the USD equivalent of the spent amount across
	// active positions.
	ApplyWithdrawal(amountETH float64)

	// AddGasUsed accounts the gas spent by a confirmed transfer.
	AddGasUsed(gasETH float64)
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Session      *Session
	Ledger       Ledger
	Receipts     storage.ReceiptStore
	Tracker      *Tracker
	Logger       *log.Logger
	ConfirmWait  time.Duration
	PollInterval time.Duration
}

// Executor owns the sign -> broadcast -> confirm sequence for treasury
// withdrawals. Invocations are serialized per credential so two requests can
// never sign with the same nonce.
type Executor struct {
	session      *Session
	ledger       Ledger
	receipts     storage.ReceiptStore
	tracker      *Tracker
	logger       *log.Logger
	confirmWait  time.Duration
	pollInterval time.Duration

	// serializes funding check through broadcast; the confirmation wait
	// runs outside the lock.
	sendMu chan struct{}
}

// NewExecutor creates a transfer executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	confirmWait := opts.ConfirmWait
	if confirmWait <= 0 {
		confirmWait = DefaultConfirmWait
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	e := &Executor{
		session:      opts.Session,
		ledger:       opts.Ledger,
		receipts:     opts.Receipts,
		tracker:      opts.Tracker,
		logger:       opts.Logger,
		confirmWait:  confirmWait,
		pollInterval: pollInterval,
		sendMu:       make(chan struct{}, 1),
	}
	return e
}

// Tracker exposes the confirmation tracker for status lookups.
func (e *Executor) Tracker() *Tracker {
	return e.tracker
}

// MaxWithdrawableETH is the spendable amount after the fee reserve, floored
// at zero.
func MaxWithdrawableETH(balanceETH float64) float64 {
	return math.Max(0, balanceETH-GasReserveETH)
}

// Withdraw runs the full transfer state machine and returns a receipt after
// one confirmation. A ConfirmationPendingError return means the transaction
// was broadcast and its outcome stays queryable through the tracker.
//
// Validation happens before any network call.
func (e *Executor) Withdraw(ctx context.Context, req domain.TransferRequest) (*domain.TransferReceipt, error) {
	if !common.IsHexAddress(req.To) {
		return nil, ErrInvalidAddress
	}
	if req.AmountETH <= 0 || math.IsNaN(req.AmountETH) || math.IsInf(req.AmountETH, 0) {
		return nil, ErrInvalidAmount
	}
	if !e.session.HasCredential() {
		return nil, ErrNoCredential
	}

	start := time.Now()
	signed, err := e.prepareAndBroadcast(ctx, req)
	if err != nil {
		observability.RecordWithdrawal("rejected", time.Since(start).Seconds())
		return nil, err
	}

	txHash := signed.Hash().Hex()
	e.tracker.MarkPending(txHash)
	e.logf("tx %s broadcast: %.6f ETH to %s (nonce %d)", txHash, req.AmountETH, req.To, signed.Nonce())

	receipt, err := e.awaitConfirmation(ctx, signed, req)
	if err != nil {
		return nil, err
	}
	observability.RecordWithdrawal("confirmed", time.Since(start).Seconds())
	return receipt, nil
}

// prepareAndBroadcast covers the Funding-Check, Fee-Resolution, Signing, and
// Broadcasting states under the per-credential lock. The nonce is resolved
// once per attempt inside the lock; the pending pool includes the broadcast
// transaction before the lock is released, so concurrent requests observe
// strictly increasing nonces.
func (e *Executor) prepareAndBroadcast(ctx context.Context, req domain.TransferRequest) (*types.Transaction, error) {
	select {
	case e.sendMu <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.sendMu }()

	balanceWei, err := e.session.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("query treasury balance: %w", err)
	}
	balance := WeiToEth(balanceWei)

	if balance < MinGasETH {
		return nil, &GasUnfundedError{
			BalanceETH:     balance,
			MinRequiredETH: MinGasETH,
			RecommendedETH: RecommendedGasETH,
		}
	}
	if balance < req.AmountETH+GasReserveETH {
		return nil, &InsufficientFundsError{
			BalanceETH:         balance,
			RequestedETH:       req.AmountETH,
			ReserveETH:         GasReserveETH,
			MaxWithdrawableETH: MaxWithdrawableETH(balance),
		}
	}

	gasPrice := e.session.GasPrice(ctx)
	nonce, err := e.session.PendingNonce(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve pending nonce: %w", err)
	}

	to := common.HexToAddress(req.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    EthToWei(req.AmountETH),
		Gas:      TransferGasLimit,
		GasPrice: gasPrice,
	})

	signed, err := e.session.Credential().SignTx(tx, e.session.ChainID())
	if err != nil {
		return nil, &SigningError{Err: err}
	}

	if err := e.session.SendTransaction(ctx, signed); err != nil {
		return nil, &BroadcastError{Err: err}
	}
	return signed, nil
}

// awaitConfirmation waits for one block inclusion within the bounded window.
// Past the window the transfer is still pending, never a silent failure: a
// detached poller keeps watching and records the outcome in the tracker.
func (e *Executor) awaitConfirmation(ctx context.Context, signed *types.Transaction, req domain.TransferRequest) (*domain.TransferReceipt, error) {
	ethReceipt, err := e.pollReceipt(ctx, signed.Hash(), e.confirmWait)
	if err == nil {
		return e.finalize(signed, req, ethReceipt)
	}

	e.logf("tx %s: no confirmation within %v, continuing in background (%v)",
		signed.Hash().Hex(), e.confirmWait, err)
	observability.RecordWithdrawal("pending", 0)

	// The broadcast already took effect; keep running to completion on an
	// independent context even if the caller has disconnected.
	go e.confirmDetached(signed, req)

	return nil, &ConfirmationPendingError{TxHash: signed.Hash().Hex()}
}

// confirmDetached finishes the confirmation wait after the original request
// has returned.
func (e *Executor) confirmDetached(signed *types.Transaction, req domain.TransferRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundConfirmWait)
	defer cancel()

	ethReceipt, err := e.pollReceipt(ctx, signed.Hash(), backgroundConfirmWait)
	if err != nil {
		// Ambiguous outcome: the transaction may still land. Leave the
		// tracker entry pending rather than calling it a failure.
		e.logf("tx %s: background confirmation gave up: %v", signed.Hash().Hex(), err)
		return
	}
	if _, err := e.finalize(signed, req, ethReceipt); err != nil {
		e.logf("tx %s: %v", signed.Hash().Hex(), err)
	}
}

// pollReceipt polls for the transaction receipt with exponential backoff
// until it appears or maxWait elapses.
func (e *Executor) pollReceipt(ctx context.Context, txHash common.Hash, maxWait time.Duration) (*types.Receipt, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.pollInterval
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = maxWait
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.1

	var receipt *types.Receipt
	op := func() error {
		r, err := e.session.TransactionReceipt(ctx, txHash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return receipt, nil
}

// finalize turns a mined receipt into a TransferReceipt, reconciles the
// simulated book, and journals the result. Journal failures are logged, not
// surfaced: the on-chain transfer already happened.
func (e *Executor) finalize(signed *types.Transaction, req domain.TransferRequest, ethReceipt *types.Receipt) (*domain.TransferReceipt, error) {
	txHash := signed.Hash().Hex()

	if ethReceipt.Status != types.ReceiptStatusSuccessful {
		e.tracker.MarkFailed(txHash, "transaction reverted on-chain")
		observability.RecordWithdrawal("reverted", 0)
		return nil, fmt.Errorf("transaction %s reverted on-chain", txHash)
	}

	receipt := &domain.TransferReceipt{
		ID:          uuid.NewString(),
		TxHash:      txHash,
		BlockNumber: ethReceipt.BlockNumber.Uint64(),
		From:        e.session.Address().Hex(),
		To:          req.To,
		AmountETH:   req.AmountETH,
		GasPriceWei: signed.GasPrice().String(),
		Timestamp:   time.Now().UTC(),
	}

	e.tracker.MarkConfirmed(txHash, receipt)
	observability.RecordWithdrawnETH(req.AmountETH)
	e.logf("tx %s confirmed in block %d", txHash, receipt.BlockNumber)

	if e.ledger != nil {
		e.ledger.ApplyWithdrawal(req.AmountETH)
		gasWei := new(big.Int).Mul(signed.GasPrice(), big.NewInt(TransferGasLimit))
		e.ledger.AddGasUsed(WeiToEth(gasWei))
	}

	if e.receipts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.receipts.Insert(ctx, receipt); err != nil {
			e.logf("journal receipt %s: %v", receipt.ID, err)
		}
	}

	return receipt, nil
}

func (e *Executor) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
