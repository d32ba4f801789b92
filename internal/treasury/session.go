package treasury

import (
	"context"
	"errors"
	"log"
	"math/big"
	"sync"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker"

	"apex-trader/internal/ethereum"
	"apex-trader/internal/observability"
)

// Default configuration values.
const (
	DefaultCallTimeout = 5 * time.Second
	DefaultSendTimeout = 10 * time.Second

	// FallbackGasPriceWei is the conservative default applied when the fee
	// estimate query fails (25 gwei).
	FallbackGasPriceWei = 25_000_000_000

	// staleAfterConsecutiveFailures is the staleness policy: a single flaky
	// call is tolerated, two consecutive failures discard the handle and the
	// next call re-probes the endpoint pool.
	staleAfterConsecutiveFailures = 2
)

// Session wraps the active endpoint handle with the holder credential and
// exposes the account queries the transfer pipeline needs. The handle is
// acquired lazily and re-acquired after the per-handle circuit breaker trips.
type Session struct {
	pool        *ethereum.Pool
	cred        *Credential
	logger      *log.Logger
	chainID     *big.Int
	callTimeout time.Duration
	sendTimeout time.Duration

	mu      sync.Mutex
	handle  *ethereum.Handle
	breaker *gobreaker.CircuitBreaker
}

// NewSession creates a session over the endpoint pool. cred may be nil when
// the signing key is not configured; balance queries then fail with
// ErrNoCredential so callers can surface a remediation hint.
func NewSession(pool *ethereum.Pool, cred *Credential, logger *log.Logger) *Session {
	return &Session{
		pool:        pool,
		cred:        cred,
		logger:      logger,
		chainID:     big.NewInt(ethereum.MainnetChainID),
		callTimeout: DefaultCallTimeout,
		sendTimeout: DefaultSendTimeout,
	}
}

// HasCredential reports whether a signing key is configured.
func (s *Session) HasCredential() bool {
	return s.cred != nil
}

// Credential returns the holder credential, nil if unconfigured.
func (s *Session) Credential() *Credential {
	return s.cred
}

// Address returns the treasury address, zero if unconfigured.
func (s *Session) Address() common.Address {
	if s.cred == nil {
		return common.Address{}
	}
	return s.cred.Address()
}

// ChainID returns the chain the session signs for.
func (s *Session) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// Connected reports whether an endpoint handle is currently active.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Endpoint returns the active endpoint URL, empty if none.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return ""
	}
	return s.handle.Endpoint
}

// Balance returns the spendable treasury balance in wei.
func (s *Session) Balance(ctx context.Context) (*big.Int, error) {
	if s.cred == nil {
		return nil, ErrNoCredential
	}
	var balance *big.Int
	err := s.call(ctx, s.callTimeout, func(ctx context.Context, c ethereum.Client) error {
		var err error
		balance, err = c.BalanceAt(ctx, s.cred.Address(), nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// BalanceETH returns the treasury balance as a float ETH amount.
func (s *Session) BalanceETH(ctx context.Context) (float64, error) {
	wei, err := s.Balance(ctx)
	if err != nil {
		return 0, err
	}
	return WeiToEth(wei), nil
}

// PendingNonce returns the next transaction sequence number including
// not-yet-confirmed transactions.
func (s *Session) PendingNonce(ctx context.Context) (uint64, error) {
	if s.cred == nil {
		return 0, ErrNoCredential
	}
	var nonce uint64
	err := s.call(ctx, s.callTimeout, func(ctx context.Context, c ethereum.Client) error {
		var err error
		nonce, err = c.PendingNonceAt(ctx, s.cred.Address())
		return err
	})
	return nonce, err
}

// GasPrice returns the current fee estimate, falling back to the fixed
// conservative default when the query fails. Never fails the request.
func (s *Session) GasPrice(ctx context.Context) *big.Int {
	var price *big.Int
	err := s.call(ctx, s.callTimeout, func(ctx context.Context, c ethereum.Client) error {
		var err error
		price, err = c.SuggestGasPrice(ctx)
		return err
	})
	if err != nil || price == nil || price.Sign() <= 0 {
		s.logf("gas price query failed, using fallback: %v", err)
		return big.NewInt(FallbackGasPriceWei)
	}
	return price
}

// SendTransaction broadcasts a signed transaction.
func (s *Session) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return s.call(ctx, s.sendTimeout, func(ctx context.Context, c ethereum.Client) error {
		return c.SendTransaction(ctx, tx)
	})
}

// TransactionReceipt returns the receipt of a mined transaction.
// goethereum.NotFound passes through while the transaction is pending and
// does not count against the handle's circuit breaker.
func (s *Session) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := s.call(ctx, s.callTimeout, func(ctx context.Context, c ethereum.Client) error {
		var err error
		receipt, err = c.TransactionReceipt(ctx, txHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Close discards the active handle.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
		s.breaker = nil
		observability.SetConnected(false)
	}
}

// call runs one RPC call against the active handle through its circuit
// breaker, bounded by the given timeout. A tripped breaker discards the
// handle; the call is retried once against a freshly acquired one.
func (s *Session) call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, c ethereum.Client) error) error {
	for attempt := 0; attempt < 2; attempt++ {
		handle, breaker, err := s.acquire(ctx)
		if err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err = breaker.Execute(func() (interface{}, error) {
			return nil, fn(callCtx, handle.Client)
		})
		cancel()

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Handle already discarded by the state-change hook; re-probe.
			continue
		}
		return err
	}
	return ethereum.ErrUnavailable
}

// acquire returns the active handle, probing the pool if none is held.
func (s *Session) acquire(ctx context.Context) (*ethereum.Handle, *gobreaker.CircuitBreaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return s.handle, s.breaker, nil
	}

	handle, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.handle = handle
	s.breaker = s.newBreaker(handle)
	observability.SetConnected(true)
	return s.handle, s.breaker, nil
}

// newBreaker creates the per-handle circuit breaker. Opening it drops the
// handle so the next call re-probes the endpoint pool.
func (s *Session) newBreaker(handle *ethereum.Handle) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: handle.Endpoint,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= staleAfterConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, goethereum.NotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to != gobreaker.StateOpen {
				return
			}
			s.logf("endpoint %s marked stale (%v -> %v), discarding handle", name, from, to)
			s.discard(handle)
		},
	})
}

// discard drops the given handle if it is still the active one.
func (s *Session) discard(handle *ethereum.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == handle {
		s.handle.Close()
		s.handle = nil
		s.breaker = nil
		observability.RecordHandleDiscard()
		observability.SetConnected(false)
	}
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
