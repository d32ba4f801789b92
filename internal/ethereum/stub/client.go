package stub

import (
	"context"
	"math/big"
	"sync"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"apex-trader/internal/ethereum"
)

// Client implements ethereum.Client for testing. Fields configure responses;
// call counters let tests assert which RPC calls were (not) made.
type Client struct {
	mu sync.Mutex

	Balance  *big.Int
	Nonce    uint64
	GasPrice *big.Int
	Block    uint64
	Receipts map[common.Hash]*types.Receipt
	Sent     []*types.Transaction

	BalanceErr  error
	NonceErr    error
	GasPriceErr error
	SendErr     error
	BlockErr    error
	ReceiptErr  error

	BalanceCalls  int
	NonceCalls    int
	GasPriceCalls int
	SendCalls     int
	BlockCalls    int
	ReceiptCalls  int
	Closed        bool
}

// NewClient creates a stub client with an empty receipt store.
func NewClient() *Client {
	return &Client{
		Receipts: make(map[common.Hash]*types.Receipt),
	}
}

// Compile-time interface check.
var _ ethereum.Client = (*Client)(nil)

// BlockNumber returns the configured head height.
func (c *Client) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BlockCalls++
	if c.BlockErr != nil {
		return 0, c.BlockErr
	}
	return c.Block, nil
}

// BalanceAt returns the configured balance.
func (c *Client) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BalanceCalls++
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	return new(big.Int).Set(c.Balance), nil
}

// PendingNonceAt returns the configured nonce. Broadcasting advances it, the
// way a real pending pool would.
func (c *Client) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NonceCalls++
	if c.NonceErr != nil {
		return 0, c.NonceErr
	}
	return c.Nonce, nil
}

// SuggestGasPrice returns the configured gas price.
func (c *Client) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GasPriceCalls++
	if c.GasPriceErr != nil {
		return nil, c.GasPriceErr
	}
	return new(big.Int).Set(c.GasPrice), nil
}

// SendTransaction records the transaction and advances the pending nonce.
func (c *Client) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SendCalls++
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, tx)
	if tx.Nonce() >= c.Nonce {
		c.Nonce = tx.Nonce() + 1
	}
	return nil
}

// TransactionReceipt returns a configured receipt, or goethereum.NotFound
// while the transaction is considered pending.
func (c *Client) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReceiptCalls++
	if c.ReceiptErr != nil {
		return nil, c.ReceiptErr
	}
	receipt, ok := c.Receipts[txHash]
	if !ok {
		return nil, goethereum.NotFound
	}
	return receipt, nil
}

// Close marks the client closed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
}

// ConfirmSent adds a successful receipt at the given block for every
// broadcast transaction that does not have one yet.
func (c *Client) ConfirmSent(blockNumber uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.Sent {
		if _, ok := c.Receipts[tx.Hash()]; ok {
			continue
		}
		c.Receipts[tx.Hash()] = &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      tx.Hash(),
			BlockNumber: new(big.Int).SetUint64(blockNumber),
		}
	}
}

// FailSent adds a reverted receipt at the given block for every broadcast
// transaction that does not have one yet.
func (c *Client) FailSent(blockNumber uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.Sent {
		if _, ok := c.Receipts[tx.Hash()]; ok {
			continue
		}
		c.Receipts[tx.Hash()] = &types.Receipt{
			Status:      types.ReceiptStatusFailed,
			TxHash:      tx.Hash(),
			BlockNumber: new(big.Int).SetUint64(blockNumber),
		}
	}
}

// SendCount returns the number of broadcast attempts so far.
func (c *Client) SendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SendCalls
}

// SentNonces returns the nonces of all broadcast transactions in send order.
func (c *Client) SentNonces() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	nonces := make([]uint64, 0, len(c.Sent))
	for _, tx := range c.Sent {
		nonces = append(nonces, tx.Nonce())
	}
	return nonces
}
