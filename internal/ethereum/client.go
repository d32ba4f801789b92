package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client defines the node RPC surface the treasury needs. *ethclient.Client
// satisfies it; tests use the stub package.
type Client interface {
	// BlockNumber returns the current chain head height. Used as the
	// liveness probe during endpoint acquisition.
	BlockNumber(ctx context.Context) (uint64, error)

	// BalanceAt returns the balance of an account in wei at the given block
	// (nil for latest).
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)

	// PendingNonceAt returns the next nonce including not-yet-confirmed
	// transactions.
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	// SuggestGasPrice returns the node's current gas price estimate.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// SendTransaction broadcasts a signed transaction.
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// TransactionReceipt returns the receipt of a mined transaction, or
	// ethereum.NotFound while it is still pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// Close releases the underlying connection.
	Close()
}

// Compile-time interface check against the real client.
var _ Client = (*ethclient.Client)(nil)

// DialFunc opens a connection to one endpoint. Injected into the Pool so
// tests can substitute stub clients for real dials.
type DialFunc func(ctx context.Context, endpoint string) (Client, error)

// Dial is the production DialFunc backed by go-ethereum's ethclient.
func Dial(ctx context.Context, endpoint string) (Client, error) {
	return ethclient.DialContext(ctx, endpoint)
}
