package treasury

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Credential is the holder signing key paired with its derived address.
// Loaded once at startup and immutable for the process lifetime.
// The private key is never exposed or logged.
type Credential struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewCredential parses a hex-encoded secp256k1 private key (0x prefix
// optional) and derives its address.
func NewCredential(hexKey string) (*Credential, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrNoCredential
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse treasury private key: %w", err)
	}

	return &Credential{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the derived public address.
func (c *Credential) Address() common.Address {
	return c.address
}

// SignTx signs a transaction locally with the EIP-155 signer for the given
// chain. No network dependency.
func (c *Credential) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewEIP155Signer(chainID), c.key)
}

// String identifies the credential by address only.
func (c *Credential) String() string {
	return c.address.Hex()
}
