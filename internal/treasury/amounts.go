package treasury

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// EthToWei converts a float ETH amount to wei, truncating sub-wei precision.
func EthToWei(eth float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), big.NewFloat(params.Ether)).Int(nil)
	return wei
}

// WeiToEth converts wei to a float ETH amount.
func WeiToEth(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return eth
}
