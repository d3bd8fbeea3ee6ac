package vesting

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the asset capability handed to an instance. Transfer moves funds
// out of the instance's own balance; any error aborts the calling operation.
type Token interface {
	BalanceOf(holder common.Address) (*big.Int, error)
	Transfer(to common.Address, amount *big.Int) error
}
