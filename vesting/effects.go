package vesting

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// effect is a ledger update that can be taken back.
type effect struct {
	apply  func() error
	revert func() error
}

// payout applies e, then transfers amount to recipient. State is written
// before the token is called so a reentrant call already sees it; a failed
// transfer reverts the state and the operation reports ErrTransferFailed.
func payout(e effect, token Token, to common.Address, amount *big.Int) error {
	if err := e.apply(); err != nil {
		return err
	}

	if err := token.Transfer(to, amount); err != nil {
		if rerr := e.revert(); rerr != nil {
			return errors.Join(fmt.Errorf("%w: %w", ErrTransferFailed, err), rerr)
		}
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// claimEffect swaps a ledger entry from prev to next.
func claimEffect(ledger ClaimLedger, key ClaimKey, prev, next ClaimState) effect {
	return effect{
		apply:  func() error { return ledger.SetClaim(key, next) },
		revert: func() error { return ledger.SetClaim(key, prev) },
	}
}
