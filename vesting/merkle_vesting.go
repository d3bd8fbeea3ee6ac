package vesting

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/polartar/vtvl-smartcontracts/merkle"
)

// MerkleVestingParams wires a MerkleVesting instance to its collaborators.
type MerkleVestingParams struct {
	Address common.Address
	Token   common.Address
	Owner   common.Address
	Root    common.Hash

	Ledger   ClaimLedger
	Transfer Token
	Clock    Clock
	Events   EventSink
}

// MerkleVesting pays out schedules whitelisted by a Merkle root. Only the
// root is configured; schedules are presented with a proof on every call and
// withdrawal progress is kept in the ClaimLedger.
type MerkleVesting struct {
	address common.Address
	token   common.Address
	owner   common.Address
	root    common.Hash

	ledger   ClaimLedger
	transfer Token
	clock    Clock
	events   EventSink
}

func NewMerkleVesting(p MerkleVestingParams) (*MerkleVesting, error) {
	if p.Token == (common.Address{}) {
		return nil, fmt.Errorf("%w: token", ErrInvalidAddress)
	}
	if p.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner", ErrInvalidAddress)
	}
	if p.Ledger == nil || p.Clock == nil {
		return nil, fmt.Errorf("merkle vesting requires a ledger and a clock")
	}

	return &MerkleVesting{
		address:  p.Address,
		token:    p.Token,
		owner:    p.Owner,
		root:     p.Root,
		ledger:   p.Ledger,
		transfer: p.Transfer,
		clock:    p.Clock,
		events:   p.Events,
	}, nil
}

func (v *MerkleVesting) Address() common.Address      { return v.address }
func (v *MerkleVesting) TokenAddress() common.Address { return v.token }
func (v *MerkleVesting) Owner() common.Address        { return v.owner }
func (v *MerkleVesting) Root() common.Hash            { return v.root }

// SetMerkleRoot replaces the whitelist. Claim progress is not reset.
func (v *MerkleVesting) SetMerkleRoot(caller common.Address, root common.Hash) error {
	if caller != v.owner {
		return ErrUnauthorized
	}

	old := v.root
	v.root = root
	v.emit(RootUpdated{Contract: v.address, OldRoot: old, NewRoot: root})
	return nil
}

// Verify checks that s is a leaf under the current root. A schedule that
// cannot be a leaf fails with ErrInvalidProof as well as ErrInvalidSchedule.
func (v *MerkleVesting) Verify(s Schedule, proof []common.Hash) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	if v.root == (common.Hash{}) {
		return fmt.Errorf("%w: no root configured", ErrInvalidProof)
	}

	leaf, err := s.Leaf()
	if err != nil {
		return fmt.Errorf("%w: %w: %v", ErrInvalidProof, ErrInvalidSchedule, err)
	}
	if !merkle.Verify(proof, v.root, leaf) {
		return ErrInvalidProof
	}
	return nil
}

func (v *MerkleVesting) Claim(recipient common.Address, scheduleIndex uint64) (ClaimState, error) {
	return v.ledger.Claim(ClaimKey{Recipient: recipient, ScheduleIndex: scheduleIndex})
}

func (v *MerkleVesting) IsRevoked(recipient common.Address, scheduleIndex uint64) (bool, error) {
	state, err := v.Claim(recipient, scheduleIndex)
	if err != nil {
		return false, err
	}
	return state.Revoked(), nil
}

// VestedAmount evaluates s at ref, frozen at the revocation instant if the
// schedule has been revoked.
func (v *MerkleVesting) VestedAmount(s Schedule, ref uint64) (*big.Int, error) {
	state, err := v.ledger.Claim(s.Key())
	if err != nil {
		return nil, err
	}
	return VestedAmount(s, state.EffectiveTime(ref)), nil
}

func (v *MerkleVesting) FinalVestedAmount(s Schedule) *big.Int {
	return FinalVestedAmount(s)
}

func (v *MerkleVesting) ClaimableAmount(s Schedule) (*big.Int, error) {
	state, err := v.ledger.Claim(s.Key())
	if err != nil {
		return nil, err
	}
	return claimable(s, state, v.clock.Now()), nil
}

func claimable(s Schedule, state ClaimState, now uint64) *big.Int {
	vested := VestedAmount(s, state.EffectiveTime(now))
	out := vested.Sub(vested, amountOrZero(state.Withdrawn))
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

// Withdraw pays the recipient everything vested and not yet withdrawn.
func (v *MerkleVesting) Withdraw(caller common.Address, s Schedule, proof []common.Hash) (*big.Int, error) {
	if err := v.Verify(s, proof); err != nil {
		return nil, err
	}

	key := s.Key()
	state, err := v.ledger.Claim(key)
	if err != nil {
		return nil, err
	}

	amount := claimable(s, state, v.clock.Now())
	if amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if caller != s.Recipient {
		return nil, ErrNoRecipient
	}
	if v.transfer == nil {
		return nil, fmt.Errorf("%w: no token bound", ErrTransferFailed)
	}

	next := state.withdraw(amount)
	if err := payout(claimEffect(v.ledger, key, state, next), v.transfer, s.Recipient, amount); err != nil {
		return nil, err
	}

	v.emit(Withdrawn{Contract: v.address, Recipient: s.Recipient, ScheduleIndex: s.ScheduleIndex, Amount: new(big.Int).Set(amount)})
	return amount, nil
}

// RevokeClaim freezes the schedule at the current time. What has vested by
// then stays withdrawable.
func (v *MerkleVesting) RevokeClaim(caller common.Address, s Schedule, proof []common.Hash) (ClaimState, error) {
	if caller != v.owner {
		return ClaimState{}, ErrUnauthorized
	}
	if err := v.Verify(s, proof); err != nil {
		return ClaimState{}, err
	}

	key := s.Key()
	state, err := v.ledger.Claim(key)
	if err != nil {
		return ClaimState{}, err
	}

	now := v.clock.Now()
	next, err := state.revoke(now, VestedAmount(s, now))
	if err != nil {
		return ClaimState{}, err
	}
	if err := v.ledger.SetClaim(key, next); err != nil {
		return ClaimState{}, err
	}

	v.emit(ClaimRevoked{
		Contract:      v.address,
		Recipient:     s.Recipient,
		ScheduleIndex: s.ScheduleIndex,
		RevokedAt:     now,
		VestedAmount:  new(big.Int).Set(next.RevokedAmount),
	})
	return next, nil
}

func (v *MerkleVesting) emit(e Event) {
	if v.events != nil {
		v.events(e)
	}
}
