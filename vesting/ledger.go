package vesting

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ClaimKey identifies withdrawal state. It outlives Merkle root rotations.
type ClaimKey struct {
	Recipient     common.Address
	ScheduleIndex uint64
}

func (k ClaimKey) String() string {
	return fmt.Sprintf("%s/%d", k.Recipient.Hex(), k.ScheduleIndex)
}

type ClaimStatus uint8

const (
	ClaimStatusActive ClaimStatus = iota
	ClaimStatusRevoked
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimStatusActive:
		return "active"
	case ClaimStatusRevoked:
		return "revoked"
	}
	return fmt.Sprintf("ClaimStatus(%d)", uint8(s))
}

// ClaimState is the mutable progress of one schedule. Withdrawn never
// decreases; once revoked, RevokedAt caps the time vesting is evaluated at.
type ClaimState struct {
	Withdrawn     *big.Int
	Status        ClaimStatus
	RevokedAt     uint64
	RevokedAmount *big.Int
}

func NewClaimState() ClaimState {
	return ClaimState{Withdrawn: new(big.Int), RevokedAmount: new(big.Int)}
}

func (c ClaimState) Revoked() bool {
	return c.Status == ClaimStatusRevoked
}

func (c ClaimState) Clone() ClaimState {
	return ClaimState{
		Withdrawn:     new(big.Int).Set(amountOrZero(c.Withdrawn)),
		Status:        c.Status,
		RevokedAt:     c.RevokedAt,
		RevokedAmount: new(big.Int).Set(amountOrZero(c.RevokedAmount)),
	}
}

// EffectiveTime clamps now to the revocation instant.
func (c ClaimState) EffectiveTime(now uint64) uint64 {
	if c.Revoked() && now > c.RevokedAt {
		return c.RevokedAt
	}
	return now
}

func (c ClaimState) revoke(at uint64, vested *big.Int) (ClaimState, error) {
	if c.Status != ClaimStatusActive {
		return c, ErrAlreadyRevoked
	}
	next := c.Clone()
	next.Status = ClaimStatusRevoked
	next.RevokedAt = at
	next.RevokedAmount = new(big.Int).Set(vested)
	return next, nil
}

func (c ClaimState) withdraw(amount *big.Int) ClaimState {
	next := c.Clone()
	next.Withdrawn.Add(next.Withdrawn, amount)
	return next
}

// ClaimLedger stores ClaimState per (recipient, scheduleIndex). Unknown keys
// read as a fresh active state.
type ClaimLedger interface {
	Claim(key ClaimKey) (ClaimState, error)
	SetClaim(key ClaimKey, state ClaimState) error
}

type MemoryLedger struct {
	mu     sync.RWMutex
	claims map[ClaimKey]ClaimState
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{claims: make(map[ClaimKey]ClaimState)}
}

func (l *MemoryLedger) Claim(key ClaimKey) (ClaimState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state, ok := l.claims[key]
	if !ok {
		return NewClaimState(), nil
	}
	return state.Clone(), nil
}

func (l *MemoryLedger) SetClaim(key ClaimKey, state ClaimState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.claims[key] = state.Clone()
	return nil
}

func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.claims)
}
