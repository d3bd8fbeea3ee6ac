package vesting

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is emitted after an operation has applied its state change.
type Event interface {
	EventName() string
	Fields() map[string]any
}

type EventSink func(Event)

type RootUpdated struct {
	Contract common.Address
	OldRoot  common.Hash
	NewRoot  common.Hash
}

func (RootUpdated) EventName() string { return "RootUpdated" }

func (e RootUpdated) Fields() map[string]any {
	return map[string]any{"contract": e.Contract.Hex(), "old_root": e.OldRoot.Hex(), "new_root": e.NewRoot.Hex()}
}

type Withdrawn struct {
	Contract      common.Address
	Recipient     common.Address
	ScheduleIndex uint64
	Amount        *big.Int
}

func (Withdrawn) EventName() string { return "Withdrawn" }

func (e Withdrawn) Fields() map[string]any {
	return map[string]any{
		"contract":       e.Contract.Hex(),
		"recipient":      e.Recipient.Hex(),
		"schedule_index": e.ScheduleIndex,
		"amount":         e.Amount.String(),
	}
}

type ClaimRevoked struct {
	Contract      common.Address
	Recipient     common.Address
	ScheduleIndex uint64
	RevokedAt     uint64
	VestedAmount  *big.Int
}

func (ClaimRevoked) EventName() string { return "ClaimRevoked" }

func (e ClaimRevoked) Fields() map[string]any {
	return map[string]any{
		"contract":       e.Contract.Hex(),
		"recipient":      e.Recipient.Hex(),
		"schedule_index": e.ScheduleIndex,
		"revoked_at":     e.RevokedAt,
		"vested_amount":  e.VestedAmount.String(),
	}
}

type MilestoneCompleted struct {
	Contract    common.Address
	Index       int
	CompletedAt uint64
}

func (MilestoneCompleted) EventName() string { return "MilestoneCompleted" }

func (e MilestoneCompleted) Fields() map[string]any {
	return map[string]any{"contract": e.Contract.Hex(), "milestone": e.Index, "completed_at": e.CompletedAt}
}

type AdminWithdrawn struct {
	Contract common.Address
	To       common.Address
	Amount   *big.Int
}

func (AdminWithdrawn) EventName() string { return "AdminWithdrawn" }

func (e AdminWithdrawn) Fields() map[string]any {
	return map[string]any{"contract": e.Contract.Hex(), "to": e.To.Hex(), "amount": e.Amount.String()}
}
