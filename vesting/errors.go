package vesting

import "errors"

// Engine errors. Every failed operation leaves the instance unchanged.
var (
	ErrInvalidProof        = errors.New("invalid proof")
	ErrNothingToWithdraw   = errors.New("nothing to withdraw")
	ErrNoRecipient         = errors.New("caller is not the recipient")
	ErrNotCompleted        = errors.New("milestone not completed")
	ErrAlreadyCompleted    = errors.New("milestone already completed")
	ErrNotDeposited        = errors.New("milestone allocation not deposited")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrUnauthorized        = errors.New("caller is not the owner")
	ErrAlreadyRevoked      = errors.New("claim already revoked")
	ErrInvalidSchedule     = errors.New("invalid schedule")
	ErrInvalidMilestone    = errors.New("invalid milestone index")
	ErrInvalidPercents     = errors.New("invalid allocation percents")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTransferFailed      = errors.New("token transfer failed")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrClockRollback       = errors.New("clock cannot move backwards")
)
