package vesting

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type MilestoneStatus uint8

const (
	MilestoneStatusPending MilestoneStatus = iota
	MilestoneStatusCompleted
)

func (s MilestoneStatus) String() string {
	switch s {
	case MilestoneStatusPending:
		return "pending"
	case MilestoneStatusCompleted:
		return "completed"
	}
	return fmt.Sprintf("MilestoneStatus(%d)", uint8(s))
}

// Milestone is one slice of a milestone contract's pool. It moves from
// pending to completed exactly once.
type Milestone struct {
	Percent     uint64
	Allocation  *big.Int
	Status      MilestoneStatus
	CompletedAt uint64
	Withdrawn   *big.Int
}

func (m Milestone) Completed() bool {
	return m.Status == MilestoneStatusCompleted
}

func (m Milestone) Clone() Milestone {
	return Milestone{
		Percent:     m.Percent,
		Allocation:  new(big.Int).Set(amountOrZero(m.Allocation)),
		Status:      m.Status,
		CompletedAt: m.CompletedAt,
		Withdrawn:   new(big.Int).Set(amountOrZero(m.Withdrawn)),
	}
}

func (m *Milestone) complete(at uint64) error {
	if m.Status != MilestoneStatusPending {
		return ErrAlreadyCompleted
	}
	m.Status = MilestoneStatusCompleted
	m.CompletedAt = at
	return nil
}

// Outstanding is the part of a completed milestone's allocation not yet paid.
func (m Milestone) Outstanding() *big.Int {
	if !m.Completed() {
		return new(big.Int)
	}
	out := new(big.Int).Sub(amountOrZero(m.Allocation), amountOrZero(m.Withdrawn))
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

// NewMilestones splits total by percents with floor division. Whatever the
// floors leave over stays unassigned.
func NewMilestones(total *big.Int, percents []uint64) ([]Milestone, error) {
	if total == nil || total.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total allocation must be positive", ErrInvalidAmount)
	}
	if len(percents) == 0 {
		return nil, fmt.Errorf("%w: no milestones", ErrInvalidPercents)
	}

	var sum uint64
	for i, p := range percents {
		if p == 0 {
			return nil, fmt.Errorf("%w: milestone %d has 0%%", ErrInvalidPercents, i)
		}
		sum += p
		if sum > 100 {
			return nil, fmt.Errorf("%w: percents sum above 100", ErrInvalidPercents)
		}
	}

	milestones := make([]Milestone, len(percents))
	for i, p := range percents {
		alloc := new(big.Int).Mul(total, new(big.Int).SetUint64(p))
		alloc.Quo(alloc, big.NewInt(100))
		milestones[i] = Milestone{Percent: p, Allocation: alloc, Withdrawn: new(big.Int)}
	}
	return milestones, nil
}

// MilestoneParams wires a milestone contract. ReleaseIntervalSecs and
// VestingPeriod only apply to VestingMilestone.
type MilestoneParams struct {
	Address   common.Address
	Token     common.Address
	Owner     common.Address
	Recipient common.Address

	Milestones          []Milestone
	ReleaseIntervalSecs uint64
	VestingPeriod       uint64

	Transfer Token
	Clock    Clock
	Events   EventSink
}

// milestoneBook holds what both milestone variants share: ownership, the
// single recipient and per-milestone progress.
type milestoneBook struct {
	address   common.Address
	token     common.Address
	owner     common.Address
	recipient common.Address

	milestones []Milestone

	transfer Token
	clock    Clock
	events   EventSink
}

func newMilestoneBook(p MilestoneParams) (*milestoneBook, error) {
	if p.Token == (common.Address{}) {
		return nil, fmt.Errorf("%w: token", ErrInvalidAddress)
	}
	if p.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner", ErrInvalidAddress)
	}
	if p.Recipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient", ErrInvalidAddress)
	}
	if len(p.Milestones) == 0 {
		return nil, fmt.Errorf("%w: no milestones", ErrInvalidPercents)
	}
	if p.Clock == nil {
		return nil, fmt.Errorf("milestone contract requires a clock")
	}

	milestones := make([]Milestone, len(p.Milestones))
	for i, m := range p.Milestones {
		milestones[i] = m.Clone()
	}

	return &milestoneBook{
		address:    p.Address,
		token:      p.Token,
		owner:      p.Owner,
		recipient:  p.Recipient,
		milestones: milestones,
		transfer:   p.Transfer,
		clock:      p.Clock,
		events:     p.Events,
	}, nil
}

func (b *milestoneBook) Address() common.Address      { return b.address }
func (b *milestoneBook) TokenAddress() common.Address { return b.token }
func (b *milestoneBook) Owner() common.Address        { return b.owner }
func (b *milestoneBook) Recipient() common.Address    { return b.recipient }
func (b *milestoneBook) Len() int                     { return len(b.milestones) }

func (b *milestoneBook) at(i int) (*Milestone, error) {
	if i < 0 || i >= len(b.milestones) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMilestone, i)
	}
	return &b.milestones[i], nil
}

func (b *milestoneBook) Milestone(i int) (Milestone, error) {
	m, err := b.at(i)
	if err != nil {
		return Milestone{}, err
	}
	return m.Clone(), nil
}

// Milestones returns a copy of every milestone, for persistence.
func (b *milestoneBook) Milestones() []Milestone {
	out := make([]Milestone, len(b.milestones))
	for i, m := range b.milestones {
		out[i] = m.Clone()
	}
	return out
}

func (b *milestoneBook) IsCompleted(i int) (bool, error) {
	m, err := b.at(i)
	if err != nil {
		return false, err
	}
	return m.Completed(), nil
}

// FinalVestedAmount is the milestone's full allocation.
func (b *milestoneBook) FinalVestedAmount(i int) (*big.Int, error) {
	m, err := b.at(i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.Allocation), nil
}

func (b *milestoneBook) complete(caller common.Address, i int, precheck func(*Milestone) error) error {
	if caller != b.owner {
		return ErrUnauthorized
	}
	m, err := b.at(i)
	if err != nil {
		return err
	}
	if m.Completed() {
		return ErrAlreadyCompleted
	}
	if precheck != nil {
		if err := precheck(m); err != nil {
			return err
		}
	}

	now := b.clock.Now()
	if err := m.complete(now); err != nil {
		return err
	}
	b.emit(MilestoneCompleted{Contract: b.address, Index: i, CompletedAt: now})
	return nil
}

type vestingFunc func(m Milestone, ref uint64) *big.Int

func (b *milestoneBook) claimable(i int, vested vestingFunc) (*big.Int, error) {
	m, err := b.at(i)
	if err != nil {
		return nil, err
	}
	if !m.Completed() {
		return new(big.Int), nil
	}
	out := vested(*m, b.clock.Now())
	out.Sub(out, amountOrZero(m.Withdrawn))
	if out.Sign() < 0 {
		return new(big.Int), nil
	}
	return out, nil
}

func (b *milestoneBook) withdraw(caller common.Address, i int, vested vestingFunc) (*big.Int, error) {
	m, err := b.at(i)
	if err != nil {
		return nil, err
	}
	if caller != b.recipient {
		return nil, ErrNoRecipient
	}
	if !m.Completed() {
		return nil, ErrNotCompleted
	}

	amount, err := b.claimable(i, vested)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if b.transfer == nil {
		return nil, fmt.Errorf("%w: no token bound", ErrTransferFailed)
	}

	prev := new(big.Int).Set(m.Withdrawn)
	e := effect{
		apply: func() error {
			m.Withdrawn = new(big.Int).Add(prev, amount)
			return nil
		},
		revert: func() error {
			m.Withdrawn = prev
			return nil
		},
	}
	if err := payout(e, b.transfer, b.recipient, amount); err != nil {
		return nil, err
	}

	b.emit(Withdrawn{Contract: b.address, Recipient: b.recipient, ScheduleIndex: uint64(i), Amount: new(big.Int).Set(amount)})
	return amount, nil
}

// WithdrawAdmin returns to the owner everything the contract holds beyond
// what completed milestones still owe the recipient.
func (b *milestoneBook) WithdrawAdmin(caller common.Address) (*big.Int, error) {
	if caller != b.owner {
		return nil, ErrUnauthorized
	}
	if b.transfer == nil {
		return nil, fmt.Errorf("%w: no token bound", ErrTransferFailed)
	}

	balance, err := b.transfer.BalanceOf(b.address)
	if err != nil {
		return nil, err
	}

	reserved := new(big.Int)
	for _, m := range b.milestones {
		reserved.Add(reserved, m.Outstanding())
	}

	amount := new(big.Int).Sub(balance, reserved)
	if amount.Sign() <= 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := b.transfer.Transfer(b.owner, amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	b.emit(AdminWithdrawn{Contract: b.address, To: b.owner, Amount: new(big.Int).Set(amount)})
	return amount, nil
}

func (b *milestoneBook) emit(e Event) {
	if b.events != nil {
		b.events(e)
	}
}
