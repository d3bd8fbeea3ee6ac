package vesting

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VestingMilestone starts a linear vesting window for each milestone when it
// is completed. All milestones share the release interval and period.
type VestingMilestone struct {
	*milestoneBook
	releaseIntervalSecs uint64
	vestingPeriod       uint64
}

func NewVestingMilestone(p MilestoneParams) (*VestingMilestone, error) {
	if p.ReleaseIntervalSecs == 0 {
		return nil, fmt.Errorf("%w: zero release interval", ErrInvalidSchedule)
	}
	if p.VestingPeriod < p.ReleaseIntervalSecs {
		return nil, fmt.Errorf("%w: vesting period shorter than release interval", ErrInvalidSchedule)
	}
	if p.VestingPeriod > maxUint40 {
		return nil, fmt.Errorf("%w: vesting period %d overflows uint40", ErrInvalidSchedule, p.VestingPeriod)
	}

	book, err := newMilestoneBook(p)
	if err != nil {
		return nil, err
	}
	return &VestingMilestone{
		milestoneBook:       book,
		releaseIntervalSecs: p.ReleaseIntervalSecs,
		vestingPeriod:       p.VestingPeriod,
	}, nil
}

func (c *VestingMilestone) ReleaseIntervalSecs() uint64 { return c.releaseIntervalSecs }
func (c *VestingMilestone) VestingPeriod() uint64       { return c.vestingPeriod }

// SetComplete requires the contract to already hold the milestone's
// allocation.
func (c *VestingMilestone) SetComplete(caller common.Address, i int) error {
	return c.complete(caller, i, func(m *Milestone) error {
		if c.transfer == nil {
			return fmt.Errorf("%w: no token bound", ErrNotDeposited)
		}
		balance, err := c.transfer.BalanceOf(c.address)
		if err != nil {
			return err
		}
		if balance.Cmp(m.Allocation) < 0 {
			return ErrNotDeposited
		}
		return nil
	})
}

func (c *VestingMilestone) VestedAmount(i int, ref uint64) (*big.Int, error) {
	m, err := c.at(i)
	if err != nil {
		return nil, err
	}
	return c.vested(*m, ref), nil
}

func (c *VestingMilestone) ClaimableAmount(i int) (*big.Int, error) {
	return c.claimable(i, c.vested)
}

func (c *VestingMilestone) Withdraw(caller common.Address, i int) (*big.Int, error) {
	return c.withdraw(caller, i, c.vested)
}

func (c *VestingMilestone) vested(m Milestone, ref uint64) *big.Int {
	if !m.Completed() {
		return new(big.Int)
	}
	start := m.CompletedAt
	end := start + c.vestingPeriod
	if end < start {
		end = math.MaxUint64
	}
	return LinearVestedAmount(m.Allocation, start, end, c.releaseIntervalSecs, ref)
}
