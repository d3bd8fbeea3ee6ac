package vesting

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SimpleMilestone releases a milestone's whole allocation the moment the
// owner marks it complete.
type SimpleMilestone struct {
	*milestoneBook
}

func NewSimpleMilestone(p MilestoneParams) (*SimpleMilestone, error) {
	book, err := newMilestoneBook(p)
	if err != nil {
		return nil, err
	}
	return &SimpleMilestone{milestoneBook: book}, nil
}

func (c *SimpleMilestone) SetComplete(caller common.Address, i int) error {
	return c.complete(caller, i, nil)
}

func (c *SimpleMilestone) VestedAmount(i int, ref uint64) (*big.Int, error) {
	m, err := c.at(i)
	if err != nil {
		return nil, err
	}
	return simpleVested(*m, ref), nil
}

func (c *SimpleMilestone) ClaimableAmount(i int) (*big.Int, error) {
	return c.claimable(i, simpleVested)
}

func (c *SimpleMilestone) Withdraw(caller common.Address, i int) (*big.Int, error) {
	return c.withdraw(caller, i, simpleVested)
}

func simpleVested(m Milestone, ref uint64) *big.Int {
	if !m.Completed() || ref < m.CompletedAt {
		return new(big.Int)
	}
	return new(big.Int).Set(m.Allocation)
}
