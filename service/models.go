package service

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/polartar/vtvl-smartcontracts/vesting"
)

// Variant is the contract type behind an instance address.
type Variant uint8

const (
	VariantMerkleVesting Variant = iota + 1
	VariantSimpleMilestones
	VariantVestingMilestone
)

func (v Variant) String() string {
	switch v {
	case VariantMerkleVesting:
		return "merkle-vesting"
	case VariantSimpleMilestones:
		return "simple-milestones"
	case VariantVestingMilestone:
		return "vesting-milestone"
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

type InstanceInfo struct {
	Address   common.Address
	Variant   Variant
	Kind      uint8
	Token     common.Address
	Owner     common.Address
	Recipient common.Address
	Root      common.Hash
	CreatedAt uint64

	ReleaseIntervalSecs uint64
	VestingPeriod       uint64
	Milestones          []vesting.Milestone
}

type TokenInfo struct {
	Address common.Address
	Owner   common.Address
	Name    string
	Symbol  string
	Supply  *big.Int
}

type MilestoneInfo struct {
	Index int
	vesting.Milestone
	Vested    *big.Int
	Claimable *big.Int
}

type MilestoneRequest struct {
	Token           common.Address
	TotalAllocation *big.Int
	Percents        []uint64
	Recipient       common.Address

	// vesting milestone only
	ReleaseIntervalSecs uint64
	VestingPeriod       uint64
}

// Records below are what bbolt stores, msgpack encoded. Addresses, hashes
// and amounts are kept as strings.

type instanceRecord struct {
	Address   string  `msgpack:"address"`
	Variant   Variant `msgpack:"variant"`
	Kind      uint8   `msgpack:"kind"`
	Token     string  `msgpack:"token"`
	Owner     string  `msgpack:"owner"`
	Recipient string  `msgpack:"recipient,omitempty"`
	Root      string  `msgpack:"root,omitempty"`
	CreatedAt uint64  `msgpack:"created_at"`

	ReleaseIntervalSecs uint64            `msgpack:"release_interval_secs,omitempty"`
	VestingPeriod       uint64            `msgpack:"vesting_period,omitempty"`
	Milestones          []milestoneRecord `msgpack:"milestones,omitempty"`
}

type milestoneRecord struct {
	Percent     uint64 `msgpack:"percent"`
	Allocation  string `msgpack:"allocation"`
	Status      uint8  `msgpack:"status"`
	CompletedAt uint64 `msgpack:"completed_at"`
	Withdrawn   string `msgpack:"withdrawn"`
}

type claimRecord struct {
	Withdrawn     string `msgpack:"withdrawn"`
	Status        uint8  `msgpack:"status"`
	RevokedAt     uint64 `msgpack:"revoked_at,omitempty"`
	RevokedAmount string `msgpack:"revoked_amount,omitempty"`
}

type tokenRecord struct {
	Address string `msgpack:"address"`
	Owner   string `msgpack:"owner"`
	Name    string `msgpack:"name"`
	Symbol  string `msgpack:"symbol"`
	Supply  string `msgpack:"supply"`
}

func (r *instanceRecord) info() (InstanceInfo, error) {
	milestones, err := r.milestones()
	if err != nil {
		return InstanceInfo{}, err
	}
	info := InstanceInfo{
		Address:             common.HexToAddress(r.Address),
		Variant:             r.Variant,
		Kind:                r.Kind,
		Token:               common.HexToAddress(r.Token),
		Owner:               common.HexToAddress(r.Owner),
		CreatedAt:           r.CreatedAt,
		ReleaseIntervalSecs: r.ReleaseIntervalSecs,
		VestingPeriod:       r.VestingPeriod,
		Milestones:          milestones,
	}
	if r.Recipient != "" {
		info.Recipient = common.HexToAddress(r.Recipient)
	}
	if r.Root != "" {
		info.Root = common.HexToHash(r.Root)
	}
	return info, nil
}

func (r *instanceRecord) milestones() ([]vesting.Milestone, error) {
	if len(r.Milestones) == 0 {
		return nil, nil
	}
	out := make([]vesting.Milestone, len(r.Milestones))
	for i, m := range r.Milestones {
		alloc, err := parseAmount(m.Allocation)
		if err != nil {
			return nil, err
		}
		withdrawn, err := parseAmount(m.Withdrawn)
		if err != nil {
			return nil, err
		}
		out[i] = vesting.Milestone{
			Percent:     m.Percent,
			Allocation:  alloc,
			Status:      vesting.MilestoneStatus(m.Status),
			CompletedAt: m.CompletedAt,
			Withdrawn:   withdrawn,
		}
	}
	return out, nil
}

func (r *instanceRecord) setMilestones(ms []vesting.Milestone) {
	r.Milestones = make([]milestoneRecord, len(ms))
	for i, m := range ms {
		r.Milestones[i] = milestoneRecord{
			Percent:     m.Percent,
			Allocation:  formatAmount(m.Allocation),
			Status:      uint8(m.Status),
			CompletedAt: m.CompletedAt,
			Withdrawn:   formatAmount(m.Withdrawn),
		}
	}
}

func newClaimRecord(s vesting.ClaimState) claimRecord {
	return claimRecord{
		Withdrawn:     formatAmount(s.Withdrawn),
		Status:        uint8(s.Status),
		RevokedAt:     s.RevokedAt,
		RevokedAmount: formatAmount(s.RevokedAmount),
	}
}

func (r claimRecord) state() (vesting.ClaimState, error) {
	withdrawn, err := parseAmount(r.Withdrawn)
	if err != nil {
		return vesting.ClaimState{}, err
	}
	revoked, err := parseAmount(r.RevokedAmount)
	if err != nil {
		return vesting.ClaimState{}, err
	}
	return vesting.ClaimState{
		Withdrawn:     withdrawn,
		Status:        vesting.ClaimStatus(r.Status),
		RevokedAt:     r.RevokedAt,
		RevokedAmount: revoked,
	}, nil
}

func (r *tokenRecord) info() (TokenInfo, error) {
	supply, err := parseAmount(r.Supply)
	if err != nil {
		return TokenInfo{}, err
	}
	return TokenInfo{
		Address: common.HexToAddress(r.Address),
		Owner:   common.HexToAddress(r.Owner),
		Name:    r.Name,
		Symbol:  r.Symbol,
		Supply:  supply,
	}, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}
