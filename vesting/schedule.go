package vesting

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/polartar/vtvl-smartcontracts/merkle"
)

const maxUint40 = 1<<40 - 1

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// LeafEncoding is the field order committed to by whitelist trees.
var LeafEncoding = []string{
	"uint40",  // startTimestamp
	"uint40",  // endTimestamp
	"uint40",  // cliffReleaseTimestamp
	"uint40",  // releaseIntervalSecs
	"uint40",  // scheduleIndex
	"uint256", // linearVestAmount
	"uint256", // cliffAmount
	"address", // recipient
}

var scheduleEncoding = merkle.MustNewEncoding(LeafEncoding)

// ScheduleEncoding returns the leaf encoding for schedules.
func ScheduleEncoding() *merkle.Encoding {
	return scheduleEncoding
}

// Schedule is a cliff plus linear vesting commitment for one recipient.
// The same recipient may hold several schedules told apart by ScheduleIndex.
type Schedule struct {
	Recipient             common.Address `json:"recipient"`
	StartTimestamp        uint64         `json:"startTimestamp"`
	EndTimestamp          uint64         `json:"endTimestamp"`
	CliffReleaseTimestamp uint64         `json:"cliffReleaseTimestamp"`
	ReleaseIntervalSecs   uint64         `json:"releaseIntervalSecs"`
	ScheduleIndex         uint64         `json:"scheduleIndex"`
	LinearVestAmount      *big.Int       `json:"linearVestAmount"`
	CliffAmount           *big.Int       `json:"cliffAmount"`
}

func (s Schedule) Key() ClaimKey {
	return ClaimKey{Recipient: s.Recipient, ScheduleIndex: s.ScheduleIndex}
}

func (s Schedule) Validate() error {
	if s.Recipient == (common.Address{}) {
		return fmt.Errorf("%w: zero recipient", ErrInvalidSchedule)
	}
	if s.StartTimestamp > s.EndTimestamp {
		return fmt.Errorf("%w: start %d after end %d", ErrInvalidSchedule, s.StartTimestamp, s.EndTimestamp)
	}
	if s.ReleaseIntervalSecs == 0 {
		return fmt.Errorf("%w: zero release interval", ErrInvalidSchedule)
	}
	for _, v := range []uint64{s.StartTimestamp, s.EndTimestamp, s.CliffReleaseTimestamp, s.ReleaseIntervalSecs, s.ScheduleIndex} {
		if v > maxUint40 {
			return fmt.Errorf("%w: %d overflows uint40", ErrInvalidSchedule, v)
		}
	}
	for _, v := range []*big.Int{s.LinearVestAmount, s.CliffAmount} {
		if v == nil || v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
			return fmt.Errorf("%w: amount out of range", ErrInvalidSchedule)
		}
	}
	return nil
}

// LeafValues returns the schedule fields in LeafEncoding order.
func (s Schedule) LeafValues() []any {
	return []any{
		new(big.Int).SetUint64(s.StartTimestamp),
		new(big.Int).SetUint64(s.EndTimestamp),
		new(big.Int).SetUint64(s.CliffReleaseTimestamp),
		new(big.Int).SetUint64(s.ReleaseIntervalSecs),
		new(big.Int).SetUint64(s.ScheduleIndex),
		amountOrZero(s.LinearVestAmount),
		amountOrZero(s.CliffAmount),
		s.Recipient,
	}
}

func (s Schedule) Leaf() (common.Hash, error) {
	return scheduleEncoding.LeafHash(s.LeafValues())
}

// ScheduleFromValues rebuilds a schedule from a committed tree value.
func ScheduleFromValues(values []any) (Schedule, error) {
	if len(values) != len(LeafEncoding) {
		return Schedule{}, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidSchedule, len(LeafEncoding), len(values))
	}

	ints := make([]*big.Int, 7)
	for i := range ints {
		n, ok := values[i].(*big.Int)
		if !ok {
			return Schedule{}, fmt.Errorf("%w: field %d is %T", ErrInvalidSchedule, i, values[i])
		}
		ints[i] = n
	}
	recipient, ok := values[7].(common.Address)
	if !ok {
		return Schedule{}, fmt.Errorf("%w: recipient is %T", ErrInvalidSchedule, values[7])
	}
	for i := 0; i < 5; i++ {
		if !ints[i].IsUint64() {
			return Schedule{}, fmt.Errorf("%w: field %d out of range", ErrInvalidSchedule, i)
		}
	}

	return Schedule{
		Recipient:             recipient,
		StartTimestamp:        ints[0].Uint64(),
		EndTimestamp:          ints[1].Uint64(),
		CliffReleaseTimestamp: ints[2].Uint64(),
		ReleaseIntervalSecs:   ints[3].Uint64(),
		ScheduleIndex:         ints[4].Uint64(),
		LinearVestAmount:      new(big.Int).Set(ints[5]),
		CliffAmount:           new(big.Int).Set(ints[6]),
	}, nil
}

// FinalVestedAmount is the amount vested once the schedule has fully run.
func FinalVestedAmount(s Schedule) *big.Int {
	return new(big.Int).Add(amountOrZero(s.CliffAmount), amountOrZero(s.LinearVestAmount))
}

// VestedAmount is the amount unlocked by s at ref, ignoring revocation.
func VestedAmount(s Schedule, ref uint64) *big.Int {
	if ref < s.CliffReleaseTimestamp {
		return new(big.Int)
	}

	vested := new(big.Int).Set(amountOrZero(s.CliffAmount))
	if ref < s.StartTimestamp {
		return vested
	}

	linear := LinearVestedAmount(amountOrZero(s.LinearVestAmount), s.StartTimestamp, s.EndTimestamp, s.ReleaseIntervalSecs, ref)
	return vested.Add(vested, linear)
}

// LinearVestedAmount unlocks amount across [start, end] in whole release
// intervals. Elapsed time is truncated to an interval boundary and the result
// floored; from end onwards the full amount is returned so no remainder stays
// locked.
func LinearVestedAmount(amount *big.Int, start, end, interval, ref uint64) *big.Int {
	if ref >= end {
		return new(big.Int).Set(amount)
	}
	if ref <= start {
		return new(big.Int)
	}
	if interval == 0 {
		interval = 1
	}

	elapsed := ref - start
	truncated := elapsed / interval * interval
	vested := new(big.Int).Mul(amount, new(big.Int).SetUint64(truncated))
	return vested.Quo(vested, new(big.Int).SetUint64(end-start))
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
