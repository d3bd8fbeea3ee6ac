package vesting

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestVestedAmountExampleVectors(t *testing.T) {
	s := exampleSchedule(aliceAddr, 0)

	cases := []struct {
		at   uint64
		want int64
	}{
		{0, 0},
		{899, 0},
		{900, 5000},
		{999, 5000},
		{1000, 5000},
		{1001, 5010},
		{1500, 10000},
		{1999, 14990},
		{2000, 15000},
		{3000, 15000},
	}
	for _, c := range cases {
		requireAmount(t, c.want, VestedAmount(s, c.at), "at %d", c.at)
	}
}

func TestVestedAmountQuantizesToIntervals(t *testing.T) {
	s := exampleSchedule(aliceAddr, 0)
	s.ReleaseIntervalSecs = 300

	requireAmount(t, 5000, VestedAmount(s, 1299))
	requireAmount(t, 8000, VestedAmount(s, 1300))
	requireAmount(t, 8000, VestedAmount(s, 1599))
	requireAmount(t, 11000, VestedAmount(s, 1600))
	// 1900 is the last boundary before end; the remainder arrives at end.
	requireAmount(t, 14000, VestedAmount(s, 1999))
	requireAmount(t, 15000, VestedAmount(s, 2000))
}

func TestVestedAmountCliffAtStart(t *testing.T) {
	s := exampleSchedule(aliceAddr, 0)
	s.CliffReleaseTimestamp = s.StartTimestamp

	requireAmount(t, 0, VestedAmount(s, 999))
	requireAmount(t, 5000, VestedAmount(s, 1000))
}

func TestVestedAmountMonotonicAndCapped(t *testing.T) {
	schedules := []Schedule{
		exampleSchedule(aliceAddr, 0),
		{Recipient: aliceAddr, StartTimestamp: 10, EndTimestamp: 1013, CliffReleaseTimestamp: 0, ReleaseIntervalSecs: 7, LinearVestAmount: big.NewInt(999_983), CliffAmount: big.NewInt(1)},
		{Recipient: aliceAddr, StartTimestamp: 500, EndTimestamp: 500, CliffReleaseTimestamp: 100, ReleaseIntervalSecs: 60, LinearVestAmount: big.NewInt(42), CliffAmount: big.NewInt(0)},
		{Recipient: aliceAddr, StartTimestamp: 0, EndTimestamp: 100, CliffReleaseTimestamp: 0, ReleaseIntervalSecs: 1000, LinearVestAmount: big.NewInt(3), CliffAmount: big.NewInt(0)},
	}

	for _, s := range schedules {
		final := FinalVestedAmount(s)
		prev := new(big.Int)
		for at := uint64(0); at <= s.EndTimestamp+50; at++ {
			got := VestedAmount(s, at)
			require.True(t, got.Cmp(prev) >= 0, "vested decreased at %d", at)
			require.True(t, got.Cmp(final) <= 0, "vested above final at %d", at)
			if at >= s.EndTimestamp && at >= s.CliffReleaseTimestamp {
				require.Zero(t, final.Cmp(got), "final not reached at %d", at)
			}
			prev = got
		}
	}
}

func TestFinalVestedAmount(t *testing.T) {
	requireAmount(t, 15000, FinalVestedAmount(exampleSchedule(aliceAddr, 0)))
	requireAmount(t, 0, FinalVestedAmount(Schedule{}))
}

func TestScheduleValidate(t *testing.T) {
	require.NoError(t, exampleSchedule(aliceAddr, 0).Validate())

	mutate := []func(*Schedule){
		func(s *Schedule) { s.Recipient = common.Address{} },
		func(s *Schedule) { s.StartTimestamp = s.EndTimestamp + 1 },
		func(s *Schedule) { s.ReleaseIntervalSecs = 0 },
		func(s *Schedule) { s.EndTimestamp = maxUint40 + 1 },
		func(s *Schedule) { s.ScheduleIndex = maxUint40 + 1 },
		func(s *Schedule) { s.CliffAmount = big.NewInt(-1) },
		func(s *Schedule) { s.LinearVestAmount = nil },
		func(s *Schedule) { s.LinearVestAmount = new(big.Int).Lsh(big.NewInt(1), 256) },
	}
	for i, m := range mutate {
		s := exampleSchedule(aliceAddr, 0)
		m(&s)
		require.ErrorIs(t, s.Validate(), ErrInvalidSchedule, "case %d", i)
	}
}

func TestScheduleValuesRoundTrip(t *testing.T) {
	s := exampleSchedule(bobAddr, 3)
	back, err := ScheduleFromValues(s.LeafValues())
	require.NoError(t, err)
	require.Equal(t, s, back)

	_, err = ScheduleFromValues(s.LeafValues()[:7])
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestLeafCoversEveryField(t *testing.T) {
	base := exampleSchedule(aliceAddr, 0)
	leaf, err := base.Leaf()
	require.NoError(t, err)

	mutate := []func(*Schedule){
		func(s *Schedule) { s.Recipient = bobAddr },
		func(s *Schedule) { s.StartTimestamp++ },
		func(s *Schedule) { s.EndTimestamp++ },
		func(s *Schedule) { s.CliffReleaseTimestamp++ },
		func(s *Schedule) { s.ReleaseIntervalSecs++ },
		func(s *Schedule) { s.ScheduleIndex++ },
		func(s *Schedule) { s.LinearVestAmount = big.NewInt(10001) },
		func(s *Schedule) { s.CliffAmount = big.NewInt(5001) },
	}
	for i, m := range mutate {
		s := exampleSchedule(aliceAddr, 0)
		m(&s)
		other, err := s.Leaf()
		require.NoError(t, err)
		require.NotEqual(t, leaf, other, "field %d not committed", i)
	}
}

func TestScheduleLeafKnownHash(t *testing.T) {
	leaf, err := exampleSchedule(aliceAddr, 0).Leaf()
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x01fa881c064feba0c858b6cab775b1e2e0718418f804afd7ebaf188ad59a777b"), leaf)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(100)
	require.Equal(t, uint64(100), c.Now())
	require.Equal(t, uint64(150), c.Advance(50))
	require.NoError(t, c.Set(200))
	require.ErrorIs(t, c.Set(199), ErrClockRollback)
	require.Equal(t, uint64(200), c.Now())
}
