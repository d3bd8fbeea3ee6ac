package service

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polartar/vtvl-smartcontracts/merkle"
	"github.com/polartar/vtvl-smartcontracts/vesting"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	ownerAddr   = common.HexToAddress("0x000000000000000000000000000000000000a11e")
	aliceAddr   = common.HexToAddress("0x0000000000000000000000000000000000a11ce0")
	bobAddr     = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
)

type fixture struct {
	svc   *Service
	store *Storage
	path  string
	clock *vesting.ManualClock
	hook  *logtest.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "vesting.db")
	store, err := NewStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	clock := vesting.NewManualClock(0)
	return &fixture{
		svc:   NewService(store, factoryAddr, clock, logger),
		store: store,
		path:  path,
		clock: clock,
		hook:  hook,
	}
}

func (f *fixture) messages() []string {
	var out []string
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.InfoLevel {
			out = append(out, e.Message)
		}
	}
	return out
}

func amount(v int64) *big.Int { return big.NewInt(v) }

func requireBalance(t *testing.T, svc *Service, token, holder common.Address, want int64) {
	t.Helper()
	bal, err := svc.BalanceOf(token, holder)
	require.NoError(t, err)
	require.Equal(t, amount(want).String(), bal.String())
}

func schedule(recipient common.Address, index uint64) vesting.Schedule {
	return vesting.Schedule{
		Recipient:             recipient,
		StartTimestamp:        1000,
		EndTimestamp:          2000,
		CliffReleaseTimestamp: 900,
		ReleaseIntervalSecs:   1,
		ScheduleIndex:         index,
		LinearVestAmount:      amount(10000),
		CliffAmount:           amount(5000),
	}
}

func tree(t *testing.T, schedules ...vesting.Schedule) *merkle.Tree {
	t.Helper()
	values := make([][]any, len(schedules))
	for i, s := range schedules {
		values[i] = s.LeafValues()
	}
	tr, err := merkle.NewTree(values, vesting.ScheduleEncoding())
	require.NoError(t, err)
	return tr
}

func proof(t *testing.T, tr *merkle.Tree, i int) []common.Hash {
	t.Helper()
	p, err := tr.Proof(i)
	require.NoError(t, err)
	return p
}

func TestTokenLedger(t *testing.T) {
	f := newFixture(t)

	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(1000))
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(factoryAddr, 0), tok.Address)
	requireBalance(t, f.svc, tok.Address, ownerAddr, 1000)

	require.NoError(t, f.svc.Transfer(tok.Address, ownerAddr, aliceAddr, amount(300)))
	requireBalance(t, f.svc, tok.Address, ownerAddr, 700)
	requireBalance(t, f.svc, tok.Address, aliceAddr, 300)

	err = f.svc.Transfer(tok.Address, aliceAddr, bobAddr, amount(301))
	require.ErrorIs(t, err, vesting.ErrInsufficientBalance)
	requireBalance(t, f.svc, tok.Address, aliceAddr, 300)

	err = f.svc.Transfer(tok.Address, aliceAddr, bobAddr, amount(0))
	require.ErrorIs(t, err, vesting.ErrInvalidAmount)

	_, err = f.svc.BalanceOf(bobAddr, aliceAddr)
	require.ErrorIs(t, err, ErrTokenNotFound)

	_, err = f.svc.CreateToken(common.Address{}, "x", "x", amount(1))
	require.ErrorIs(t, err, vesting.ErrInvalidAddress)
}

func TestCreateVestingContractValidation(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(1000))
	require.NoError(t, err)

	_, err = f.svc.CreateVestingContract(ownerAddr, common.Address{}, 0)
	require.ErrorIs(t, err, vesting.ErrInvalidAddress)

	_, err = f.svc.CreateVestingContract(ownerAddr, bobAddr, 0)
	require.ErrorIs(t, err, ErrTokenNotFound)

	info, err := f.svc.CreateVestingContract(ownerAddr, tok.Address, 2)
	require.NoError(t, err)
	require.Equal(t, VariantMerkleVesting, info.Variant)
	require.Equal(t, uint8(2), info.Kind)
	require.Equal(t, ownerAddr, info.Owner)
	require.Equal(t, common.Hash{}, info.Root)
	// failed creations roll back their nonce
	require.Equal(t, crypto.CreateAddress(factoryAddr, 1), info.Address)

	_, err = f.svc.Instance(bobAddr)
	require.ErrorIs(t, err, ErrContractNotFound)
}

func TestMerkleVestingThroughService(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(100000))
	require.NoError(t, err)
	c, err := f.svc.CreateVestingContract(ownerAddr, tok.Address, 0)
	require.NoError(t, err)
	require.NoError(t, f.svc.Transfer(tok.Address, ownerAddr, c.Address, amount(30000)))

	first, second := schedule(aliceAddr, 0), schedule(aliceAddr, 1)
	tr := tree(t, first, second)

	require.ErrorIs(t, f.svc.SetMerkleRoot(aliceAddr, c.Address, tr.Root()), vesting.ErrUnauthorized)
	require.NoError(t, f.svc.SetMerkleRoot(ownerAddr, c.Address, tr.Root()))
	info, err := f.svc.Instance(c.Address)
	require.NoError(t, err)
	require.Equal(t, tr.Root(), info.Root)

	require.NoError(t, f.clock.Set(1500))
	claimable, err := f.svc.ClaimableAmount(c.Address, first)
	require.NoError(t, err)
	require.Equal(t, "10000", claimable.String())

	paid, err := f.svc.Withdraw(aliceAddr, c.Address, first, proof(t, tr, 0))
	require.NoError(t, err)
	require.Equal(t, "10000", paid.String())
	requireBalance(t, f.svc, tok.Address, aliceAddr, 10000)
	requireBalance(t, f.svc, tok.Address, c.Address, 20000)

	_, err = f.svc.Withdraw(aliceAddr, c.Address, first, proof(t, tr, 0))
	require.ErrorIs(t, err, vesting.ErrNothingToWithdraw)

	_, err = f.svc.Withdraw(bobAddr, c.Address, second, proof(t, tr, 1))
	require.ErrorIs(t, err, vesting.ErrNoRecipient)

	state, err := f.svc.RevokeClaim(ownerAddr, c.Address, second, proof(t, tr, 1))
	require.NoError(t, err)
	require.True(t, state.Revoked())

	vested, err := f.svc.VestedAmount(c.Address, second, 5000)
	require.NoError(t, err)
	require.Equal(t, "10000", vested.String())

	claim, err := f.svc.Claim(c.Address, aliceAddr, 0)
	require.NoError(t, err)
	require.Equal(t, "10000", claim.Withdrawn.String())

	require.Contains(t, f.messages(), "Withdrawn")
	require.Contains(t, f.messages(), "ClaimRevoked")
	require.Contains(t, f.messages(), "RootUpdated")
}

func TestFailedWithdrawLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(100000))
	require.NoError(t, err)
	c, err := f.svc.CreateVestingContract(ownerAddr, tok.Address, 0)
	require.NoError(t, err)

	s := schedule(aliceAddr, 0)
	tr := tree(t, s)
	require.NoError(t, f.svc.SetMerkleRoot(ownerAddr, c.Address, tr.Root()))
	require.NoError(t, f.clock.Set(1500))

	_, err = f.svc.Withdraw(aliceAddr, c.Address, s, proof(t, tr, 0))
	require.ErrorIs(t, err, vesting.ErrTransferFailed)
	require.ErrorIs(t, err, vesting.ErrInsufficientBalance)

	claim, err := f.svc.Claim(c.Address, aliceAddr, 0)
	require.NoError(t, err)
	require.Equal(t, "0", claim.Withdrawn.String())
	require.NotContains(t, f.messages(), "Withdrawn")

	require.NoError(t, f.svc.Transfer(tok.Address, ownerAddr, c.Address, amount(10000)))
	paid, err := f.svc.Withdraw(aliceAddr, c.Address, s, proof(t, tr, 0))
	require.NoError(t, err)
	require.Equal(t, "10000", paid.String())
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(100000))
	require.NoError(t, err)
	c, err := f.svc.CreateVestingContract(ownerAddr, tok.Address, 0)
	require.NoError(t, err)
	require.NoError(t, f.svc.Transfer(tok.Address, ownerAddr, c.Address, amount(15000)))

	s := schedule(aliceAddr, 0)
	tr := tree(t, s)
	require.NoError(t, f.svc.SetMerkleRoot(ownerAddr, c.Address, tr.Root()))
	require.NoError(t, f.clock.Set(1200))
	_, err = f.svc.Withdraw(aliceAddr, c.Address, s, proof(t, tr, 0))
	require.NoError(t, err)
	require.NoError(t, f.store.Close())

	store, err := NewStorage(f.path)
	require.NoError(t, err)
	defer store.Close()
	svc := NewService(store, factoryAddr, f.clock, logrus.New())

	claim, err := svc.Claim(c.Address, aliceAddr, 0)
	require.NoError(t, err)
	require.Equal(t, "7000", claim.Withdrawn.String())

	info, err := svc.Instance(c.Address)
	require.NoError(t, err)
	require.Equal(t, tr.Root(), info.Root)
}

func TestMilestonesThroughService(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(10000))
	require.NoError(t, err)

	c, err := f.svc.CreateVestingMilestone(ownerAddr, MilestoneRequest{
		Token:               tok.Address,
		TotalAllocation:     amount(10000),
		Percents:            []uint64{10, 20, 30},
		Recipient:           bobAddr,
		ReleaseIntervalSecs: 3600,
		VestingPeriod:       360000,
	})
	require.NoError(t, err)
	require.Equal(t, VariantVestingMilestone, c.Variant)
	require.Len(t, c.Milestones, 3)
	requireBalance(t, f.svc, tok.Address, c.Address, 10000)
	requireBalance(t, f.svc, tok.Address, ownerAddr, 0)

	_, err = f.svc.Withdraw(bobAddr, c.Address, schedule(bobAddr, 0), nil)
	require.ErrorIs(t, err, ErrWrongKind)

	require.NoError(t, f.clock.Set(1_000_000))
	require.ErrorIs(t, f.svc.SetComplete(bobAddr, c.Address, 0), vesting.ErrUnauthorized)
	require.NoError(t, f.svc.SetComplete(ownerAddr, c.Address, 0))
	require.ErrorIs(t, f.svc.SetComplete(ownerAddr, c.Address, 0), vesting.ErrAlreadyCompleted)

	_, err = f.svc.WithdrawMilestone(bobAddr, c.Address, 1)
	require.ErrorIs(t, err, vesting.ErrNotCompleted)

	require.NoError(t, f.clock.Set(1_036_000))
	m, err := f.svc.Milestone(c.Address, 0)
	require.NoError(t, err)
	require.True(t, m.Completed())
	require.Equal(t, uint64(1_000_000), m.CompletedAt)
	require.Equal(t, "100", m.Claimable.String())

	paid, err := f.svc.WithdrawMilestone(bobAddr, c.Address, 0)
	require.NoError(t, err)
	require.Equal(t, "100", paid.String())

	m, err = f.svc.Milestone(c.Address, 0)
	require.NoError(t, err)
	require.Equal(t, "100", m.Withdrawn.String())
	require.Equal(t, "0", m.Claimable.String())

	swept, err := f.svc.WithdrawAdmin(ownerAddr, c.Address)
	require.NoError(t, err)
	require.Equal(t, "9000", swept.String())
	requireBalance(t, f.svc, tok.Address, ownerAddr, 9000)
	requireBalance(t, f.svc, tok.Address, c.Address, 900)

	_, err = f.svc.Milestone(c.Address, 3)
	require.ErrorIs(t, err, vesting.ErrInvalidMilestone)
	require.Contains(t, f.messages(), "MilestoneCompleted")
	require.Contains(t, f.messages(), "AdminWithdrawn")
}

func TestUnfundedMilestoneContract(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(500))
	require.NoError(t, err)

	req := MilestoneRequest{
		Token:               tok.Address,
		TotalAllocation:     amount(1000),
		Percents:            []uint64{50, 50},
		Recipient:           bobAddr,
		ReleaseIntervalSecs: 10,
		VestingPeriod:       100,
	}
	c, err := f.svc.CreateVestingMilestone(ownerAddr, req)
	require.NoError(t, err)
	requireBalance(t, f.svc, tok.Address, c.Address, 0)

	require.ErrorIs(t, f.svc.SetComplete(ownerAddr, c.Address, 0), vesting.ErrNotDeposited)
	require.NoError(t, f.svc.Transfer(tok.Address, ownerAddr, c.Address, amount(500)))
	require.NoError(t, f.svc.SetComplete(ownerAddr, c.Address, 0))

	simple, err := f.svc.CreateSimpleMilestones(ownerAddr, req)
	require.NoError(t, err)
	require.Equal(t, VariantSimpleMilestones, simple.Variant)
	require.NoError(t, f.svc.SetComplete(ownerAddr, simple.Address, 1))

	_, err = f.svc.WithdrawMilestone(bobAddr, simple.Address, 1)
	require.ErrorIs(t, err, vesting.ErrTransferFailed)
	m, err := f.svc.Milestone(simple.Address, 1)
	require.NoError(t, err)
	require.Equal(t, "0", m.Withdrawn.String())
}

func TestCreateMilestonesValidation(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(500))
	require.NoError(t, err)

	base := MilestoneRequest{
		Token:               tok.Address,
		TotalAllocation:     amount(1000),
		Percents:            []uint64{50, 50},
		Recipient:           bobAddr,
		ReleaseIntervalSecs: 10,
		VestingPeriod:       100,
	}

	req := base
	req.Percents = []uint64{50, 51}
	_, err = f.svc.CreateSimpleMilestones(ownerAddr, req)
	require.ErrorIs(t, err, vesting.ErrInvalidPercents)

	req = base
	req.Recipient = common.Address{}
	_, err = f.svc.CreateSimpleMilestones(ownerAddr, req)
	require.ErrorIs(t, err, vesting.ErrInvalidAddress)

	req = base
	req.ReleaseIntervalSecs = 0
	_, err = f.svc.CreateVestingMilestone(ownerAddr, req)
	require.ErrorIs(t, err, vesting.ErrInvalidSchedule)

	list, err := f.svc.Instances(ownerAddr)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestInstancesByOwner(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.CreateToken(ownerAddr, "Vested", "VST", amount(500))
	require.NoError(t, err)

	a, err := f.svc.CreateVestingContract(ownerAddr, tok.Address, 0)
	require.NoError(t, err)
	b, err := f.svc.CreateSimpleMilestones(ownerAddr, MilestoneRequest{
		Token: tok.Address, TotalAllocation: amount(100), Percents: []uint64{100}, Recipient: bobAddr,
	})
	require.NoError(t, err)
	_, err = f.svc.CreateVestingContract(aliceAddr, tok.Address, 0)
	require.NoError(t, err)

	list, err := f.svc.Instances(ownerAddr)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, a.Address, list[0].Address)
	require.Equal(t, b.Address, list[1].Address)

	require.ErrorIs(t, f.svc.SetComplete(ownerAddr, a.Address, 0), ErrWrongKind)
}
