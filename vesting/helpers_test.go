package vesting

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/polartar/vtvl-smartcontracts/merkle"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddr    = common.HexToAddress("0x00000000000000000000000000000000000070c1")
	ownerAddr    = common.HexToAddress("0x000000000000000000000000000000000000a11e")
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	aliceAddr    = common.HexToAddress("0x0000000000000000000000000000000000a11ce0")
	bobAddr      = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
)

var errTransferRejected = errors.New("transfer rejected")

// fakeToken holds balances for a single token. Transfers always debit holder.
type fakeToken struct {
	holder     common.Address
	balances   map[common.Address]*big.Int
	fail       bool
	onTransfer func()
}

func newFakeToken(holder common.Address, funded int64) *fakeToken {
	return &fakeToken{
		holder:   holder,
		balances: map[common.Address]*big.Int{holder: big.NewInt(funded)},
	}
}

func (t *fakeToken) BalanceOf(holder common.Address) (*big.Int, error) {
	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (t *fakeToken) Transfer(to common.Address, amount *big.Int) error {
	if t.onTransfer != nil {
		hook := t.onTransfer
		t.onTransfer = nil
		hook()
	}
	if t.fail {
		return errTransferRejected
	}
	from := t.balances[t.holder]
	if from == nil || from.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	from.Sub(from, amount)
	if t.balances[to] == nil {
		t.balances[to] = new(big.Int)
	}
	t.balances[to].Add(t.balances[to], amount)
	return nil
}

func (t *fakeToken) balance(holder common.Address) *big.Int {
	b, _ := t.BalanceOf(holder)
	return b
}

type recorder struct {
	events []Event
}

func (r *recorder) sink(e Event) { r.events = append(r.events, e) }

func (r *recorder) names() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventName()
	}
	return out
}

func exampleSchedule(recipient common.Address, index uint64) Schedule {
	return Schedule{
		Recipient:             recipient,
		StartTimestamp:        1000,
		EndTimestamp:          2000,
		CliffReleaseTimestamp: 900,
		ReleaseIntervalSecs:   1,
		ScheduleIndex:         index,
		LinearVestAmount:      big.NewInt(10000),
		CliffAmount:           big.NewInt(5000),
	}
}

type whitelist struct {
	tree      *merkle.Tree
	schedules []Schedule
}

func newWhitelist(t *testing.T, schedules ...Schedule) *whitelist {
	t.Helper()
	values := make([][]any, len(schedules))
	for i, s := range schedules {
		values[i] = s.LeafValues()
	}
	tree, err := merkle.NewTree(values, ScheduleEncoding())
	require.NoError(t, err)
	return &whitelist{tree: tree, schedules: schedules}
}

func (w *whitelist) proof(t *testing.T, i int) []common.Hash {
	t.Helper()
	p, err := w.tree.Proof(i)
	require.NoError(t, err)
	return p
}

type merkleFixture struct {
	vesting *MerkleVesting
	token   *fakeToken
	clock   *ManualClock
	ledger  *MemoryLedger
	events  *recorder
	list    *whitelist
}

func newMerkleFixture(t *testing.T, funded int64, schedules ...Schedule) *merkleFixture {
	t.Helper()
	list := newWhitelist(t, schedules...)
	f := &merkleFixture{
		token:  newFakeToken(contractAddr, funded),
		clock:  NewManualClock(0),
		ledger: NewMemoryLedger(),
		events: &recorder{},
		list:   list,
	}
	v, err := NewMerkleVesting(MerkleVestingParams{
		Address:  contractAddr,
		Token:    tokenAddr,
		Owner:    ownerAddr,
		Root:     list.tree.Root(),
		Ledger:   f.ledger,
		Transfer: f.token,
		Clock:    f.clock,
		Events:   f.events.sink,
	})
	require.NoError(t, err)
	f.vesting = v
	return f
}

func requireAmount(t *testing.T, want int64, got *big.Int, msgAndArgs ...any) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	require.Equal(t, big.NewInt(want).String(), got.String(), msgAndArgs...)
}
