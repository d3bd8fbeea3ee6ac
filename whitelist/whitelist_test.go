package whitelist

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/polartar/vtvl-smartcontracts/merkle"
	"github.com/polartar/vtvl-smartcontracts/vesting"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x0000000000000000000000000000000000A11CE0"
	bob   = "0x00000000000000000000000000000000000b0b00"
)

var params = Params{Start: 1693491435, End: 1693491435 + 604800, ReleaseIntervalSecs: 30, Decimals: 18}

func TestParseTokenAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 18, "1500000000000000000"},
		{"0.000000000000000001", 18, "1"},
		{"250", 0, "250"},
		{"0", 6, "0"},
	}
	for _, c := range cases {
		got, err := ParseTokenAmount(c.in, c.decimals)
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got.String(), c.in)
	}

	for _, bad := range []string{"", "abc", "-1", "0.5"} {
		_, err := ParseTokenAmount(bad, 0)
		require.ErrorIs(t, err, ErrMalformedInput, bad)
	}
}

func TestCSVAssignsIndexesPerRecipient(t *testing.T) {
	input := "address,allocation\n" +
		alice + ",100\n" +
		bob + ",50.5\n" +
		alice + ",25\n"

	ex, err := getExtractor("csv", 18)
	require.NoError(t, err)
	entries, err := ex.Extract(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, common.HexToAddress(alice), entries[0].Recipient)
	require.Equal(t, uint64(0), entries[0].ScheduleIndex)
	require.Equal(t, uint64(0), entries[1].ScheduleIndex)
	require.Equal(t, uint64(1), entries[2].ScheduleIndex)
	require.Equal(t, "50500000000000000000", entries[1].Allocation.String())
	require.Equal(t, "0", entries[1].Cliff.String())
}

func TestCSVOptionalColumns(t *testing.T) {
	input := "allocation, address, cliff, index\n" +
		"100," + alice + ",10,4\n" +
		"100," + alice + ",,\n"

	ex, err := getExtractor("csv", 0)
	require.NoError(t, err)
	entries, err := ex.Extract(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(4), entries[0].ScheduleIndex)
	require.Equal(t, "10", entries[0].Cliff.String())
	require.Equal(t, uint64(0), entries[1].ScheduleIndex)
}

func TestCSVRejectsBadInput(t *testing.T) {
	ex, err := getExtractor("csv", 18)
	require.NoError(t, err)

	for _, input := range []string{
		"",
		"wallet,allocation\n" + alice + ",1\n",
		"address,amount\n" + alice + ",1\n",
		"address,allocation\nnot-an-address,1\n",
		"address,allocation\n" + alice + ",lots\n",
	} {
		_, err := ex.Extract(strings.NewReader(input))
		require.ErrorIs(t, err, ErrMalformedInput, input)
	}

	_, err = getExtractor("xlsx", 18)
	require.Error(t, err)
}

func TestJSONExtractor(t *testing.T) {
	input := `[{"address":"` + alice + `","allocation":"2"},{"address":"` + alice + `","allocation":"3","cliff":"1"}]`
	ex, err := getExtractor("json", 2)
	require.NoError(t, err)
	entries, err := ex.Extract(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "200", entries[0].Allocation.String())
	require.Equal(t, uint64(1), entries[1].ScheduleIndex)
	require.Equal(t, "100", entries[1].Cliff.String())
}

func TestBuildAndProve(t *testing.T) {
	input := "address,allocation\n" + alice + ",100\n" + bob + ",50\n" + alice + ",25\n"
	tree, schedules, err := BuildFrom(strings.NewReader(input), params)
	require.NoError(t, err)
	require.Len(t, schedules, 3)
	require.Equal(t, params.Start, schedules[0].CliffReleaseTimestamp)

	for _, s := range schedules {
		p, err := Prove(tree, s.Recipient, s.ScheduleIndex)
		require.NoError(t, err)
		require.Equal(t, s.Key(), p.Schedule.Key())
		require.Equal(t, s.LinearVestAmount.String(), p.Schedule.LinearVestAmount.String())

		leaf, err := s.Leaf()
		require.NoError(t, err)
		require.Equal(t, leaf, p.Leaf)
		require.True(t, merkle.Verify(p.Proof, tree.Root(), leaf))
	}

	_, err = Prove(tree, common.HexToAddress(bob), 1)
	require.ErrorIs(t, err, ErrScheduleNotFound)

	all, err := ProveAll(tree)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestProveFromDump(t *testing.T) {
	tree, schedules, err := BuildFrom(strings.NewReader("address,allocation\n"+alice+",1\n"+bob+",2\n"), params)
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	loaded := new(merkle.Tree)
	require.NoError(t, json.Unmarshal(data, loaded))
	require.Equal(t, tree.Root(), loaded.Root())

	p, err := Prove(loaded, common.HexToAddress(bob), 0)
	require.NoError(t, err)
	require.Equal(t, schedules[1].Key(), p.Schedule.Key())
	require.Equal(t, "2000000000000000000", p.Schedule.LinearVestAmount.String())
	require.True(t, merkle.Verify(p.Proof, loaded.Root(), p.Leaf))
}

func TestBuildRejectsDuplicatesAndBadTiming(t *testing.T) {
	a := common.HexToAddress(alice)
	entries := []Entry{
		{Recipient: a, ScheduleIndex: 0, Allocation: big.NewInt(1), Cliff: new(big.Int)},
		{Recipient: a, ScheduleIndex: 0, Allocation: big.NewInt(2), Cliff: new(big.Int)},
	}
	_, _, err := Build(entries, params)
	require.ErrorIs(t, err, ErrDuplicateSchedule)

	bad := params
	bad.End = bad.Start - 1
	_, _, err = Build(entries[:1], bad)
	require.ErrorIs(t, err, vesting.ErrInvalidSchedule)

	_, _, err = Build(nil, params)
	require.ErrorIs(t, err, ErrNoEntries)
}
