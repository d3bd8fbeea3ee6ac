package whitelist

import (
	"errors"
	"fmt"
	"io"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/polartar/vtvl-smartcontracts/merkle"
	"github.com/polartar/vtvl-smartcontracts/vesting"
)

var (
	ErrDuplicateSchedule = errors.New("duplicate schedule")
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrNoEntries         = errors.New("whitelist is empty")
)

// Params is the timing every schedule in a whitelist shares. A zero Cliff
// releases the cliff amount at Start.
type Params struct {
	Start               uint64
	End                 uint64
	Cliff               uint64
	ReleaseIntervalSecs uint64
	Decimals            uint8
	Format              string
}

type ScheduleProof struct {
	Schedule vesting.Schedule
	Leaf     common.Hash
	Proof    []common.Hash
}

// Build turns entries into schedules and commits them to a Merkle tree.
func Build(entries []Entry, p Params) (*merkle.Tree, []vesting.Schedule, error) {
	if len(entries) == 0 {
		return nil, nil, ErrNoEntries
	}

	cliffAt := p.Cliff
	if cliffAt == 0 {
		cliffAt = p.Start
	}

	seen := mapset.NewThreadUnsafeSet[vesting.ClaimKey]()
	schedules := make([]vesting.Schedule, len(entries))
	values := make([][]any, len(entries))
	for i, e := range entries {
		s := vesting.Schedule{
			Recipient:             e.Recipient,
			StartTimestamp:        p.Start,
			EndTimestamp:          p.End,
			CliffReleaseTimestamp: cliffAt,
			ReleaseIntervalSecs:   p.ReleaseIntervalSecs,
			ScheduleIndex:         e.ScheduleIndex,
			LinearVestAmount:      e.Allocation,
			CliffAmount:           e.Cliff,
		}
		if err := s.Validate(); err != nil {
			return nil, nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if !seen.Add(s.Key()) {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateSchedule, s.Key())
		}
		schedules[i] = s
		values[i] = s.LeafValues()
	}

	tree, err := merkle.NewTree(values, vesting.ScheduleEncoding())
	if err != nil {
		return nil, nil, err
	}
	return tree, schedules, nil
}

// BuildFrom reads a whitelist in p.Format and builds its tree.
func BuildFrom(r io.Reader, p Params) (*merkle.Tree, []vesting.Schedule, error) {
	ex, err := getExtractor(p.Format, p.Decimals)
	if err != nil {
		return nil, nil, err
	}
	entries, err := ex.Extract(r)
	if err != nil {
		return nil, nil, err
	}
	return Build(entries, p)
}

// Schedules decodes every committed value of a schedule tree, in insertion
// order.
func Schedules(tree *merkle.Tree) ([]vesting.Schedule, error) {
	out := make([]vesting.Schedule, tree.Len())
	for i := range out {
		v, err := tree.Value(i)
		if err != nil {
			return nil, err
		}
		if out[i], err = vesting.ScheduleFromValues(v); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return out, nil
}

func proofAt(tree *merkle.Tree, i int, s vesting.Schedule) (ScheduleProof, error) {
	leaf, err := tree.LeafHash(i)
	if err != nil {
		return ScheduleProof{}, err
	}
	proof, err := tree.Proof(i)
	if err != nil {
		return ScheduleProof{}, err
	}
	return ScheduleProof{Schedule: s, Leaf: leaf, Proof: proof}, nil
}

// Prove finds the schedule of recipient with the given index and returns it
// with its inclusion proof.
func Prove(tree *merkle.Tree, recipient common.Address, scheduleIndex uint64) (ScheduleProof, error) {
	schedules, err := Schedules(tree)
	if err != nil {
		return ScheduleProof{}, err
	}
	for i, s := range schedules {
		if s.Recipient == recipient && s.ScheduleIndex == scheduleIndex {
			return proofAt(tree, i, s)
		}
	}
	return ScheduleProof{}, fmt.Errorf("%w: %s/%d", ErrScheduleNotFound, recipient.Hex(), scheduleIndex)
}

// ProveAll returns a proof for every schedule in the tree.
func ProveAll(tree *merkle.Tree) ([]ScheduleProof, error) {
	schedules, err := Schedules(tree)
	if err != nil {
		return nil, err
	}
	out := make([]ScheduleProof, len(schedules))
	for i, s := range schedules {
		if out[i], err = proofAt(tree, i, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}
