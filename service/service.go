package service

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/polartar/vtvl-smartcontracts/vesting"
	"github.com/sirupsen/logrus"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrTokenNotFound    = errors.New("token not found")
	ErrWrongKind        = errors.New("operation not supported by this contract")
)

// Service hosts vesting contract instances and the tokens they pay out.
// Every state-changing call runs in its own bbolt transaction, which gives
// each contract operation its all-or-nothing unit of work.
type Service struct {
	storage *Storage
	factory common.Address
	clock   vesting.Clock
	log     *logrus.Logger
}

func NewService(storage *Storage, factory common.Address, clock vesting.Clock, log *logrus.Logger) *Service {
	if clock == nil {
		clock = vesting.SystemClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{storage: storage, factory: factory, clock: clock, log: log}
}

// Now is the service clock's current time.
func (s *Service) Now() uint64 {
	return s.clock.Now()
}

// update runs fn in a read-write transaction and logs the events it emitted
// once the transaction has committed.
func (s *Service) update(op string, fn func(tx *Tx, sink vesting.EventSink) error) error {
	var events []vesting.Event
	err := s.storage.Update(func(tx *Tx) error {
		events = events[:0]
		return fn(tx, func(e vesting.Event) { events = append(events, e) })
	})
	if err != nil {
		s.log.WithError(err).WithField("op", op).Debug("operation aborted")
		return err
	}

	for _, e := range events {
		s.log.WithFields(logrus.Fields(e.Fields())).Info(e.EventName())
	}
	return nil
}

func (s *Service) merkle(tx *Tx, rec *instanceRecord, sink vesting.EventSink) (*vesting.MerkleVesting, error) {
	if rec.Variant != VariantMerkleVesting {
		return nil, ErrWrongKind
	}
	addr := common.HexToAddress(rec.Address)
	token := common.HexToAddress(rec.Token)
	var root common.Hash
	if rec.Root != "" {
		root = common.HexToHash(rec.Root)
	}

	return vesting.NewMerkleVesting(vesting.MerkleVestingParams{
		Address:  addr,
		Token:    token,
		Owner:    common.HexToAddress(rec.Owner),
		Root:     root,
		Ledger:   tx.Ledger(addr),
		Transfer: boundToken{tx: tx, token: token, holder: addr},
		Clock:    s.clock,
		Events:   sink,
	})
}

type milestoneContract interface {
	SetComplete(caller common.Address, i int) error
	VestedAmount(i int, ref uint64) (*big.Int, error)
	ClaimableAmount(i int) (*big.Int, error)
	Withdraw(caller common.Address, i int) (*big.Int, error)
	WithdrawAdmin(caller common.Address) (*big.Int, error)
	Milestone(i int) (vesting.Milestone, error)
	Milestones() []vesting.Milestone
}

func (s *Service) milestones(tx *Tx, rec *instanceRecord, sink vesting.EventSink) (milestoneContract, error) {
	ms, err := rec.milestones()
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(rec.Address)
	token := common.HexToAddress(rec.Token)
	p := vesting.MilestoneParams{
		Address:             addr,
		Token:               token,
		Owner:               common.HexToAddress(rec.Owner),
		Recipient:           common.HexToAddress(rec.Recipient),
		Milestones:          ms,
		ReleaseIntervalSecs: rec.ReleaseIntervalSecs,
		VestingPeriod:       rec.VestingPeriod,
		Transfer:            boundToken{tx: tx, token: token, holder: addr},
		Clock:               s.clock,
		Events:              sink,
	}

	switch rec.Variant {
	case VariantSimpleMilestones:
		return vesting.NewSimpleMilestone(p)
	case VariantVestingMilestone:
		return vesting.NewVestingMilestone(p)
	}
	return nil, ErrWrongKind
}

func (s *Service) Instance(addr common.Address) (InstanceInfo, error) {
	var info InstanceInfo
	err := s.storage.View(func(tx *Tx) error {
		rec, err := tx.Instance(addr)
		if err != nil {
			return err
		}
		info, err = rec.info()
		return err
	})
	return info, err
}

func (s *Service) SetMerkleRoot(caller, addr common.Address, root common.Hash) error {
	return s.update("setMerkleRoot", func(tx *Tx, sink vesting.EventSink) error {
		rec, err := tx.Instance(addr)
		if err != nil {
			return err
		}
		v, err := s.merkle(tx, rec, sink)
		if err != nil {
			return err
		}
		if err := v.SetMerkleRoot(caller, root); err != nil {
			return err
		}
		rec.Root = root.Hex()
		return tx.PutInstance(rec)
	})
}

func (s *Service) viewMerkle(addr common.Address, fn func(v *vesting.MerkleVesting) error) error {
	return s.storage.View(func(tx *Tx) error {
		rec, err := tx.Instance(addr)
		if err != nil {
			return err
		}
		v, err := s.merkle(tx, rec, nil)
		if err != nil {
			return err
		}
		return fn(v)
	})
}

// VestedAmount evaluates sched at ref. The schedule is not checked against
// the root.
func (s *Service) VestedAmount(addr common.Address, sched vesting.Schedule, ref uint64) (*big.Int, error) {
	var out *big.Int
	err := s.viewMerkle(addr, func(v *vesting.MerkleVesting) error {
		var err error
		out, err = v.VestedAmount(sched, ref)
		return err
	})
	return out, err
}

func (s *Service) ClaimableAmount(addr common.Address, sched vesting.Schedule) (*big.Int, error) {
	var out *big.Int
	err := s.viewMerkle(addr, func(v *vesting.MerkleVesting) error {
		var err error
		out, err = v.ClaimableAmount(sched)
		return err
	})
	return out, err
}

func (s *Service) Claim(addr, recipient common.Address, scheduleIndex uint64) (vesting.ClaimState, error) {
	var out vesting.ClaimState
	err := s.viewMerkle(addr, func(v *vesting.MerkleVesting) error {
		var err error
		out, err = v.Claim(recipient, scheduleIndex)
		return err
	})
	return out, err
}

func (s *Service) Withdraw(caller, addr common.Address, sched vesting.Schedule, proof []common.Hash) (*big.Int, error) {
	var paid *big.Int
	err := s.update("withdraw", func(tx *Tx, sink vesting.EventSink) error {
		rec, err := tx.Instance(addr)
		if err != nil {
			return err
		}
		v, err := s.merkle(tx, rec, sink)
		if err != nil {
			return err
		}
		paid, err = v.Withdraw(caller, sched, proof)
		return err
	})
	return paid, err
}

func (s *Service) RevokeClaim(caller, addr common.Address, sched vesting.Schedule, proof []common.Hash) (vesting.ClaimState, error) {
	var state vesting.ClaimState
	err := s.update("revokeClaim", func(tx *Tx, sink vesting.EventSink) error {
		rec, err := tx.Instance(addr)
		if err != nil {
			return err
		}
		v, err := s.merkle(tx, rec, sink)
		if err != nil {
			return err
		}
		state, err = v.RevokeClaim(caller, sched, proof)
		return err
	})
	return state, err
}

func (s *Service) Milestone(addr common.Address, i int) (MilestoneInfo, error) {
	var info MilestoneInfo
	err := s.storage.View(func(tx *Tx) error {
		rec, err := tx.Instance(addr)
		if err != nil {
			return err
		}
		c, err := s.milestones(tx, rec, nil)
		if err != nil {
			return err
		}
		m, err := c.Milestone(i)
		if err != nil {
			return err
		}
		vested, err := c.VestedAmount(i, s.clock.Now())
		if err != nil {
			return err
		}
		claimable, err := c.ClaimableAmount(i)
		if err != nil {
			return err
		}
		info = MilestoneInfo{Index: i, Milestone: m, Vested: vested, Claimable: claimable}
		return nil
	})
	return info, err
}

// updateMilestones runs fn against a milestone contract and persists its
// milestones afterwards.
func (s *Service) updateMilestones(op string, addr common.Address, fn func(c milestoneContract) error) error {
	return s.update(op, func(tx *Tx, sink vesting.EventSink) error {
		rec, err := tx.Instance(addr)
		if err != nil {
			return err
		}
		c, err := s.milestones(tx, rec, sink)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		rec.setMilestones(c.Milestones())
		return tx.PutInstance(rec)
	})
}

func (s *Service) SetComplete(caller, addr common.Address, i int) error {
	return s.updateMilestones("setComplete", addr, func(c milestoneContract) error {
		return c.SetComplete(caller, i)
	})
}

func (s *Service) WithdrawMilestone(caller, addr common.Address, i int) (*big.Int, error) {
	var paid *big.Int
	err := s.updateMilestones("withdrawMilestone", addr, func(c milestoneContract) error {
		var err error
		paid, err = c.Withdraw(caller, i)
		return err
	})
	return paid, err
}

func (s *Service) WithdrawAdmin(caller, addr common.Address) (*big.Int, error) {
	var swept *big.Int
	err := s.updateMilestones("withdrawAdmin", addr, func(c milestoneContract) error {
		var err error
		swept, err = c.WithdrawAdmin(caller)
		return err
	})
	return swept, err
}
