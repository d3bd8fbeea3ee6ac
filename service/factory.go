package service

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polartar/vtvl-smartcontracts/vesting"
	"github.com/sirupsen/logrus"
)

// nextAddress derives a fresh address from the factory address and nonce,
// the way contract creation does on chain.
func (s *Service) nextAddress(tx *Tx) (common.Address, error) {
	nonce, err := tx.NextNonce()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.CreateAddress(s.factory, nonce), nil
}

func (s *Service) CreateToken(owner common.Address, name, symbol string, supply *big.Int) (TokenInfo, error) {
	if owner == (common.Address{}) {
		return TokenInfo{}, fmt.Errorf("%w: owner", vesting.ErrInvalidAddress)
	}
	if supply == nil || supply.Sign() <= 0 {
		return TokenInfo{}, fmt.Errorf("%w: supply must be positive", vesting.ErrInvalidAmount)
	}

	var info TokenInfo
	err := s.update("createToken", func(tx *Tx, _ vesting.EventSink) error {
		addr, err := s.nextAddress(tx)
		if err != nil {
			return err
		}
		rec := &tokenRecord{
			Address: addr.Hex(),
			Owner:   owner.Hex(),
			Name:    name,
			Symbol:  symbol,
			Supply:  supply.String(),
		}
		if err := tx.PutToken(rec); err != nil {
			return err
		}
		if err := tx.SetBalance(addr, owner, supply); err != nil {
			return err
		}
		info, err = rec.info()
		return err
	})
	if err != nil {
		return TokenInfo{}, err
	}

	s.log.WithFields(logrus.Fields{
		"token":  info.Address.Hex(),
		"owner":  owner.Hex(),
		"symbol": symbol,
		"supply": supply.String(),
	}).Info("token created")
	return info, nil
}

func (s *Service) Token(addr common.Address) (TokenInfo, error) {
	var info TokenInfo
	err := s.storage.View(func(tx *Tx) error {
		rec, err := tx.Token(addr)
		if err != nil {
			return err
		}
		info, err = rec.info()
		return err
	})
	return info, err
}

func (s *Service) BalanceOf(token, holder common.Address) (*big.Int, error) {
	var bal *big.Int
	err := s.storage.View(func(tx *Tx) error {
		if _, err := tx.Token(token); err != nil {
			return err
		}
		var err error
		bal, err = tx.Balance(token, holder)
		return err
	})
	return bal, err
}

// Transfer moves tokens held by caller. It is how contracts get funded.
func (s *Service) Transfer(token, caller, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: recipient", vesting.ErrInvalidAddress)
	}
	err := s.update("transfer", func(tx *Tx, _ vesting.EventSink) error {
		return tx.Move(token, caller, to, amount)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"token":  token.Hex(),
		"from":   caller.Hex(),
		"to":     to.Hex(),
		"amount": amount.String(),
	}).Info("transfer")
	return nil
}

func (s *Service) checkCreate(tx *Tx, caller, token common.Address) error {
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: owner", vesting.ErrInvalidAddress)
	}
	if token == (common.Address{}) {
		return fmt.Errorf("%w: token", vesting.ErrInvalidAddress)
	}
	_, err := tx.Token(token)
	return err
}

func (s *Service) register(tx *Tx, rec *instanceRecord) (InstanceInfo, error) {
	if err := tx.PutInstance(rec); err != nil {
		return InstanceInfo{}, err
	}
	if err := tx.indexOwner(common.HexToAddress(rec.Owner), common.HexToAddress(rec.Address)); err != nil {
		return InstanceInfo{}, err
	}
	return rec.info()
}

func (s *Service) logCreated(info InstanceInfo) {
	s.log.WithFields(logrus.Fields{
		"contract": info.Address.Hex(),
		"variant":  info.Variant.String(),
		"token":    info.Token.Hex(),
		"owner":    info.Owner.Hex(),
	}).Info("contract created")
}

// CreateVestingContract deploys a Merkle vesting instance owned by caller.
// kind is kept as metadata. The root starts empty, so nothing can be
// withdrawn until the owner sets one.
func (s *Service) CreateVestingContract(caller, token common.Address, kind uint8) (InstanceInfo, error) {
	var info InstanceInfo
	err := s.update("createVestingContract", func(tx *Tx, _ vesting.EventSink) error {
		if err := s.checkCreate(tx, caller, token); err != nil {
			return err
		}
		addr, err := s.nextAddress(tx)
		if err != nil {
			return err
		}

		rec := &instanceRecord{
			Address:   addr.Hex(),
			Variant:   VariantMerkleVesting,
			Kind:      kind,
			Token:     token.Hex(),
			Owner:     caller.Hex(),
			CreatedAt: s.clock.Now(),
		}
		if _, err := s.merkle(tx, rec, nil); err != nil {
			return err
		}
		info, err = s.register(tx, rec)
		return err
	})
	if err != nil {
		return InstanceInfo{}, err
	}

	s.logCreated(info)
	return info, nil
}

func (s *Service) CreateSimpleMilestones(caller common.Address, req MilestoneRequest) (InstanceInfo, error) {
	return s.createMilestones(caller, VariantSimpleMilestones, req)
}

func (s *Service) CreateVestingMilestone(caller common.Address, req MilestoneRequest) (InstanceInfo, error) {
	return s.createMilestones(caller, VariantVestingMilestone, req)
}

// createMilestones deploys a milestone instance. When caller holds the total
// allocation it is deposited right away; otherwise the instance starts
// unfunded and is funded by a later transfer.
func (s *Service) createMilestones(caller common.Address, variant Variant, req MilestoneRequest) (InstanceInfo, error) {
	milestones, err := vesting.NewMilestones(req.TotalAllocation, req.Percents)
	if err != nil {
		return InstanceInfo{}, err
	}

	var info InstanceInfo
	err = s.update("create"+variant.String(), func(tx *Tx, _ vesting.EventSink) error {
		if err := s.checkCreate(tx, caller, req.Token); err != nil {
			return err
		}
		addr, err := s.nextAddress(tx)
		if err != nil {
			return err
		}

		rec := &instanceRecord{
			Address:   addr.Hex(),
			Variant:   variant,
			Token:     req.Token.Hex(),
			Owner:     caller.Hex(),
			Recipient: req.Recipient.Hex(),
			CreatedAt: s.clock.Now(),
		}
		if variant == VariantVestingMilestone {
			rec.ReleaseIntervalSecs = req.ReleaseIntervalSecs
			rec.VestingPeriod = req.VestingPeriod
		}
		rec.setMilestones(milestones)

		// constructing the contract validates addresses and timing
		if _, err := s.milestones(tx, rec, nil); err != nil {
			return err
		}

		bal, err := tx.Balance(req.Token, caller)
		if err != nil {
			return err
		}
		if bal.Cmp(req.TotalAllocation) >= 0 {
			if err := tx.Move(req.Token, caller, addr, req.TotalAllocation); err != nil {
				return err
			}
		}

		info, err = s.register(tx, rec)
		return err
	})
	if err != nil {
		return InstanceInfo{}, err
	}

	s.logCreated(info)
	return info, nil
}

// Instances lists the contracts created by owner, oldest first.
func (s *Service) Instances(owner common.Address) ([]InstanceInfo, error) {
	var out []InstanceInfo
	err := s.storage.View(func(tx *Tx) error {
		addrs, err := tx.OwnedBy(owner)
		if err != nil {
			return err
		}
		out = make([]InstanceInfo, 0, len(addrs))
		for _, a := range addrs {
			rec, err := tx.Instance(a)
			if err != nil {
				return err
			}
			info, err := rec.info()
			if err != nil {
				return err
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}
