package service

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/polartar/vtvl-smartcontracts/vesting"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var (
	instancesBucket = []byte("instances")
	claimsBucket    = []byte("claims")
	tokensBucket    = []byte("tokens")
	balancesBucket  = []byte("balances")
	ownersBucket    = []byte("owners")
	metaBucket      = []byte("meta")

	nonceKey = []byte("nonce")
)

type Storage struct {
	db *bbolt.DB
}

func NewStorage(dbPath string) (*Storage, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{instancesBucket, claimsBucket, tokensBucket, balancesBucket, ownersBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Update runs fn in one read-write transaction. Any error rolls back every
// write fn made.
func (s *Storage) Update(fn func(*Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

func (s *Storage) View(fn func(*Tx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

type Tx struct {
	tx *bbolt.Tx
}

func (t *Tx) Instance(addr common.Address) (*instanceRecord, error) {
	v := t.tx.Bucket(instancesBucket).Get(addr.Bytes())
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, addr.Hex())
	}
	var rec instanceRecord
	if err := msgpack.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decode instance %s: %w", addr.Hex(), err)
	}
	return &rec, nil
}

func (t *Tx) PutInstance(rec *instanceRecord) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	return t.tx.Bucket(instancesBucket).Put(common.HexToAddress(rec.Address).Bytes(), data)
}

// OwnedBy lists instance addresses created by owner, oldest first.
func (t *Tx) OwnedBy(owner common.Address) ([]common.Address, error) {
	list, err := t.ownerIndex(owner)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, len(list))
	for i, a := range list {
		out[i] = common.HexToAddress(a)
	}
	return out, nil
}

func (t *Tx) ownerIndex(owner common.Address) ([]string, error) {
	v := t.tx.Bucket(ownersBucket).Get(owner.Bytes())
	if v == nil {
		return nil, nil
	}
	var list []string
	if err := msgpack.Unmarshal(v, &list); err != nil {
		return nil, fmt.Errorf("decode owner index %s: %w", owner.Hex(), err)
	}
	return list, nil
}

func (t *Tx) indexOwner(owner, instance common.Address) error {
	list, err := t.ownerIndex(owner)
	if err != nil {
		return err
	}
	seen := mapset.NewThreadUnsafeSet(list...)
	if !seen.Add(instance.Hex()) {
		return nil
	}
	data, err := msgpack.Marshal(append(list, instance.Hex()))
	if err != nil {
		return err
	}
	return t.tx.Bucket(ownersBucket).Put(owner.Bytes(), data)
}

// NextNonce returns the current factory nonce and advances it.
func (t *Tx) NextNonce() (uint64, error) {
	b := t.tx.Bucket(metaBucket)
	var nonce uint64
	if v := b.Get(nonceKey); v != nil {
		nonce = binary.BigEndian.Uint64(v)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nonce+1)
	if err := b.Put(nonceKey, buf); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (t *Tx) Token(addr common.Address) (*tokenRecord, error) {
	v := t.tx.Bucket(tokensBucket).Get(addr.Bytes())
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, addr.Hex())
	}
	var rec tokenRecord
	if err := msgpack.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", addr.Hex(), err)
	}
	return &rec, nil
}

func (t *Tx) PutToken(rec *tokenRecord) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	return t.tx.Bucket(tokensBucket).Put(common.HexToAddress(rec.Address).Bytes(), data)
}

func (t *Tx) Balance(token, holder common.Address) (*big.Int, error) {
	b := t.tx.Bucket(balancesBucket).Bucket(token.Bytes())
	if b == nil {
		return new(big.Int), nil
	}
	return parseAmount(string(b.Get(holder.Bytes())))
}

func (t *Tx) SetBalance(token, holder common.Address, amount *big.Int) error {
	b, err := t.tx.Bucket(balancesBucket).CreateBucketIfNotExists(token.Bytes())
	if err != nil {
		return err
	}
	return b.Put(holder.Bytes(), []byte(amount.String()))
}

// Move debits from and credits to. The token must exist.
func (t *Tx) Move(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return vesting.ErrInvalidAmount
	}
	if _, err := t.Token(token); err != nil {
		return err
	}

	fromBal, err := t.Balance(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", vesting.ErrInsufficientBalance, from.Hex(), fromBal, amount)
	}
	if err := t.SetBalance(token, from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}

	toBal, err := t.Balance(token, to)
	if err != nil {
		return err
	}
	return t.SetBalance(token, to, toBal.Add(toBal, amount))
}

// Ledger returns the claim ledger of one Merkle vesting instance.
func (t *Tx) Ledger(instance common.Address) vesting.ClaimLedger {
	return &boltLedger{tx: t.tx, instance: instance.Bytes()}
}

type boltLedger struct {
	tx       *bbolt.Tx
	instance []byte
}

func claimKey(key vesting.ClaimKey) []byte {
	out := make([]byte, common.AddressLength+8)
	copy(out, key.Recipient.Bytes())
	binary.BigEndian.PutUint64(out[common.AddressLength:], key.ScheduleIndex)
	return out
}

func (l *boltLedger) Claim(key vesting.ClaimKey) (vesting.ClaimState, error) {
	b := l.tx.Bucket(claimsBucket).Bucket(l.instance)
	if b == nil {
		return vesting.NewClaimState(), nil
	}
	v := b.Get(claimKey(key))
	if v == nil {
		return vesting.NewClaimState(), nil
	}
	var rec claimRecord
	if err := msgpack.Unmarshal(v, &rec); err != nil {
		return vesting.ClaimState{}, fmt.Errorf("decode claim %s: %w", key, err)
	}
	return rec.state()
}

func (l *boltLedger) SetClaim(key vesting.ClaimKey, state vesting.ClaimState) error {
	b, err := l.tx.Bucket(claimsBucket).CreateBucketIfNotExists(l.instance)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(newClaimRecord(state))
	if err != nil {
		return err
	}
	return b.Put(claimKey(key), data)
}

// boundToken is a token as seen by one holder inside one transaction.
type boundToken struct {
	tx     *Tx
	token  common.Address
	holder common.Address
}

func (b boundToken) BalanceOf(holder common.Address) (*big.Int, error) {
	return b.tx.Balance(b.token, holder)
}

func (b boundToken) Transfer(to common.Address, amount *big.Int) error {
	return b.tx.Move(b.token, b.holder, to, amount)
}
