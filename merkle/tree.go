package merkle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const dumpFormat = "standard-v1"

var (
	ErrEmptyTree     = errors.New("merkle tree has no leaves")
	ErrIndexRange    = errors.New("leaf index out of range")
	ErrInvalidTree   = errors.New("merkle tree is inconsistent")
	ErrInvalidFormat = errors.New("unknown merkle tree dump format")
)

// Value is one committed leaf and its position in the tree array.
type Value struct {
	Value     []any
	TreeIndex int
}

// Tree is a complete binary Merkle tree stored as an array of 2n-1 hashes.
// Leaves are sorted by hash and occupy the tail of the array; the root is at
// index 0 and node i has children 2i+1 and 2i+2. Internal nodes hash their
// children in sorted order so proofs carry no direction bits.
type Tree struct {
	encoding *Encoding
	tree     []common.Hash
	values   []Value
}

type hashedValue struct {
	value []any
	index int
	hash  common.Hash
}

func NewTree(values [][]any, encoding *Encoding) (*Tree, error) {
	if len(values) == 0 {
		return nil, ErrEmptyTree
	}

	hashed := make([]hashedValue, len(values))
	for i, v := range values {
		h, err := encoding.LeafHash(v)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		hashed[i] = hashedValue{value: v, index: i, hash: h}
	}

	sort.SliceStable(hashed, func(i, j int) bool {
		return bytes.Compare(hashed[i].hash[:], hashed[j].hash[:]) < 0
	})

	leaves := make([]common.Hash, len(hashed))
	for i, h := range hashed {
		leaves[i] = h.hash
	}
	tree := buildTree(leaves)

	out := make([]Value, len(values))
	for i, h := range hashed {
		out[h.index] = Value{Value: h.value, TreeIndex: len(tree) - 1 - i}
	}

	return &Tree{encoding: encoding, tree: tree, values: out}, nil
}

func buildTree(leaves []common.Hash) []common.Hash {
	tree := make([]common.Hash, 2*len(leaves)-1)
	for i, leaf := range leaves {
		tree[len(tree)-1-i] = leaf
	}
	for i := len(tree) - 1 - len(leaves); i >= 0; i-- {
		tree[i] = HashPair(tree[leftChild(i)], tree[rightChild(i)])
	}
	return tree
}

func leftChild(i int) int  { return 2*i + 1 }
func rightChild(i int) int { return 2*i + 2 }
func parent(i int) int     { return (i - 1) / 2 }

func sibling(i int) int {
	if i%2 == 1 {
		return i + 1
	}
	return i - 1
}

func (t *Tree) Root() common.Hash {
	return t.tree[0]
}

func (t *Tree) Len() int {
	return len(t.values)
}

func (t *Tree) Encoding() *Encoding {
	return t.encoding
}

// Value returns the i-th committed value in insertion order.
func (t *Tree) Value(i int) ([]any, error) {
	if i < 0 || i >= len(t.values) {
		return nil, ErrIndexRange
	}
	return t.values[i].Value, nil
}

func (t *Tree) LeafHash(i int) (common.Hash, error) {
	if i < 0 || i >= len(t.values) {
		return common.Hash{}, ErrIndexRange
	}
	return t.tree[t.values[i].TreeIndex], nil
}

// Proof returns the sibling path for the i-th value, leaf level first.
func (t *Tree) Proof(i int) ([]common.Hash, error) {
	if i < 0 || i >= len(t.values) {
		return nil, ErrIndexRange
	}

	var proof []common.Hash
	for idx := t.values[i].TreeIndex; idx > 0; idx = parent(idx) {
		proof = append(proof, t.tree[sibling(idx)])
	}
	return proof, nil
}

// Validate recomputes every leaf and internal node.
func (t *Tree) Validate() error {
	if len(t.tree) == 0 || len(t.tree) != 2*len(t.values)-1 {
		return fmt.Errorf("%w: %d nodes for %d values", ErrInvalidTree, len(t.tree), len(t.values))
	}

	for i, v := range t.values {
		if v.TreeIndex < len(t.values)-1 || v.TreeIndex >= len(t.tree) {
			return fmt.Errorf("%w: value %d points at internal node %d", ErrInvalidTree, i, v.TreeIndex)
		}
		h, err := t.encoding.LeafHash(v.Value)
		if err != nil {
			return err
		}
		if h != t.tree[v.TreeIndex] {
			return fmt.Errorf("%w: leaf %d hash mismatch", ErrInvalidTree, i)
		}
	}

	for i := len(t.tree) - 1 - len(t.values); i >= 0; i-- {
		if HashPair(t.tree[leftChild(i)], t.tree[rightChild(i)]) != t.tree[i] {
			return fmt.Errorf("%w: node %d", ErrInvalidTree, i)
		}
	}
	return nil
}

// HashPair hashes two nodes in ascending byte order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// ProcessProof folds proof into leaf and returns the implied root.
func ProcessProof(proof []common.Hash, leaf common.Hash) common.Hash {
	computed := leaf
	for _, p := range proof {
		computed = HashPair(computed, p)
	}
	return computed
}

func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	return ProcessProof(proof, leaf) == root
}

type treeJSON struct {
	Format       string        `json:"format"`
	Tree         []common.Hash `json:"tree"`
	Values       []valueJSON   `json:"values"`
	LeafEncoding []string      `json:"leafEncoding"`
}

type valueJSON struct {
	Value     []string `json:"value"`
	TreeIndex int      `json:"treeIndex"`
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	values := make([]valueJSON, len(t.values))
	for i, v := range t.values {
		formatted := make([]string, len(v.Value))
		for j, field := range v.Value {
			s, err := t.encoding.FormatValue(j, field)
			if err != nil {
				return nil, fmt.Errorf("value %d field %d: %w", i, j, err)
			}
			formatted[j] = s
		}
		values[i] = valueJSON{Value: formatted, TreeIndex: v.TreeIndex}
	}

	return json.Marshal(treeJSON{
		Format:       dumpFormat,
		Tree:         t.tree,
		Values:       values,
		LeafEncoding: t.encoding.Types(),
	})
}

// UnmarshalJSON loads a dump and checks it for integrity before accepting it.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var parsed treeJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	if parsed.Format != dumpFormat {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, parsed.Format)
	}

	encoding, err := NewEncoding(parsed.LeafEncoding)
	if err != nil {
		return err
	}

	values := make([]Value, len(parsed.Values))
	for i, v := range parsed.Values {
		if len(v.Value) != encoding.Len() {
			return fmt.Errorf("value %d: expected %d fields, got %d", i, encoding.Len(), len(v.Value))
		}
		fields := make([]any, len(v.Value))
		for j, s := range v.Value {
			field, err := encoding.ParseValue(j, s)
			if err != nil {
				return fmt.Errorf("value %d field %d: %w", i, j, err)
			}
			fields[j] = field
		}
		values[i] = Value{Value: fields, TreeIndex: v.TreeIndex}
	}

	loaded := &Tree{encoding: encoding, tree: parsed.Tree, values: values}
	if err := loaded.Validate(); err != nil {
		return err
	}

	*t = *loaded
	return nil
}
