package merkle

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Encoding turns typed leaf values into leaf hashes. Leaves are
// keccak256(keccak256(abi.encode(values))), which keeps a leaf from ever
// colliding with a 64 byte internal node.
type Encoding struct {
	types []string
	args  abi.Arguments
}

func NewEncoding(types []string) (*Encoding, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("empty leaf encoding")
	}

	args := make(abi.Arguments, len(types))
	for i, name := range types {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			return nil, fmt.Errorf("leaf type %q: %w", name, err)
		}
		switch typ.T {
		case abi.UintTy, abi.IntTy, abi.AddressTy, abi.BoolTy, abi.StringTy, abi.FixedBytesTy:
		default:
			return nil, fmt.Errorf("unsupported leaf type: %s", name)
		}
		args[i] = abi.Argument{Type: typ}
	}

	return &Encoding{types: append([]string(nil), types...), args: args}, nil
}

// MustNewEncoding panics on an invalid type list. Use for package level
// encodings only.
func MustNewEncoding(types []string) *Encoding {
	e, err := NewEncoding(types)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Encoding) Types() []string {
	return append([]string(nil), e.types...)
}

func (e *Encoding) Len() int {
	return len(e.types)
}

// Encode returns abi.encode(values).
func (e *Encoding) Encode(values []any) ([]byte, error) {
	if len(values) != len(e.args) {
		return nil, fmt.Errorf("expected %d values, got %d", len(e.args), len(values))
	}

	normalized := make([]any, len(values))
	for i, v := range values {
		n, err := normalize(e.args[i].Type, v)
		if err != nil {
			return nil, fmt.Errorf("value %d (%s): %w", i, e.types[i], err)
		}
		normalized[i] = n
	}

	return e.args.Pack(normalized...)
}

func (e *Encoding) LeafHash(values []any) (common.Hash, error) {
	encoded, err := e.Encode(values)
	if err != nil {
		return common.Hash{}, err
	}
	inner := crypto.Keccak256(encoded)
	return crypto.Keccak256Hash(inner), nil
}

// FormatValue renders a leaf value as the string stored in tree dumps.
func (e *Encoding) FormatValue(i int, v any) (string, error) {
	typ := e.args[i].Type
	switch typ.T {
	case abi.UintTy, abi.IntTy:
		n, err := toBig(v)
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case abi.AddressTy:
		addr, err := toAddress(v)
		if err != nil {
			return "", err
		}
		return addr.Hex(), nil
	case abi.BoolTy:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			return "true", nil
		}
		return "false", nil
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case abi.FixedBytesTy:
		n, err := normalize(typ, v)
		if err != nil {
			return "", err
		}
		rv := reflect.ValueOf(n)
		buf := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(buf), rv)
		return hexutil.Encode(buf), nil
	}
	return "", fmt.Errorf("unsupported leaf type: %s", e.types[i])
}

// ParseValue is the inverse of FormatValue. Integers come back as *big.Int,
// addresses as common.Address.
func (e *Encoding) ParseValue(i int, s string) (any, error) {
	typ := e.args[i].Type
	switch typ.T {
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer: %s", s)
		}
		return n, nil
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address: %s", s)
		}
		return common.HexToAddress(s), nil
	case abi.BoolTy:
		switch s {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid bool: %s", s)
	case abi.StringTy:
		return s, nil
	case abi.FixedBytesTy:
		raw := common.FromHex(s)
		if len(raw) != typ.Size || !strings.HasPrefix(s, "0x") {
			return nil, fmt.Errorf("invalid bytes%d: %s", typ.Size, s)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("unsupported leaf type: %s", e.types[i])
}

func normalize(typ abi.Type, v any) (any, error) {
	switch typ.T {
	case abi.UintTy, abi.IntTy:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if typ.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value for uint%d", typ.Size)
		}
		bits := typ.Size
		if typ.T == abi.IntTy {
			bits--
		}
		if n.BitLen() > bits {
			return nil, fmt.Errorf("value %s overflows %d bits", n, typ.Size)
		}
		goType := typ.GetType()
		if goType == reflect.TypeOf(&big.Int{}) {
			return n, nil
		}
		if typ.T == abi.UintTy {
			return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
		}
		return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
	case abi.AddressTy:
		return toAddress(v)
	case abi.BoolTy:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case abi.FixedBytesTy:
		var raw []byte
		switch b := v.(type) {
		case common.Hash:
			raw = b.Bytes()
		case []byte:
			raw = b
		default:
			return nil, fmt.Errorf("expected bytes, got %T", v)
		}
		if len(raw) != typ.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", typ.Size, len(raw))
		}
		arr := reflect.New(typ.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(raw))
		return arr.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported abi type %s", typ.String())
}

func toBig(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return n, nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func toAddress(v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, fmt.Errorf("invalid address: %s", a)
		}
		return common.HexToAddress(a), nil
	}
	return common.Address{}, fmt.Errorf("expected address, got %T", v)
}
