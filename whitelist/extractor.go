package whitelist

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrMalformedInput = errors.New("malformed whitelist input")

// Entry is one whitelist row before the shared timing is applied.
type Entry struct {
	Recipient     common.Address
	ScheduleIndex uint64
	Allocation    *big.Int
	Cliff         *big.Int
}

type extractor interface {
	Extract(r io.Reader) ([]Entry, error)
}

// getExtractor returns the reader for a whitelist format. Amounts are given
// in whole tokens and scaled by 10^decimals.
func getExtractor(name string, decimals uint8) (extractor, error) {
	switch name {
	case "", "csv":
		return &csvExtractor{decimals: decimals}, nil
	case "json":
		return &jsonExtractor{decimals: decimals}, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrMalformedInput, name)
	}
}

// indexer hands out per-recipient schedule indexes in row order.
type indexer map[common.Address]uint64

func (ix indexer) next(a common.Address) uint64 {
	n := ix[a]
	ix[a] = n + 1
	return n
}

// csvExtractor reads rows with an `address,allocation[,cliff][,index]`
// header. Column order follows the header.
type csvExtractor struct {
	decimals uint8
}

func (e *csvExtractor) Extract(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty csv", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	addrCol, ok := cols["address"]
	if !ok {
		return nil, fmt.Errorf("%w: missing address column", ErrMalformedInput)
	}
	allocCol, ok := cols["allocation"]
	if !ok {
		return nil, fmt.Errorf("%w: missing allocation column", ErrMalformedInput)
	}
	cliffCol, hasCliff := cols["cliff"]
	indexCol, hasIndex := cols["index"]

	ix := make(indexer)
	var entries []Entry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedInput, line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		field := func(col int) string {
			if col < len(rec) {
				return strings.TrimSpace(rec[col])
			}
			return ""
		}

		raw := rawEntry{Address: field(addrCol), Allocation: field(allocCol)}
		if hasCliff {
			raw.Cliff = field(cliffCol)
		}
		if hasIndex {
			if s := field(indexCol); s != "" {
				n, err := strconv.ParseUint(s, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: index %q", ErrMalformedInput, line, s)
				}
				raw.Index = &n
			}
		}

		entry, err := raw.entry(e.decimals, ix)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// jsonExtractor reads an array of rawEntry objects.
type jsonExtractor struct {
	decimals uint8
}

func (e *jsonExtractor) Extract(r io.Reader) ([]Entry, error) {
	var raws []rawEntry
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	ix := make(indexer)
	entries := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		entry, err := raw.entry(e.decimals, ix)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type rawEntry struct {
	Address    string  `json:"address"`
	Allocation string  `json:"allocation"`
	Cliff      string  `json:"cliff,omitempty"`
	Index      *uint64 `json:"index,omitempty"`
}

func (r rawEntry) entry(decimals uint8, ix indexer) (Entry, error) {
	if !common.IsHexAddress(r.Address) {
		return Entry{}, fmt.Errorf("%w: address %q", ErrMalformedInput, r.Address)
	}
	addr := common.HexToAddress(r.Address)

	alloc, err := ParseTokenAmount(r.Allocation, decimals)
	if err != nil {
		return Entry{}, err
	}
	cliff := new(big.Int)
	if r.Cliff != "" {
		if cliff, err = ParseTokenAmount(r.Cliff, decimals); err != nil {
			return Entry{}, err
		}
	}

	var index uint64
	if r.Index != nil {
		index = *r.Index
	} else {
		index = ix.next(addr)
	}

	return Entry{Recipient: addr, ScheduleIndex: index, Allocation: alloc, Cliff: cliff}, nil
}

// ParseTokenAmount converts a decimal token amount such as "1.5" into base
// units. The result must be a non-negative whole number of base units.
func ParseTokenAmount(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrMalformedInput)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q", ErrMalformedInput, s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %q", ErrMalformedInput, s)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrMalformedInput, s, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}
