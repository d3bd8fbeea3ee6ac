package handlers

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/polartar/vtvl-smartcontracts/service"
	"github.com/polartar/vtvl-smartcontracts/vesting"
	"github.com/polartar/vtvl-smartcontracts/whitelist"
)

type CreateTokenRequest struct {
	Name   string `json:"name" binding:"required"`
	Symbol string `json:"symbol" binding:"required"`
	Supply string `json:"supply" binding:"required"`
}

type TokenResponse struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Supply  string `json:"supply"`
}

type BalanceResponse struct {
	Token   string `json:"token"`
	Holder  string `json:"holder"`
	Balance string `json:"balance"`
}

type TransferRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type CreateVestingRequest struct {
	Token string `json:"token" binding:"required"`
	Kind  uint8  `json:"kind"`
}

type CreateMilestonesRequest struct {
	Token               string   `json:"token" binding:"required"`
	TotalAllocation     string   `json:"totalAllocation" binding:"required"`
	Percents            []uint64 `json:"percents" binding:"required"`
	Recipient           string   `json:"recipient" binding:"required"`
	ReleaseIntervalSecs uint64   `json:"releaseIntervalSecs"`
	VestingPeriod       uint64   `json:"vestingPeriod"`
}

type SetRootRequest struct {
	Root string `json:"root" binding:"required"`
}

// ScheduleJSON is a schedule on the wire. Amounts are decimal strings.
type ScheduleJSON struct {
	Recipient             string `json:"recipient"`
	StartTimestamp        uint64 `json:"startTimestamp"`
	EndTimestamp          uint64 `json:"endTimestamp"`
	CliffReleaseTimestamp uint64 `json:"cliffReleaseTimestamp"`
	ReleaseIntervalSecs   uint64 `json:"releaseIntervalSecs"`
	ScheduleIndex         uint64 `json:"scheduleIndex"`
	LinearVestAmount      string `json:"linearVestAmount"`
	CliffAmount           string `json:"cliffAmount"`
}

type ScheduleRequest struct {
	Schedule ScheduleJSON `json:"schedule"`
	Proof    []string     `json:"proof"`
	At       *uint64      `json:"at,omitempty"`
}

type AmountResponse struct {
	Amount string `json:"amount"`
}

type ClaimResponse struct {
	Recipient     string `json:"recipient"`
	ScheduleIndex uint64 `json:"scheduleIndex"`
	Withdrawn     string `json:"withdrawn"`
	Status        string `json:"status"`
	RevokedAt     uint64 `json:"revokedAt,omitempty"`
	RevokedAmount string `json:"revokedAmount,omitempty"`
}

type MilestoneOutput struct {
	Index       int    `json:"index"`
	Percent     uint64 `json:"percent"`
	Allocation  string `json:"allocation"`
	Status      string `json:"status"`
	CompletedAt uint64 `json:"completedAt,omitempty"`
	Withdrawn   string `json:"withdrawn"`
	Vested      string `json:"vested,omitempty"`
	Claimable   string `json:"claimable,omitempty"`
}

type InstanceResponse struct {
	Address             string            `json:"address"`
	Variant             string            `json:"variant"`
	Kind                uint8             `json:"kind"`
	Token               string            `json:"token"`
	Owner               string            `json:"owner"`
	Recipient           string            `json:"recipient,omitempty"`
	Root                string            `json:"root,omitempty"`
	CreatedAt           uint64            `json:"createdAt"`
	ReleaseIntervalSecs uint64            `json:"releaseIntervalSecs,omitempty"`
	VestingPeriod       uint64            `json:"vestingPeriod,omitempty"`
	Milestones          []MilestoneOutput `json:"milestones,omitempty"`
}

type WhitelistBuildRequest struct {
	Format              string `json:"format"`
	Data                string `json:"data" binding:"required"`
	Start               uint64 `json:"start" binding:"required"`
	End                 uint64 `json:"end" binding:"required"`
	Cliff               uint64 `json:"cliff"`
	ReleaseIntervalSecs uint64 `json:"releaseIntervalSecs" binding:"required"`
	Decimals            *uint8 `json:"decimals,omitempty"`
}

type WhitelistBuildResponse struct {
	Root      string          `json:"root"`
	Tree      json.RawMessage `json:"tree"`
	Schedules []ScheduleJSON  `json:"schedules"`
}

type WhitelistProveRequest struct {
	Tree          json.RawMessage `json:"tree" binding:"required"`
	Recipient     string          `json:"recipient"`
	ScheduleIndex uint64          `json:"scheduleIndex"`
}

type ProofOutput struct {
	Schedule ScheduleJSON `json:"schedule"`
	Leaf     string       `json:"leaf"`
	Proof    []string     `json:"proof"`
}

type WhitelistProveResponse struct {
	Root   string        `json:"root"`
	Proofs []ProofOutput `json:"proofs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", vesting.ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: bad hash %q", vesting.ErrInvalidProof, s)
	}
	return common.BytesToHash(b), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", vesting.ErrInvalidAmount, s)
	}
	return v, nil
}

func optionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return parseAmount(s)
}

func (s ScheduleJSON) schedule() (vesting.Schedule, error) {
	recipient, err := parseAddress(s.Recipient)
	if err != nil {
		return vesting.Schedule{}, err
	}
	linear, err := optionalAmount(s.LinearVestAmount)
	if err != nil {
		return vesting.Schedule{}, err
	}
	cliff, err := optionalAmount(s.CliffAmount)
	if err != nil {
		return vesting.Schedule{}, err
	}
	return vesting.Schedule{
		Recipient:             recipient,
		StartTimestamp:        s.StartTimestamp,
		EndTimestamp:          s.EndTimestamp,
		CliffReleaseTimestamp: s.CliffReleaseTimestamp,
		ReleaseIntervalSecs:   s.ReleaseIntervalSecs,
		ScheduleIndex:         s.ScheduleIndex,
		LinearVestAmount:      linear,
		CliffAmount:           cliff,
	}, nil
}

func scheduleJSON(s vesting.Schedule) ScheduleJSON {
	return ScheduleJSON{
		Recipient:             s.Recipient.Hex(),
		StartTimestamp:        s.StartTimestamp,
		EndTimestamp:          s.EndTimestamp,
		CliffReleaseTimestamp: s.CliffReleaseTimestamp,
		ReleaseIntervalSecs:   s.ReleaseIntervalSecs,
		ScheduleIndex:         s.ScheduleIndex,
		LinearVestAmount:      amountString(s.LinearVestAmount),
		CliffAmount:           amountString(s.CliffAmount),
	}
}

func parseProof(in []string) ([]common.Hash, error) {
	out := make([]common.Hash, len(in))
	for i, s := range in {
		h, err := parseHash(s)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func hexes(hs []common.Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Hex()
	}
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func tokenResponse(t service.TokenInfo) TokenResponse {
	return TokenResponse{
		Address: t.Address.Hex(),
		Owner:   t.Owner.Hex(),
		Name:    t.Name,
		Symbol:  t.Symbol,
		Supply:  amountString(t.Supply),
	}
}

func milestoneOutput(i int, m vesting.Milestone) MilestoneOutput {
	return MilestoneOutput{
		Index:       i,
		Percent:     m.Percent,
		Allocation:  amountString(m.Allocation),
		Status:      m.Status.String(),
		CompletedAt: m.CompletedAt,
		Withdrawn:   amountString(m.Withdrawn),
	}
}

func instanceResponse(info service.InstanceInfo) InstanceResponse {
	out := InstanceResponse{
		Address:             info.Address.Hex(),
		Variant:             info.Variant.String(),
		Kind:                info.Kind,
		Token:               info.Token.Hex(),
		Owner:               info.Owner.Hex(),
		CreatedAt:           info.CreatedAt,
		ReleaseIntervalSecs: info.ReleaseIntervalSecs,
		VestingPeriod:       info.VestingPeriod,
	}
	if info.Recipient != (common.Address{}) {
		out.Recipient = info.Recipient.Hex()
	}
	if info.Root != (common.Hash{}) {
		out.Root = info.Root.Hex()
	}
	for i, m := range info.Milestones {
		out.Milestones = append(out.Milestones, milestoneOutput(i, m))
	}
	return out
}

func claimResponse(recipient common.Address, index uint64, s vesting.ClaimState) ClaimResponse {
	out := ClaimResponse{
		Recipient:     recipient.Hex(),
		ScheduleIndex: index,
		Withdrawn:     amountString(s.Withdrawn),
		Status:        s.Status.String(),
	}
	if s.Revoked() {
		out.RevokedAt = s.RevokedAt
		out.RevokedAmount = amountString(s.RevokedAmount)
	}
	return out
}

func proofOutput(p whitelist.ScheduleProof) ProofOutput {
	return ProofOutput{
		Schedule: scheduleJSON(p.Schedule),
		Leaf:     p.Leaf.Hex(),
		Proof:    hexes(p.Proof),
	}
}
