package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/polartar/vtvl-smartcontracts/merkle"
	"github.com/polartar/vtvl-smartcontracts/service"
	"github.com/polartar/vtvl-smartcontracts/vesting"
	"github.com/polartar/vtvl-smartcontracts/whitelist"
	"github.com/sirupsen/logrus"
)

// CallerHeader carries the hex address the request acts as.
const CallerHeader = "X-Caller"

const defaultDecimals = 18

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	r.POST("/tokens", h.CreateToken)
	r.GET("/tokens/:token/balances/:holder", h.Balance)
	r.POST("/tokens/:token/transfer", h.Transfer)

	r.POST("/factory/vesting", h.CreateVesting)
	r.POST("/factory/simple-milestones", h.CreateSimpleMilestones)
	r.POST("/factory/vesting-milestone", h.CreateVestingMilestone)
	r.GET("/factory/instances/:owner", h.Instances)

	r.GET("/contracts/:address", h.Instance)
	r.PUT("/contracts/:address/root", h.SetRoot)
	r.POST("/contracts/:address/vested", h.Vested)
	r.POST("/contracts/:address/claimable", h.Claimable)
	r.POST("/contracts/:address/withdraw", h.Withdraw)
	r.POST("/contracts/:address/revoke", h.Revoke)
	r.GET("/contracts/:address/claims/:recipient/:index", h.Claim)
	r.GET("/contracts/:address/milestones/:index", h.Milestone)
	r.POST("/contracts/:address/milestones/:index/complete", h.CompleteMilestone)
	r.POST("/contracts/:address/milestones/:index/withdraw", h.WithdrawMilestone)
	r.POST("/contracts/:address/withdraw-admin", h.WithdrawAdmin)

	r.POST("/whitelist/build", h.BuildWhitelist)
	r.POST("/whitelist/prove", h.ProveWhitelist)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrContractNotFound),
		errors.Is(err, service.ErrTokenNotFound),
		errors.Is(err, whitelist.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, vesting.ErrUnauthorized),
		errors.Is(err, vesting.ErrNoRecipient):
		return http.StatusForbidden
	case errors.Is(err, vesting.ErrNothingToWithdraw),
		errors.Is(err, vesting.ErrNotCompleted),
		errors.Is(err, vesting.ErrAlreadyCompleted),
		errors.Is(err, vesting.ErrNotDeposited),
		errors.Is(err, vesting.ErrAlreadyRevoked),
		errors.Is(err, vesting.ErrTransferFailed),
		errors.Is(err, vesting.ErrInsufficientBalance),
		errors.Is(err, service.ErrWrongKind):
		return http.StatusConflict
	case errors.Is(err, vesting.ErrInvalidProof),
		errors.Is(err, vesting.ErrInvalidAddress),
		errors.Is(err, vesting.ErrInvalidSchedule),
		errors.Is(err, vesting.ErrInvalidMilestone),
		errors.Is(err, vesting.ErrInvalidPercents),
		errors.Is(err, vesting.ErrInvalidAmount),
		errors.Is(err, whitelist.ErrMalformedInput),
		errors.Is(err, whitelist.ErrDuplicateSchedule),
		errors.Is(err, whitelist.ErrNoEntries),
		errors.Is(err, merkle.ErrInvalidTree),
		errors.Is(err, merkle.ErrInvalidFormat),
		errors.Is(err, merkle.ErrEmptyTree):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

func caller(c *gin.Context) (common.Address, bool) {
	raw := c.GetHeader(CallerHeader)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing " + CallerHeader + " header"})
		return common.Address{}, false
	}
	addr, err := parseAddress(raw)
	if err != nil {
		badRequest(c, err)
		return common.Address{}, false
	}
	return addr, true
}

func addressParam(c *gin.Context, name string) (common.Address, bool) {
	addr, err := parseAddress(c.Param(name))
	if err != nil {
		badRequest(c, err)
		return common.Address{}, false
	}
	return addr, true
}

func indexParam(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		badRequest(c, vesting.ErrInvalidMilestone)
		return 0, false
	}
	return i, true
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CreateToken(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	supply, err := parseAmount(req.Supply)
	if err != nil {
		badRequest(c, err)
		return
	}

	info, err := h.svc.CreateToken(owner, req.Name, req.Symbol, supply)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tokenResponse(info))
}

func (h *Handler) Balance(c *gin.Context) {
	token, ok := addressParam(c, "token")
	if !ok {
		return
	}
	holder, ok := addressParam(c, "holder")
	if !ok {
		return
	}

	bal, err := h.svc.BalanceOf(token, holder)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{Token: token.Hex(), Holder: holder.Hex(), Balance: bal.String()})
}

func (h *Handler) Transfer(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	token, ok := addressParam(c, "token")
	if !ok {
		return
	}
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.Transfer(token, from, to, amount); err != nil {
		h.fail(c, err)
		return
	}
	bal, err := h.svc.BalanceOf(token, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{Token: token.Hex(), Holder: to.Hex(), Balance: bal.String()})
}

func (h *Handler) CreateVesting(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req CreateVestingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	token, err := parseAddress(req.Token)
	if err != nil {
		badRequest(c, err)
		return
	}

	info, err := h.svc.CreateVestingContract(owner, token, req.Kind)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, instanceResponse(info))
}

func (h *Handler) CreateSimpleMilestones(c *gin.Context) {
	h.createMilestones(c, h.svc.CreateSimpleMilestones)
}

func (h *Handler) CreateVestingMilestone(c *gin.Context) {
	h.createMilestones(c, h.svc.CreateVestingMilestone)
}

func (h *Handler) createMilestones(c *gin.Context, create func(common.Address, service.MilestoneRequest) (service.InstanceInfo, error)) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req CreateMilestonesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	token, err := parseAddress(req.Token)
	if err != nil {
		badRequest(c, err)
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		badRequest(c, err)
		return
	}
	total, err := parseAmount(req.TotalAllocation)
	if err != nil {
		badRequest(c, err)
		return
	}

	info, err := create(owner, service.MilestoneRequest{
		Token:               token,
		TotalAllocation:     total,
		Percents:            req.Percents,
		Recipient:           recipient,
		ReleaseIntervalSecs: req.ReleaseIntervalSecs,
		VestingPeriod:       req.VestingPeriod,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, instanceResponse(info))
}

func (h *Handler) Instances(c *gin.Context) {
	owner, ok := addressParam(c, "owner")
	if !ok {
		return
	}
	list, err := h.svc.Instances(owner)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]InstanceResponse, len(list))
	for i, info := range list {
		out[i] = instanceResponse(info)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Instance(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	info, err := h.svc.Instance(addr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, instanceResponse(info))
}

func (h *Handler) SetRoot(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req SetRootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	root, err := parseHash(req.Root)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.SetMerkleRoot(who, addr, root); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"root": root.Hex()})
}

// scheduleRequest binds a ScheduleRequest and decodes its schedule and proof.
func scheduleRequest(c *gin.Context) (ScheduleRequest, vesting.Schedule, []common.Hash, bool) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return req, vesting.Schedule{}, nil, false
	}
	s, err := req.Schedule.schedule()
	if err != nil {
		badRequest(c, err)
		return req, vesting.Schedule{}, nil, false
	}
	proof, err := parseProof(req.Proof)
	if err != nil {
		badRequest(c, err)
		return req, vesting.Schedule{}, nil, false
	}
	return req, s, proof, true
}

func (h *Handler) Vested(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	req, s, _, ok := scheduleRequest(c)
	if !ok {
		return
	}
	at := h.svc.Now()
	if req.At != nil {
		at = *req.At
	}

	vested, err := h.svc.VestedAmount(addr, s, at)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vested": vested.String(),
		"final":  vesting.FinalVestedAmount(s).String(),
		"at":     at,
	})
}

func (h *Handler) Claimable(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	_, s, _, ok := scheduleRequest(c)
	if !ok {
		return
	}

	amount, err := h.svc.ClaimableAmount(addr, s)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AmountResponse{Amount: amount.String()})
}

func (h *Handler) Withdraw(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	_, s, proof, ok := scheduleRequest(c)
	if !ok {
		return
	}

	paid, err := h.svc.Withdraw(who, addr, s, proof)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AmountResponse{Amount: paid.String()})
}

func (h *Handler) Revoke(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	_, s, proof, ok := scheduleRequest(c)
	if !ok {
		return
	}

	state, err := h.svc.RevokeClaim(who, addr, s, proof)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, claimResponse(s.Recipient, s.ScheduleIndex, state))
}

func (h *Handler) Claim(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	recipient, ok := addressParam(c, "recipient")
	if !ok {
		return
	}
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		badRequest(c, vesting.ErrInvalidSchedule)
		return
	}

	state, err := h.svc.Claim(addr, recipient, index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, claimResponse(recipient, index, state))
}

func (h *Handler) Milestone(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	i, ok := indexParam(c)
	if !ok {
		return
	}

	info, err := h.svc.Milestone(addr, i)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := milestoneOutput(info.Index, info.Milestone)
	out.Vested = amountString(info.Vested)
	out.Claimable = amountString(info.Claimable)
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CompleteMilestone(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	i, ok := indexParam(c)
	if !ok {
		return
	}

	if err := h.svc.SetComplete(who, addr, i); err != nil {
		h.fail(c, err)
		return
	}
	h.Milestone(c)
}

func (h *Handler) WithdrawMilestone(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	i, ok := indexParam(c)
	if !ok {
		return
	}

	paid, err := h.svc.WithdrawMilestone(who, addr, i)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AmountResponse{Amount: paid.String()})
}

func (h *Handler) WithdrawAdmin(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}

	swept, err := h.svc.WithdrawAdmin(who, addr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AmountResponse{Amount: swept.String()})
}

func (h *Handler) BuildWhitelist(c *gin.Context) {
	var req WhitelistBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	decimals := uint8(defaultDecimals)
	if req.Decimals != nil {
		decimals = *req.Decimals
	}

	tree, schedules, err := whitelist.BuildFrom(strings.NewReader(req.Data), whitelist.Params{
		Start:               req.Start,
		End:                 req.End,
		Cliff:               req.Cliff,
		ReleaseIntervalSecs: req.ReleaseIntervalSecs,
		Decimals:            decimals,
		Format:              req.Format,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	dump, err := json.Marshal(tree)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := WhitelistBuildResponse{Root: tree.Root().Hex(), Tree: dump, Schedules: make([]ScheduleJSON, len(schedules))}
	for i, s := range schedules {
		out.Schedules[i] = scheduleJSON(s)
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ProveWhitelist(c *gin.Context) {
	var req WhitelistProveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tree := new(merkle.Tree)
	if err := json.Unmarshal(req.Tree, tree); err != nil {
		h.fail(c, err)
		return
	}

	var proofs []whitelist.ScheduleProof
	if req.Recipient == "" {
		all, err := whitelist.ProveAll(tree)
		if err != nil {
			h.fail(c, err)
			return
		}
		proofs = all
	} else {
		recipient, err := parseAddress(req.Recipient)
		if err != nil {
			badRequest(c, err)
			return
		}
		p, err := whitelist.Prove(tree, recipient, req.ScheduleIndex)
		if err != nil {
			h.fail(c, err)
			return
		}
		proofs = []whitelist.ScheduleProof{p}
	}

	out := WhitelistProveResponse{Root: tree.Root().Hex(), Proofs: make([]ProofOutput, len(proofs))}
	for i, p := range proofs {
		out.Proofs[i] = proofOutput(p)
	}
	c.JSON(http.StatusOK, out)
}
