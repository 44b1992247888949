package vault

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/attestation"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/vault/entity"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type Handler struct {
	vault    *Vault
	decimals uint8
	logger   *zap.SugaredLogger
}

// NewHandler serves v. decimals is the pool token's precision, used for the
// formatted amounts in responses.
func NewHandler(v *Vault, decimals uint8, logger *zap.SugaredLogger) *Handler {
	return &Handler{vault: v, decimals: decimals, logger: logger}
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type LoanRequest struct {
	Amount      string                        `json:"amount"`
	Attestation attestation.CreditAttestation `json:"attestation"`
	Signature   hexutil.Bytes                 `json:"signature"`
}

type LoanResponse struct {
	Loan        entity.Loan `json:"loan"`
	Outstanding string      `json:"outstanding"`
	Formatted   string      `json:"outstanding_formatted"`
}

type RepayResponse struct {
	Paid      string `json:"paid"`
	Remaining string `json:"remaining"`
}

type PoolResponse struct {
	Address        common.Address    `json:"address"`
	Liquidity      string            `json:"liquidity"`
	TotalDeposited string            `json:"total_deposited"`
	TotalBorrowed  string            `json:"total_borrowed"`
	Formatted      map[string]string `json:"formatted"`
}

func (h *Handler) Pool(w http.ResponseWriter, r *http.Request) {
	liq := h.vault.AvailableLiquidity(r.Context())
	t := h.vault.Totals(r.Context())
	utilities.WriteJSON(w, http.StatusOK, PoolResponse{
		Address:        h.vault.Address(),
		Liquidity:      liq.String(),
		TotalDeposited: t.TotalDeposited.String(),
		TotalBorrowed:  t.TotalBorrowed.String(),
		Formatted: map[string]string{
			"liquidity":       utilities.FormatUnits(liq, h.decimals),
			"total_deposited": utilities.FormatUnits(t.TotalDeposited, h.decimals),
			"total_borrowed":  utilities.FormatUnits(t.TotalBorrowed, h.decimals),
		},
	})
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.poolOp(w, r, h.vault.Deposit)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.poolOp(w, r, h.vault.Withdraw)
}

func (h *Handler) poolOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller common.Address, amount *big.Int) error) {
	caller, _ := auth.Caller(r.Context())
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), caller, amount); err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	h.Pool(w, r)
}

// Request originates a loan for the caller.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())
	var req LoanRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := utilities.ParseBaseUnits(req.Amount)
	if err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid amount")
		return
	}
	loan, err := h.vault.RequestLoan(r.Context(), caller, amount, req.Attestation, req.Signature)
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	h.writeLoan(w, http.StatusCreated, loan)
}

func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	paid, err := h.vault.Repay(r.Context(), caller, amount)
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, RepayResponse{
		Paid:      paid.String(),
		Remaining: h.vault.Outstanding(r.Context(), caller).String(),
	})
}

func (h *Handler) MarkDefault(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())
	borrower, ok := utilities.PathAddress(r, "borrower")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	if err := h.vault.MarkDefault(r.Context(), caller, borrower); err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	loan, _ := h.vault.GetLoan(r.Context(), borrower)
	h.writeLoan(w, http.StatusOK, loan)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	borrower, ok := utilities.PathAddress(r, "borrower")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	loan, found := h.vault.GetLoan(r.Context(), borrower)
	if !found {
		utilities.WriteMessage(w, http.StatusNotFound, "LoanNotFound")
		return
	}
	h.writeLoan(w, http.StatusOK, loan)
}

func (h *Handler) writeLoan(w http.ResponseWriter, status int, loan entity.Loan) {
	out := new(big.Int)
	if loan.Active {
		out = loan.Remaining()
	}
	utilities.WriteJSON(w, status, LoanResponse{
		Loan:        loan,
		Outstanding: out.String(),
		Formatted:   utilities.FormatUnits(out, h.decimals),
	})
}

func (h *Handler) decodeAmount(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	var req AmountRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return nil, false
	}
	amount, err := utilities.ParseBaseUnits(req.Amount)
	if err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid amount")
		return nil, false
	}
	return amount, true
}
