package token

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type Handler struct {
	token  *Token
	logger *zap.SugaredLogger
}

func NewHandler(t *Token, logger *zap.SugaredLogger) *Handler {
	return &Handler{token: t, logger: logger}
}

// Amount is a base-unit value rendered both raw and in token units.
type Amount struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

type InfoResponse struct {
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply Amount         `json:"total_supply"`
}

// MoveRequest is shared by transfer, approve and mint. Amount is in base
// units.
type MoveRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (h *Handler) amount(v *big.Int) Amount {
	return Amount{Raw: v.String(), Formatted: utilities.FormatUnits(v, h.token.Decimals())}
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	utilities.WriteJSON(w, http.StatusOK, InfoResponse{
		Address:     h.token.Address(),
		Name:        h.token.Name(),
		Symbol:      h.token.Symbol(),
		Decimals:    h.token.Decimals(),
		TotalSupply: h.amount(h.token.TotalSupply(r.Context())),
	})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, h.amount(h.token.BalanceOf(r.Context(), addr)))
}

func (h *Handler) Allowance(w http.ResponseWriter, r *http.Request) {
	owner, ok1 := utilities.PathAddress(r, "owner")
	spender, ok2 := utilities.PathAddress(r, "spender")
	if !ok1 || !ok2 {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, h.amount(h.token.Allowance(r.Context(), owner, spender)))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.token.Transfer)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.token.Approve)
}

func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.token.Mint)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller, to common.Address, amount *big.Int) error) {
	caller, _ := auth.Caller(r.Context())
	var req MoveRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil || !common.IsHexAddress(req.To) {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := utilities.ParseBaseUnits(req.Amount)
	if err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := op(r.Context(), caller, common.HexToAddress(req.To), amount); err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, h.amount(h.token.BalanceOf(r.Context(), caller)))
}
