package auth

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type ChallengeRequest struct {
	Address string `json:"address"`
}

type ChallengeResponse struct {
	Challenge string `json:"challenge"`
	Message   string `json:"message"`
}

func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !common.IsHexAddress(req.Address) {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	tok, msg, err := h.svc.Challenge(common.HexToAddress(req.Address))
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ChallengeResponse{Challenge: tok, Message: msg})
}

type LoginRequest struct {
	Challenge string        `json:"challenge"`
	Signature hexutil.Bytes `json:"signature"`
}

type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	Address     common.Address `json:"address"`
	Operator    bool           `json:"operator"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	tok, id, err := h.svc.Login(req.Challenge, req.Signature)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		utilities.WriteMessage(w, http.StatusUnauthorized, err.Error())
		return
	}
	utilities.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		Address:     id.Address,
		Operator:    id.Operator,
	})
}
