package indexer

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/indexer/entity"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type HistoryResponse struct {
	Loans  []entity.LoanEvent  `json:"loans"`
	Repays []entity.RepayEvent `json:"repays"`
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.RecentEvents(r.Context(), r.URL.Query().Get("name"), utilities.QueryInt(r, "limit", 50))
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) WorkerProofs(w http.ResponseWriter, r *http.Request) {
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	proofs, err := h.svc.WorkerProofs(r.Context(), addr, utilities.QueryInt(r, "limit", 50), utilities.QueryInt(r, "offset", 0))
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, proofs)
}

func (h *Handler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	st, err := h.svc.WorkerStats(r.Context(), addr)
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) BorrowerHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	loans, repays, err := h.svc.BorrowerHistory(r.Context(), addr)
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, HistoryResponse{Loans: loans, Repays: repays})
}
