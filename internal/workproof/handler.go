package workproof

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/workproof/entity"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type Handler struct {
	ledger *Ledger
	logger *zap.SugaredLogger
}

func NewHandler(l *Ledger, logger *zap.SugaredLogger) *Handler {
	return &Handler{ledger: l, logger: logger}
}

// SubmitRequest carries amounts as base-unit decimal strings.
type SubmitRequest struct {
	Worker       string      `json:"worker"`
	ProofHash    common.Hash `json:"proof_hash"`
	WorkUnits    string      `json:"work_units"`
	EarnedAmount string      `json:"earned_amount"`
	ProofURI     string      `json:"proof_uri"`
}

type SubmitResponse struct {
	ProofID uint64 `json:"proof_id"`
}

type VerifierRequest struct {
	Address string `json:"address"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())
	var req SubmitRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil || !common.IsHexAddress(req.Worker) {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	units, err := utilities.ParseBaseUnits(req.WorkUnits)
	if err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid work_units")
		return
	}
	earned, err := utilities.ParseBaseUnits(req.EarnedAmount)
	if err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid earned_amount")
		return
	}
	id, err := h.ledger.SubmitProof(r.Context(), caller, common.HexToAddress(req.Worker), req.ProofHash, units, earned, req.ProofURI)
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, SubmitResponse{ProofID: id})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid proof id")
		return
	}
	p, err := h.ledger.GetProof(r.Context(), id)
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	utilities.WriteJSON(w, http.StatusOK, map[string]uint64{"count": h.ledger.ProofCount(r.Context())})
}

// WorkerProofs lists a worker's proofs, oldest first.
func (h *Handler) WorkerProofs(w http.ResponseWriter, r *http.Request) {
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	ids := h.ledger.WorkerProofIDs(r.Context(), addr)
	out := make([]entity.Proof, 0, len(ids))
	for _, id := range ids {
		p, err := h.ledger.GetProof(r.Context(), id)
		if err != nil {
			utilities.WriteError(w, h.logger, err)
			return
		}
		out = append(out, p)
	}
	utilities.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, h.ledger.WorkerStats(r.Context(), addr))
}

func (h *Handler) Verifiers(w http.ResponseWriter, r *http.Request) {
	utilities.WriteJSON(w, http.StatusOK, h.ledger.Verifiers(r.Context()))
}

func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())
	var req VerifierRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil || !common.IsHexAddress(req.Address) {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.ledger.AuthorizeVerifier(r.Context(), caller, common.HexToAddress(req.Address)); err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	if err := h.ledger.RevokeVerifier(r.Context(), caller, addr); err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
