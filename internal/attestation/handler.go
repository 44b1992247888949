package attestation

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type Handler struct {
	verifier *Verifier
	// signer is nil when the service holds no signing key.
	signer *Signer
	logger *zap.SugaredLogger
}

func NewHandler(v *Verifier, s *Signer, logger *zap.SugaredLogger) *Handler {
	return &Handler{verifier: v, signer: s, logger: logger}
}

type VerifyRequest struct {
	Attestation CreditAttestation `json:"attestation"`
	Signature   hexutil.Bytes     `json:"signature"`
}

// VerifyResponse reports the outcome of a dry-run check. Reason is the revert
// reason a consuming call would fail with.
type VerifyResponse struct {
	Valid  bool            `json:"valid"`
	Signer *common.Address `json:"signer,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

type DomainResponse struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           *hexutil.Big   `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
	Separator         common.Hash    `json:"separator"`
}

type SignerRequest struct {
	Address string `json:"address"`
}

// Issue signs an attestation for the submitted scoring terms.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	if h.signer == nil {
		utilities.WriteMessage(w, http.StatusServiceUnavailable, "signer not configured")
		return
	}
	var t Terms
	if err := utilities.DecodeJSON(w, r, &t); err != nil || t.Worker == (common.Address{}) {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if t.CreditLimit != nil && t.CreditLimit.Sign() < 0 {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid creditLimit")
		return
	}
	signed, err := h.signer.Issue(t)
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	h.logger.Infow("attestation issued", "worker", t.Worker.Hex(), "nonce", signed.Attestation.Nonce)
	utilities.WriteJSON(w, http.StatusCreated, signed)
}

// Verify checks an attestation without consuming its nonce.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	signer, err := h.verifier.VerifyAttestation(r.Context(), req.Attestation, req.Signature)
	if err != nil {
		if !chain.IsRevert(err) {
			utilities.WriteError(w, h.logger, err)
			return
		}
		utilities.WriteJSON(w, http.StatusOK, VerifyResponse{Reason: chain.Reason(err)})
		return
	}
	utilities.WriteJSON(w, http.StatusOK, VerifyResponse{Valid: true, Signer: &signer})
}

// Hash returns the domain separator, struct hash and digest for debugging
// client-side signing.
func (h *Handler) Hash(w http.ResponseWriter, r *http.Request) {
	var att CreditAttestation
	if err := utilities.DecodeJSON(w, r, &att); err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, Debug(h.verifier.Domain(), att))
}

func (h *Handler) Domain(w http.ResponseWriter, r *http.Request) {
	d := h.verifier.Domain()
	utilities.WriteJSON(w, http.StatusOK, DomainResponse{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainID:           (*hexutil.Big)(d.ChainID),
		VerifyingContract: d.VerifyingContract,
		Separator:         d.Separator(),
	})
}

func (h *Handler) Nonce(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(r.PathValue("nonce"), 10, 64)
	if err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid nonce")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, map[string]bool{"used": h.verifier.IsNonceUsed(r.Context(), n)})
}

func (h *Handler) Signers(w http.ResponseWriter, r *http.Request) {
	utilities.WriteJSON(w, http.StatusOK, h.verifier.Signers(r.Context()))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())
	var req SignerRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil || !common.IsHexAddress(req.Address) {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.verifier.ApproveSigner(r.Context(), caller, common.HexToAddress(req.Address)); err != nil {
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
	if err := h.verifier.RevokeSigner(r.Context(), caller, addr); err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
