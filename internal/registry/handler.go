package registry

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/registry/entity"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

// Handler exposes the registry over HTTP.
type Handler struct {
	reg    *Registry
	logger *zap.SugaredLogger
}

func NewHandler(reg *Registry, logger *zap.SugaredLogger) *Handler {
	return &Handler{reg: reg, logger: logger}
}

type RegisterRequest struct {
	Name string `json:"name"`
}

type WorkerResponse struct {
	Worker entity.Worker `json:"worker"`
	Status entity.Status `json:"status"`
}

type ListResponse struct {
	Total   int             `json:"total"`
	Workers []entity.Worker `json:"workers"`
}

// Register registers the caller.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.Caller(r.Context())
	var req RegisterRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.reg.Register(r.Context(), caller, req.Name); err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	h.writeWorker(w, r, caller, http.StatusCreated)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) { h.setActive(w, r, false) }

func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) { h.setActive(w, r, true) }

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	caller, _ := auth.Caller(r.Context())
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	var err error
	if active {
		err = h.reg.Reactivate(r.Context(), caller, addr)
	} else {
		err = h.reg.Deactivate(r.Context(), caller, addr)
	}
	if err != nil {
		utilities.WriteError(w, h.logger, err)
		return
	}
	h.writeWorker(w, r, addr, http.StatusOK)
}

// Get returns a worker and its status. Unknown addresses are reported as
// unregistered rather than 404 so clients can poll before registering.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := utilities.PathAddress(r, "address")
	if !ok {
		utilities.WriteMessage(w, http.StatusBadRequest, "invalid address")
		return
	}
	h.writeWorker(w, r, addr, http.StatusOK)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	offset := utilities.QueryInt(r, "offset", 0)
	limit := utilities.QueryInt(r, "limit", 50)
	workers := h.reg.Workers(r.Context(), offset, limit)
	if workers == nil {
		workers = []entity.Worker{}
	}
	utilities.WriteJSON(w, http.StatusOK, ListResponse{Total: h.reg.WorkerCount(r.Context()), Workers: workers})
}

func (h *Handler) writeWorker(w http.ResponseWriter, r *http.Request, addr common.Address, status int) {
	wk, _ := h.reg.GetWorker(r.Context(), addr)
	utilities.WriteJSON(w, status, WorkerResponse{Worker: wk, Status: h.reg.Status(r.Context(), addr)})
}
