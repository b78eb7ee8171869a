package handler

import (
	"encoding/json"
	"net/http"

	"opsline/internal/locks/service"
	httputil "opsline/pkg/http"
	"opsline/pkg/logger"
	"opsline/pkg/middleware"
	"opsline/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type LockHandler struct {
	service service.LockService
	log     *logger.Logger
}

func NewLockHandler(service service.LockService, log *logger.Logger) *LockHandler {
	return &LockHandler{
		service: service,
		log:     log,
	}
}

// Acquire grants or refuses a lease. A refusal is a normal outcome, not a
// server error; the 409 body names the current holder.
func (h *LockHandler) Acquire(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		if writeErr := httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error: "Missing authenticated identity",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Acquire", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	var req model.AcquireLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Acquire", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	lock, err := h.service.Acquire(r.Context(), identity, &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Acquire", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, lock); err != nil {
		h.log.Error("failed to write success response", "handler", "Acquire", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) Renew(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	var req model.RenewLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Renew", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	lock, err := h.service.Renew(r.Context(), id, &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Renew", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, lock); err != nil {
		h.log.Error("failed to write success response", "handler", "Renew", "operation", "WriteSuccess", "error", err)
	}
}

// Release always answers 204 for well-formed requests so callers on an exit
// path never have to branch on the outcome.
func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	var req model.ReleaseLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Release", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Release(r.Context(), id, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Release", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	resourceType := r.URL.Query().Get("resource_type")

	status, err := h.service.Status(r.Context(), resourceType, id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Status", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "Status", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	locks, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, locks, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *LockHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/locks/acquire", h.Acquire)
	router.GET("/api/v1/locks", h.GetAll)
	router.POST("/api/v1/locks/id/:id/renew", h.Renew)
	router.DELETE("/api/v1/locks/id/:id", h.Release)
	router.GET("/api/v1/locks/id/:id/status", h.Status)
}
