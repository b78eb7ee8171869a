package handler

import (
	"encoding/json"
	"net/http"

	"opsline/internal/orders/service"
	httputil "opsline/pkg/http"
	"opsline/pkg/logger"
	"opsline/pkg/middleware"
	"opsline/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type OrderHandler struct {
	service service.OrderService
	log     *logger.Logger
}

func NewOrderHandler(service service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		log:     log,
	}
}

type editRequest struct {
	SessionID string `json:"session_id"`
}

type updateOrderRequest struct {
	SessionID string            `json:"session_id"`
	Updates   model.OrderUpdate `json:"updates"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		if writeErr := httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error: "Missing authenticated identity",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	var order model.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Create(r.Context(), identity, &order); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, order); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	order, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, order); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *OrderHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	orders, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, orders, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

// OpenEdit locks the order for the caller and returns the order together
// with the lease.
func (h *OrderHandler) OpenEdit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "OpenEdit", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	order, lock, err := h.service.OpenForEdit(r.Context(), middleware.BearerToken(r), ps.ByName("id"), req.SessionID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "OpenEdit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{
		"order": order,
		"lock":  lock,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "OpenEdit", "operation", "WriteSuccess", "error", err)
	}
}

func (h *OrderHandler) CloseEdit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "CloseEdit", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.CloseEdit(r.Context(), middleware.BearerToken(r), ps.ByName("id"), req.SessionID); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CloseEdit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		if writeErr := httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error: "Missing authenticated identity",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Update", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Update", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	err := h.service.Update(r.Context(), identity, middleware.BearerToken(r), ps.ByName("id"), req.SessionID, &req.Updates)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Update", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		if writeErr := httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error: "Missing authenticated identity",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Delete", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Delete", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Delete(r.Context(), identity, middleware.BearerToken(r), ps.ByName("id"), req.SessionID); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Delete", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *OrderHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/orders", h.Create)
	router.GET("/api/v1/orders", h.GetAll)
	router.GET("/api/v1/orders/id/:id", h.GetByID)
	router.PATCH("/api/v1/orders/id/:id", h.Update)
	router.DELETE("/api/v1/orders/id/:id", h.Delete)
	router.POST("/api/v1/orders/id/:id/edit", h.OpenEdit)
	router.DELETE("/api/v1/orders/id/:id/edit", h.CloseEdit)
}
