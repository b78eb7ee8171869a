package handler

import (
	"context"
	"net/http"
	"time"

	httputil "opsline/pkg/http"
	"opsline/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// Probe checks one backing dependency for readiness.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

type HealthHandler struct {
	probes []Probe
	log    *logger.Logger
}

func NewHealthHandler(log *logger.Logger, probes ...Probe) *HealthHandler {
	return &HealthHandler{
		probes: probes,
		log:    log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.probes))
	healthy := true
	for _, probe := range h.probes {
		if err := probe.Check(ctx); err != nil {
			h.log.Error("Readiness probe failed",
				"dependency", probe.Name,
				"error", err,
			)
			deps[probe.Name] = "error"
			healthy = false
			continue
		}
		deps[probe.Name] = "ok"
	}

	if !healthy {
		if writeErr := httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:       "unavailable",
			Dependencies: deps,
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:       "ready",
		Dependencies: deps,
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
