package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/finboard/server/internal/respond"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// Pinger checks a backing store
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and service information
type HealthHandler struct {
	db     Pinger
	env    string
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, env string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, env: env, logger: logger}
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
}

type infoResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// ServeHTTP handles GET /health. An unreachable database answers 503.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.ErrorContext(r.Context(), "health check failed", "error", err)
			respond.JSON(w, http.StatusServiceUnavailable, respond.Envelope{
				Success: false,
				Message: "Service unavailable",
				Data:    healthResponse{Status: "unhealthy", Timestamp: time.Now().UTC(), Environment: h.env},
			})
			return
		}
	}
	respond.OK(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Environment: h.env}, "")
}

// HandleInfo handles GET /api/info
func (h *HealthHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, http.StatusOK, infoResponse{Name: "finboard-api", Version: Version, Environment: h.env}, "")
}
