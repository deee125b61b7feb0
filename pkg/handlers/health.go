package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/config"
	"github.com/ekaya-inc/ekaya-streams/pkg/logging"
)

const healthPingTimeout = 2 * time.Second

// Engines is the view of the engine set health checks need.
type Engines interface {
	Ping(ctx context.Context) error
	Stats() []datasource.PoolStats
}

// HealthResponse reports engine reachability and pool usage.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Error   string                 `json:"error,omitempty"`
	Engines []datasource.PoolStats `json:"engines,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg     *config.Config
	engines Engines
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. engines may be nil, in
// which case /health only reports that the process is up.
func NewHealthHandler(cfg *config.Config, engines Engines, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, engines: engines, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Returns 503 when any engine cannot be reached.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if h.engines != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.engines.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("error", logging.SanitizeError(err)))
			response.Status = "unavailable"
			response.Error = "database unreachable"
			status = http.StatusServiceUnavailable
		}
		response.Engines = h.engines.Stats()
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-streams",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
