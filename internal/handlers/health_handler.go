package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/itemservice/internal/domain"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler answers GET /health with the store's connectivity
type HealthHandler struct {
	store  domain.HealthChecker
	driver string
	logger *zap.Logger
}

// NewHealthHandler creates a health handler for the given store
func NewHealthHandler(store domain.HealthChecker, driver string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		driver: driver,
		logger: logger,
	}
}

// Check responds 200 when the store is reachable, 503 otherwise.
// Stores that track a connection pool also report its size.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"store":     h.driver,
	}

	if reporter, ok := h.store.(domain.HealthReporter); ok {
		status := reporter.Health()
		health["connections"] = status.Connections
		health["last_check"] = status.LastCheck.Unix()
	}

	code := http.StatusOK
	if err := h.store.CheckConnection(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		h.logger.Error("failed to encode health response", zap.Error(err))
	}
}
