package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"go-identity-service/internal/http/response"
)

type HealthHandler struct {
	db    *gorm.DB
	redis redis.UniversalClient
}

// NewHealthHandler takes its dependencies as optional: a nil redis
// client (local limiter mode) is simply skipped by readiness.
func NewHealthHandler(db *gorm.DB, redisClient redis.UniversalClient) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if h.db != nil {
		checks["database"] = "ok"
		if sqlDB, err := h.db.DB(); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "a dependency is not ready", checks)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}
