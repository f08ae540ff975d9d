package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type dbPinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler is used by load balancers and monitoring systems.  It
// reports 200 only when both MySQL and Redis answer.
type HealthHandler struct {
	db    dbPinger
	redis pinger
}

func NewHealthHandler(db dbPinger, redis pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Health handles GET /healthz.  Any failed dependency turns it into a 503.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := echo.Map{"mysql": "ok", "redis": "ok"}
	if err := h.db.PingContext(ctx); err != nil {
		checks["mysql"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.redis.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, echo.Map{"success": status == http.StatusOK, "checks": checks})
}
