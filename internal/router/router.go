package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-sale-gate/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterQueue registers the public waiting room endpoints.  Enqueue is
// the only rate limited route; it is the one hit by every arriving visitor.
func RegisterQueue(e *echo.Echo, q *handler.QueueHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/queue")
	g.POST("/enqueue", q.Enqueue, limit)
	g.POST("/ready", q.Ready)
	g.GET("/status", q.Status)
}

// RegisterPublic registers unauthenticated browse endpoints behind the
// response cache.
func RegisterPublic(e *echo.Echo, p *handler.EventHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/events", p.ListEvents, cache)
	e.GET("/v1/events/:eventId/sections", p.Sections, cache)
	e.GET("/v1/events/:eventId/listings", p.Listings, cache)
}
