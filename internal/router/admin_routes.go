package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-sale-gate/internal/handler"
	"github.com/iliyamo/ticket-sale-gate/internal/middleware"
)

// RegisterAdmin registers the sale control endpoints.  Every route needs an
// X-Admin-Key matching adminKeyHash; with no hash configured they all
// answer 403.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, adminKeyHash string) {
	g := e.Group("/v1/admin", middleware.RequireAdminKey(adminKeyHash))
	g.GET("/events", h.ListEvents)
	g.POST("/events/:eventId/open-waiting", h.OpenWaiting)
	g.POST("/events/:eventId/open-selling", h.OpenSelling)
	g.POST("/events/:eventId/close-selling", h.CloseSelling)
	g.POST("/events/:eventId/reset", h.Reset)
}
