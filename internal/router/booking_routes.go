package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-sale-gate/internal/handler"
	"github.com/iliyamo/ticket-sale-gate/internal/middleware"
)

// RegisterBooking registers the booking flow under /v1.  All routes require
// an access credential from the waiting room, and routes naming an event
// must name the credential's event.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireEventScope(),
	)
	g.POST("/events/:eventId/hold", h.Hold)
	g.POST("/holds/release", h.ReleaseHold)
	g.GET("/visitors/me/holds", h.MyHolds)
	g.POST("/checkout", h.Checkout)
	g.POST("/payments/confirm", h.ConfirmPayment)
	g.GET("/bookings/:id/tickets", h.Tickets)
	g.GET("/tickets/:ticketId/qr", h.TicketQR)
}
