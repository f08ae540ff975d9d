package handler

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yeqown/go-qrcode"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
	"github.com/iliyamo/ticket-sale-gate/internal/broker"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
	"github.com/iliyamo/ticket-sale-gate/internal/middleware"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
	"github.com/iliyamo/ticket-sale-gate/internal/service"
)

// Reservations is the reservation engine behind the booking endpoints.
type Reservations interface {
	Hold(ctx context.Context, req service.HoldRequest) (model.HoldResult, error)
	ReleaseHold(ctx context.Context, eventID, holdToken, visitorToken string) (bool, error)
	Checkout(ctx context.Context, eventID, holdToken, visitorToken string) (model.BookingResult, error)
	ConfirmPayment(ctx context.Context, eventID, bookingID, visitorToken string) (model.PaymentResult, error)
	ActiveHolds(ctx context.Context, eventID, visitorToken string) ([]model.HoldResult, error)
	Tickets(ctx context.Context, bookingID, visitorToken string) ([]model.Ticket, error)
	Ticket(ctx context.Context, ticketID, visitorToken string) (model.Ticket, error)
}

// BookingReleaser frees the visitor's admission slot once payment settles.
type BookingReleaser interface {
	ReleaseBooking(ctx context.Context, eventID, visitorToken string) error
}

// PaidPublisher sends the booking audit record.
type PaidPublisher interface {
	PublishBookingPaid(ctx context.Context, evt broker.BookingPaidEvent) error
}

// BookingHandler serves the credential-protected booking flow.  The visitor
// comes from the access token, never from the request body.
type BookingHandler struct {
	svc   Reservations
	slots BookingReleaser
	audit PaidPublisher
	log   *logger.Logger
}

func NewBookingHandler(svc Reservations, slots BookingReleaser, audit PaidPublisher, log *logger.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, slots: slots, audit: audit, log: log}
}

type holdRequest struct {
	SectionID string `json:"sectionId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0,max=10"`
	Price     int64  `json:"price" validate:"gte=0"`
	Adjacent  bool   `json:"adjacent"`
}

// Hold handles POST /v1/events/:eventId/hold.
func (h *BookingHandler) Hold(c echo.Context) error {
	var req holdRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Hold(c.Request().Context(), service.HoldRequest{
		EventID:      c.Param("eventId"),
		VisitorToken: middleware.VisitorToken(c),
		SectionID:    req.SectionID,
		Quantity:     req.Quantity,
		Price:        req.Price,
		Adjacent:     req.Adjacent,
	})
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	return ok(c, status, res)
}

type holdTokenRequest struct {
	HoldToken string `json:"holdToken" validate:"required"`
}

// ReleaseHold handles POST /v1/holds/release.
func (h *BookingHandler) ReleaseHold(c echo.Context) error {
	var req holdTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	released, err := h.svc.ReleaseHold(c.Request().Context(), middleware.EventID(c), req.HoldToken, middleware.VisitorToken(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"holdToken": req.HoldToken, "released": released})
}

// MyHolds handles GET /v1/visitors/me/holds.  eventId defaults to the
// credential's event.
func (h *BookingHandler) MyHolds(c echo.Context) error {
	eventID := c.QueryParam("eventId")
	if eventID == "" {
		eventID = middleware.EventID(c)
	}
	holds, err := h.svc.ActiveHolds(c.Request().Context(), eventID, middleware.VisitorToken(c))
	if err != nil {
		return err
	}
	if holds == nil {
		holds = []model.HoldResult{}
	}
	return ok(c, http.StatusOK, holds)
}

// Checkout handles POST /v1/checkout.
func (h *BookingHandler) Checkout(c echo.Context) error {
	var req holdTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Checkout(c.Request().Context(), middleware.EventID(c), req.HoldToken, middleware.VisitorToken(c))
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	return ok(c, status, res)
}

type paymentRequest struct {
	BookingID string `json:"bookingId" validate:"required"`
}

// ConfirmPayment handles POST /v1/payments/confirm.  On the first
// confirmation the visitor's admission slot is released and the paid event
// goes to the audit queue; both are best effort.
func (h *BookingHandler) ConfirmPayment(c echo.Context) error {
	var req paymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	res, err := h.svc.ConfirmPayment(ctx, middleware.EventID(c), req.BookingID, middleware.VisitorToken(c))
	if err != nil {
		return err
	}

	if err := h.slots.ReleaseBooking(ctx, res.EventID, res.VisitorToken); err != nil {
		h.log.Warn("release booking slot failed", "event_id", res.EventID, "visitor_token", res.VisitorToken, "error", err)
	}
	if !res.Duplicate {
		evt := broker.BookingPaidEvent{
			BookingID:     res.BookingID,
			EventID:       res.EventID,
			VisitorToken:  res.VisitorToken,
			SeatIDs:       res.SeatIDs,
			TotalAmount:   res.TotalAmount,
			TicketsIssued: res.TicketsIssued,
			PaidAt:        res.PaidAt.UTC().Format(time.RFC3339),
		}
		if err := h.audit.PublishBookingPaid(ctx, evt); err != nil {
			h.log.Warn("booking.paid publish failed", "booking_id", res.BookingID, "error", err)
		}
	}
	return ok(c, http.StatusOK, res)
}

// Tickets handles GET /v1/bookings/:id/tickets.
func (h *BookingHandler) Tickets(c echo.Context) error {
	bookingID := c.Param("id")
	tickets, err := h.svc.Tickets(c.Request().Context(), bookingID, middleware.VisitorToken(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"bookingId": bookingID, "tickets": tickets})
}

// TicketQR handles GET /v1/tickets/:ticketId/qr and returns a JPEG of the
// ticket code.
func (h *BookingHandler) TicketQR(c echo.Context) error {
	t, err := h.svc.Ticket(c.Request().Context(), c.Param("ticketId"), middleware.VisitorToken(c))
	if err != nil {
		return err
	}

	qrc, err := qrcode.New(t.QRCode)
	if err != nil {
		return apperror.Internal("render ticket code", err)
	}
	f, err := os.CreateTemp("", "ticket-*.jpeg")
	if err != nil {
		return apperror.Internal("render ticket code", err)
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	if err := qrc.Save(path); err != nil {
		return apperror.Internal("render ticket code", err)
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.File(path)
}
