package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// Catalog is the read side of the reservation engine.
type Catalog interface {
	Events(ctx context.Context) ([]model.Event, error)
	Sections(ctx context.Context, eventID string) ([]model.SectionAvailability, error)
	Listings(ctx context.Context, eventID string, quantity int, adjacent bool) ([]model.SectionListing, error)
}

// EventHandler serves the unauthenticated browse endpoints.  Responses are
// cached briefly by the response cache middleware.
type EventHandler struct {
	catalog Catalog
}

func NewEventHandler(catalog Catalog) *EventHandler {
	return &EventHandler{catalog: catalog}
}

// ListEvents handles GET /v1/events.
func (h *EventHandler) ListEvents(c echo.Context) error {
	events, err := h.catalog.Events(c.Request().Context())
	if err != nil {
		return err
	}
	if events == nil {
		events = []model.Event{}
	}
	return ok(c, http.StatusOK, events)
}

// Sections handles GET /v1/events/:eventId/sections.
func (h *EventHandler) Sections(c echo.Context) error {
	eventID := c.Param("eventId")
	sections, err := h.catalog.Sections(c.Request().Context(), eventID)
	if err != nil {
		return err
	}
	if sections == nil {
		sections = []model.SectionAvailability{}
	}
	return ok(c, http.StatusOK, echo.Map{"eventId": eventID, "sections": sections})
}

// listingsRequest binds the query of the listings endpoint.  Adjacent stays
// a string so an omitted value can default to true.
type listingsRequest struct {
	Quantity int    `query:"quantity" validate:"gt=0,max=10"`
	Adjacent string `query:"adjacent" validate:"omitempty,oneof=true false"`
}

// Listings handles GET /v1/events/:eventId/listings?quantity=&adjacent=.
// Each price option is a total the client can send as the hold price.
func (h *EventHandler) Listings(c echo.Context) error {
	var req listingsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	adjacent := req.Adjacent != "false" // adjacent unless explicitly disabled

	eventID := c.Param("eventId")
	sections, err := h.catalog.Listings(c.Request().Context(), eventID, req.Quantity, adjacent)
	if err != nil {
		return err
	}
	if sections == nil {
		sections = []model.SectionListing{}
	}
	return ok(c, http.StatusOK, echo.Map{
		"eventId":  eventID,
		"quantity": req.Quantity,
		"adjacent": adjacent,
		"sections": sections,
	})
}
