package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-sale-gate/internal/admission"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

const (
	ActionOpenWaiting  = "OPEN_WAITING"
	ActionOpenSelling  = "OPEN_SELLING"
	ActionCloseSelling = "CLOSE_SELLING"
	ActionReset        = "RESET_EVENT"
)

// EventAdmin moves an event's sale window.
type EventAdmin interface {
	ListAll(ctx context.Context) ([]model.Event, error)
	OpenWaiting(ctx context.Context, eventID string, now time.Time) (bool, error)
	OpenSelling(ctx context.Context, eventID string, now time.Time) (bool, error)
	CloseSelling(ctx context.Context, eventID string, now time.Time) (bool, error)
	ResetToLocked(ctx context.Context, eventID string) error
}

// QueueResetter wipes an event's queue state.
type QueueResetter interface {
	Reset(ctx context.Context, eventID string) (admission.ResetResult, error)
}

// AdminHandler drives an event's sale window by hand.  Window actions only
// move timestamps; the event status job applies the transition.
type AdminHandler struct {
	events EventAdmin
	queue  QueueResetter
	log    *logger.Logger
	now    func() time.Time
}

func NewAdminHandler(events EventAdmin, queue QueueResetter, log *logger.Logger) *AdminHandler {
	return &AdminHandler{events: events, queue: queue, log: log, now: time.Now}
}

type actionResult struct {
	EventID string                 `json:"eventId"`
	Action  string                 `json:"action"`
	Applied bool                   `json:"applied"`
	Queue   *admission.ResetResult `json:"queue,omitempty"`
}

// ListEvents handles GET /v1/admin/events.
func (h *AdminHandler) ListEvents(c echo.Context) error {
	events, err := h.events.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	if events == nil {
		events = []model.Event{}
	}
	return ok(c, http.StatusOK, echo.Map{"events": events})
}

// OpenWaiting handles POST /v1/admin/events/:eventId/open-waiting.
func (h *AdminHandler) OpenWaiting(c echo.Context) error {
	return h.window(c, ActionOpenWaiting, h.events.OpenWaiting)
}

// OpenSelling handles POST /v1/admin/events/:eventId/open-selling.
func (h *AdminHandler) OpenSelling(c echo.Context) error {
	return h.window(c, ActionOpenSelling, h.events.OpenSelling)
}

// CloseSelling handles POST /v1/admin/events/:eventId/close-selling.
func (h *AdminHandler) CloseSelling(c echo.Context) error {
	return h.window(c, ActionCloseSelling, h.events.CloseSelling)
}

func (h *AdminHandler) window(c echo.Context, action string, apply func(context.Context, string, time.Time) (bool, error)) error {
	eventID := c.Param("eventId")
	applied, err := apply(c.Request().Context(), eventID, h.now())
	if err != nil {
		return err
	}
	h.log.Info("admin action", "event_id", eventID, "action", action, "applied", applied)
	return ok(c, http.StatusOK, actionResult{EventID: eventID, Action: action, Applied: applied})
}

// Reset handles POST /v1/admin/events/:eventId/reset.  The event goes back
// to LOCKED and its queue state is wiped.
func (h *AdminHandler) Reset(c echo.Context) error {
	eventID := c.Param("eventId")
	ctx := c.Request().Context()
	if err := h.events.ResetToLocked(ctx, eventID); err != nil {
		return err
	}
	res, err := h.queue.Reset(ctx, eventID)
	if err != nil {
		return err
	}
	h.log.Info("event reset",
		"event_id", eventID,
		"sessions_deleted", res.SessionsDeleted,
		"queue_count", res.QueueCount,
		"ready_count", res.ReadyCount,
	)
	return ok(c, http.StatusOK, actionResult{EventID: eventID, Action: ActionReset, Applied: true, Queue: &res})
}
