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

// QueueEngine is the admission engine as seen by the public queue endpoints.
type QueueEngine interface {
	Enqueue(ctx context.Context, eventID, visitorToken string) (admission.EnqueueResult, error)
	MarkReady(ctx context.Context, eventID, visitorToken string) (string, error)
	Status(ctx context.Context, eventID, visitorToken string) (admission.SessionView, error)
}

// EnqueuePublisher records new queue entries on the queue log.
type EnqueuePublisher interface {
	PublishEnqueued(ctx context.Context, evt model.EnqueuedEvent) error
}

// QueueHandler serves the public waiting room endpoints.  Visitors are not
// authenticated here; the visitor token is an opaque client identifier.
type QueueHandler struct {
	engine QueueEngine
	logs   EnqueuePublisher
	log    *logger.Logger
	now    func() time.Time
}

func NewQueueHandler(engine QueueEngine, logs EnqueuePublisher, log *logger.Logger) *QueueHandler {
	return &QueueHandler{engine: engine, logs: logs, log: log, now: time.Now}
}

type queueRequest struct {
	EventID      string `json:"eventId" query:"eventId" validate:"required,max=64"`
	VisitorToken string `json:"visitorToken" query:"visitorToken" validate:"required,max=128"`
}

type enqueueResponse struct {
	admission.EnqueueResult
	TTLSeconds int64 `json:"ttlSeconds"`
}

// Enqueue handles POST /v1/queue/enqueue.  A new admission is logged to
// Kafka; a failed publish does not fail the request.
func (h *QueueHandler) Enqueue(c echo.Context) error {
	var req queueRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	res, err := h.engine.Enqueue(ctx, req.EventID, req.VisitorToken)
	if err != nil {
		return err
	}

	if res.Status == admission.EnqueueOK {
		evt := model.EnqueuedEvent{
			EventID:        req.EventID,
			VisitorToken:   req.VisitorToken,
			Sequence:       res.Sequence,
			QueueTimestamp: h.now().UnixMilli(),
		}
		if err := h.logs.PublishEnqueued(ctx, evt); err != nil {
			h.log.Warn("enqueue log publish failed", "event_id", req.EventID, "visitor_token", req.VisitorToken, "error", err)
		}
	}

	status := http.StatusCreated
	if res.Status == admission.EnqueueExists {
		status = http.StatusOK
	}
	return ok(c, status, enqueueResponse{EnqueueResult: res, TTLSeconds: int64(res.TTL / time.Second)})
}

// Ready handles POST /v1/queue/ready, sent once the visitor's page is ready
// to be admitted.
func (h *QueueHandler) Ready(c echo.Context) error {
	var req queueRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	status, err := h.engine.MarkReady(c.Request().Context(), req.EventID, req.VisitorToken)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"status": status})
}

// Status handles GET /v1/queue/status.  Polling keeps the session alive.
func (h *QueueHandler) Status(c echo.Context) error {
	var req queueRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	view, err := h.engine.Status(c.Request().Context(), req.EventID, req.VisitorToken)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, view)
}
