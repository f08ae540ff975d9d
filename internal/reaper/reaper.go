// Package reaper holds the periodic jobs that reclaim expired resources in
// MySQL and Redis and advance event sale statuses.
package reaper

import (
	"context"
	"time"

	"github.com/iliyamo/ticket-sale-gate/internal/broker"
	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// HoldExpirer frees seats of holds past their expiry.
type HoldExpirer interface {
	ExpireHolds(ctx context.Context) (int64, error)
}

// QueueCleaner is the part of the admission engine the reaper maintains.
type QueueCleaner interface {
	ExpireActiveBookings(ctx context.Context, eventID string, now time.Time) (int64, error)
	CleanupGhosts(ctx context.Context, eventID string, batch int) (int64, error)
}

// EventStore advances event status from the sale window timestamps.
type EventStore interface {
	IDsForCleanup(ctx context.Context, notBefore time.Time) ([]string, error)
	AdvanceStatuses(ctx context.Context, now time.Time) ([]model.StatusChange, error)
}

// Notifier announces event status changes.
type Notifier interface {
	Push(ctx context.Context, routingKey string, msg broker.PushMessage) error
}

// Reaper runs one pass of each job per call.  Every pass logs its errors and
// returns; the next tick simply tries again.
type Reaper struct {
	holds  HoldExpirer
	queues QueueCleaner
	events EventStore
	push   Notifier

	cleanupWindow time.Duration
	ghostBatch    int

	log *logger.Logger
	now func() time.Time
}

// New builds a reaper.  push may be nil.
func New(holds HoldExpirer, queues QueueCleaner, events EventStore, push Notifier, cfg config.AdmissionConfig, log *logger.Logger) *Reaper {
	if log == nil {
		log = logger.Discard()
	}
	return &Reaper{
		holds:         holds,
		queues:        queues,
		events:        events,
		push:          push,
		cleanupWindow: cfg.CleanupWindow,
		ghostBatch:    cfg.GhostBatch,
		log:           log.With("component", "reaper"),
		now:           time.Now,
	}
}

// ExpireHolds frees seats of holds past their deadline.
func (r *Reaper) ExpireHolds(ctx context.Context) {
	n, err := r.holds.ExpireHolds(ctx)
	if err != nil {
		r.log.Error("expire holds", "error", err)
		return
	}
	if n > 0 {
		r.log.Debug("expired holds", "count", n)
	}
}

// CleanupQueues drops stale booking slots and ghost queue entries for open
// events and those closed within the cleanup window.
func (r *Reaper) CleanupQueues(ctx context.Context) {
	now := r.now()
	ids, err := r.events.IDsForCleanup(ctx, now.Add(-r.cleanupWindow))
	if err != nil {
		r.log.Error("load events for cleanup", "error", err)
		return
	}
	for _, eventID := range ids {
		if n, err := r.queues.ExpireActiveBookings(ctx, eventID, now); err != nil {
			r.log.Error("expire booking slots", "event_id", eventID, "error", err)
		} else if n > 0 {
			r.log.Debug("expired booking slots", "event_id", eventID, "count", n)
		}
		if n, err := r.queues.CleanupGhosts(ctx, eventID, r.ghostBatch); err != nil {
			r.log.Error("cleanup ghost entries", "event_id", eventID, "error", err)
		} else if n > 0 {
			r.log.Info("cleaned ghost queue entries", "event_id", eventID, "count", n)
		}
	}
}

// AdvanceStatuses applies the sale window transitions and pushes each change
// to the event's subscribers.
func (r *Reaper) AdvanceStatuses(ctx context.Context) {
	now := r.now()
	changes, err := r.events.AdvanceStatuses(ctx, now)
	if err != nil {
		r.log.Error("advance event statuses", "error", err)
	}
	for _, c := range changes {
		r.log.Info("event status changed", "event_id", c.EventID, "from", c.From, "to", c.To)
		if r.push == nil {
			continue
		}
		msg := broker.PushMessage{
			Type:       broker.PushEventStatus,
			EventID:    c.EventID,
			Status:     c.To,
			PrevStatus: c.From,
			At:         now.UnixMilli(),
		}
		if err := r.push.Push(ctx, broker.EventTopic(c.EventID), msg); err != nil {
			r.log.Warn("push event status", "event_id", c.EventID, "error", err)
		}
	}
}
