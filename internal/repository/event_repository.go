package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// EventRepo reads events and drives their sale lifecycle.  It also serves
// as the admission status provider: the serve loop only grants access
// for events currently SELLING.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `event_id, event_name, event_time, venue, location, status, sale_start_time, sale_open_at, sale_end_time`

func scanEvent(row interface{ Scan(...any) error }) (model.Event, error) {
	var (
		e                    model.Event
		start, open, saleEnd sql.NullTime
	)
	if err := row.Scan(&e.EventID, &e.Name, &e.EventTime, &e.Venue, &e.Location, &e.Status, &start, &open, &saleEnd); err != nil {
		return model.Event{}, err
	}
	e.SaleStartTime = nullTimePtr(start)
	e.SaleOpenAt = nullTimePtr(open)
	e.SaleEndTime = nullTimePtr(saleEnd)
	return e, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// GetByID returns ErrEventNotFound when no row matches.
func (r *EventRepo) GetByID(ctx context.Context, eventID string) (model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, eventID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrEventNotFound
	}
	return e, err
}

// List returns every event that has not ended, soonest first.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE status <> 'ENDED' ORDER BY event_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventStatus returns the sale status of an event.
func (r *EventRepo) EventStatus(ctx context.Context, eventID string) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM events WHERE event_id = ?`, eventID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEventNotFound
	}
	return status, err
}

// IDsForCleanup returns events still open or closed after notBefore, so the
// reapers keep draining queues for a short while after a sale ends.
func (r *EventRepo) IDsForCleanup(ctx context.Context, notBefore time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id FROM events WHERE sale_end_time IS NULL OR sale_end_time >= ?`,
		notBefore.UTC(),
	)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// statusTransition moves events in From to To when Where holds at now.
// Where is written against the events table and takes now once per '?'.
type statusTransition struct {
	From, To string
	Where    string
}

// Transitions run in this order on every tick.  ENDED → SELLING reopens an
// event whose window was extended after it closed.
var statusTransitions = []statusTransition{
	{From: model.EventLocked, To: model.EventWaiting, Where: `sale_start_time <= ?`},
	{From: model.EventWaiting, To: model.EventSelling, Where: `sale_open_at <= ?`},
	{From: model.EventEnded, To: model.EventSelling, Where: `sale_open_at <= ? AND (sale_end_time IS NULL OR sale_end_time > ?)`},
	{From: model.EventSelling, To: model.EventEnded, Where: `sale_end_time <= ?`},
}

// AdvanceStatuses applies every lifecycle transition due at now and returns
// the changes.  Each transition locks its candidate rows, then updates
// exactly those ids, so the returned list matches what was written.
func (r *EventRepo) AdvanceStatuses(ctx context.Context, now time.Time) ([]model.StatusChange, error) {
	var changes []model.StatusChange
	for _, t := range statusTransitions {
		ids, err := r.transition(ctx, t, now.UTC())
		if err != nil {
			return changes, fmt.Errorf("%s -> %s: %w", t.From, t.To, err)
		}
		for _, id := range ids {
			changes = append(changes, model.StatusChange{EventID: id, From: t.From, To: t.To})
		}
	}
	return changes, nil
}

func (r *EventRepo) transition(ctx context.Context, t statusTransition, now time.Time) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	args := []any{t.From}
	for i := strings.Count(t.Where, "?"); i > 0; i-- {
		args = append(args, now)
	}
	rows, err := tx.QueryContext(ctx, `SELECT event_id FROM events WHERE status = ? AND `+t.Where+` FOR UPDATE`, args...)
	if err != nil {
		return nil, err
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := `UPDATE events SET status = ? WHERE event_id IN (` + placeholders(len(ids)) + `)`
	upd := make([]any, 0, len(ids)+1)
	upd = append(upd, t.To)
	for _, id := range ids {
		upd = append(upd, id)
	}
	if _, err := tx.ExecContext(ctx, query, upd...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return ids, nil
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ListAll returns every event for the admin console, ended ones included.
func (r *EventRepo) ListAll(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY event_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Admin actions move the sale window to now and let the status job apply
// the transition on its next tick.  Each reports whether a row matched.

// OpenWaiting starts the queue of a LOCKED event.
func (r *EventRepo) OpenWaiting(ctx context.Context, eventID string, now time.Time) (bool, error) {
	return r.execOne(ctx,
		`UPDATE events SET sale_start_time = ? WHERE event_id = ? AND status = 'LOCKED'`,
		now.UTC(), eventID)
}

// OpenSelling starts or resumes admission for a WAITING or ENDED event and
// clears any end time.
func (r *EventRepo) OpenSelling(ctx context.Context, eventID string, now time.Time) (bool, error) {
	return r.execOne(ctx,
		`UPDATE events SET sale_open_at = ?, sale_end_time = NULL WHERE event_id = ? AND status IN ('WAITING', 'ENDED')`,
		now.UTC(), eventID)
}

// CloseSelling pauses a SELLING event.
func (r *EventRepo) CloseSelling(ctx context.Context, eventID string, now time.Time) (bool, error) {
	return r.execOne(ctx,
		`UPDATE events SET sale_end_time = ? WHERE event_id = ? AND status = 'SELLING'`,
		now.UTC(), eventID)
}

// ResetToLocked clears the sale window and returns the event to LOCKED.
// It returns ErrEventNotFound for an unknown id.
func (r *EventRepo) ResetToLocked(ctx context.Context, eventID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET sale_start_time = NULL, sale_open_at = NULL, sale_end_time = NULL, status = 'LOCKED' WHERE event_id = ?`,
		eventID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.EventStatus(ctx, eventID); err != nil {
			return err
		}
	}
	return nil
}

func (r *EventRepo) execOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
