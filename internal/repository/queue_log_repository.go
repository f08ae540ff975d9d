package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// QueueLogRepo writes the durable admission log (event_queue).  It is the
// sink of the ingestion pipeline.  Both writes are keyed upserts on
// (event_id, visitor_token), so replaying a batch is harmless and a served
// record may land before its enqueue record.
type QueueLogRepo struct {
	db *sql.DB
}

func NewQueueLogRepo(db *sql.DB) *QueueLogRepo { return &QueueLogRepo{db: db} }

// InsertWaiting records enqueued visitors in one multi-row statement.  An
// existing row only has its queue_timestamp filled in; its status is kept so
// a SERVED row never goes back to WAITING.
func (r *QueueLogRepo) InsertWaiting(ctx context.Context, events []model.EnqueuedEvent) error {
	if len(events) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO event_queue (event_id, visitor_token, queue_timestamp, status) VALUES `)
	args := make([]any, 0, len(events)*3)
	for i, e := range events {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, 'WAITING')")
		args = append(args, e.EventID, e.VisitorToken, msToTime(e.QueueTimestamp))
	}
	b.WriteString(` ON DUPLICATE KEY UPDATE queue_timestamp = VALUES(queue_timestamp)`)
	_, err := r.db.ExecContext(ctx, b.String(), args...)
	return err
}

// MarkServed records granted visitors.  Rows that do not exist yet are
// created directly as SERVED.
func (r *QueueLogRepo) MarkServed(ctx context.Context, events []model.ServedEvent) error {
	if len(events) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO event_queue (event_id, visitor_token, status, access_token, served_at) VALUES `)
	args := make([]any, 0, len(events)*4)
	for i, e := range events {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, 'SERVED', ?, ?)")
		args = append(args, e.EventID, e.VisitorToken, e.AccessToken, msToTime(e.ServedAt))
	}
	b.WriteString(` ON DUPLICATE KEY UPDATE status = 'SERVED', access_token = VALUES(access_token), served_at = VALUES(served_at)`)
	_, err := r.db.ExecContext(ctx, b.String(), args...)
	return err
}

func msToTime(ms int64) sql.NullTime {
	if ms <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: time.UnixMilli(ms).UTC(), Valid: true}
}
