package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// HoldRepo provides data access to the holds table.  All timestamps are
// written and compared in UTC; callers pass "now" explicitly so one
// operation uses a single cutoff throughout.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

const holdColumns = `hold_token, event_id, section_id, visitor_token, quantity, status, expires_at, created_at`

func scanHold(row interface{ Scan(...any) error }) (model.Hold, error) {
	var h model.Hold
	err := row.Scan(&h.HoldToken, &h.EventID, &h.SectionID, &h.VisitorToken, &h.Quantity, &h.Status, &h.ExpiresAt, &h.CreatedAt)
	return h, err
}

// CreateTx inserts an ACTIVE hold.  CreatedAt is taken from the record so
// the row and the response agree.
func (r *HoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h model.Hold) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO holds (`+holdColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.HoldToken, h.EventID, h.SectionID, h.VisitorToken, h.Quantity, model.HoldActive, h.ExpiresAt.UTC(), h.CreatedAt.UTC(),
	)
	return err
}

// FindActiveTx returns the visitor's unexpired ACTIVE hold on a section, or
// nil when there is none.  It backs idempotent hold retries.
func (r *HoldRepo) FindActiveTx(ctx context.Context, tx *sql.Tx, eventID, sectionID, visitorToken string, now time.Time) (*model.Hold, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM holds
		 WHERE event_id = ? AND section_id = ? AND visitor_token = ? AND status = 'ACTIVE' AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 1`,
		eventID, sectionID, visitorToken, now.UTC(),
	)
	h, err := scanHold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// LockForVisitorTx locks the hold row when it belongs to visitorToken.
// Unknown and foreign holds both yield ErrHoldForbidden.
func (r *HoldRepo) LockForVisitorTx(ctx context.Context, tx *sql.Tx, holdToken, visitorToken string) (model.Hold, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE hold_token = ? AND visitor_token = ? FOR UPDATE`,
		holdToken, visitorToken,
	)
	h, err := scanHold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, ErrHoldForbidden
	}
	return h, err
}

// MarkExpiredTx expires one ACTIVE hold.
func (r *HoldRepo) MarkExpiredTx(ctx context.Context, tx *sql.Tx, holdToken string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE holds SET status = 'EXPIRED' WHERE hold_token = ? AND status = 'ACTIVE'`,
		holdToken,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConfirmTx flips an ACTIVE, unexpired hold owned by visitorToken to
// CONFIRMED.  Zero rows means checkout is not allowed.
func (r *HoldRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, holdToken, visitorToken string, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE holds SET status = 'CONFIRMED'
		 WHERE hold_token = ? AND visitor_token = ? AND status = 'ACTIVE' AND expires_at > ?`,
		holdToken, visitorToken, now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetTx reads a hold without locking.
func (r *HoldRepo) GetTx(ctx context.Context, tx *sql.Tx, holdToken string) (model.Hold, error) {
	h, err := scanHold(tx.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM holds WHERE hold_token = ?`, holdToken))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, ErrHoldForbidden
	}
	return h, err
}

// ExpireDueTx marks every ACTIVE hold with expires_at <= cutoff EXPIRED.
func (r *HoldRepo) ExpireDueTx(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE holds SET status = 'EXPIRED' WHERE status = 'ACTIVE' AND expires_at <= ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ActiveByVisitor lists the visitor's unexpired ACTIVE holds for an event.
func (r *HoldRepo) ActiveByVisitor(ctx context.Context, eventID, visitorToken string, now time.Time) ([]model.Hold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+holdColumns+` FROM holds
		 WHERE event_id = ? AND visitor_token = ? AND status = 'ACTIVE' AND expires_at > ?
		 ORDER BY created_at`,
		eventID, visitorToken, now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var holds []model.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}
