package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SeatRepo owns the seats table.  Every state change is an UPDATE whose
// WHERE clause re-checks the current seat_status, so two transactions can
// never move the same seat out of FREE; callers compare rows affected with
// the quantity they expected and roll back on mismatch.
type SeatRepo struct {
	db *sql.DB
}

func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// holdAdjacentSQL claims the first window of exactly N contiguous FREE seats
// in one row whose prices add up to the requested total.  Contiguous runs
// are grouped by seat_number - ROW_NUMBER(); windows inside a run come from
// a ROWS BETWEEN CURRENT ROW AND N-1 FOLLOWING frame.
//
// Placeholders in order: event, section, N-1, N, total, N, token, expiry,
// event, section.
const holdAdjacentSQL = `
UPDATE seats s
JOIN (
    WITH available AS (
        SELECT row_id, seat_number, price,
               seat_number - ROW_NUMBER() OVER (PARTITION BY row_id ORDER BY seat_number) AS grp
        FROM seats
        WHERE event_id = ? AND section_id = ? AND seat_status = 'FREE'
    ),
    windows AS (
        SELECT row_id, grp, seat_number,
               COUNT(*) OVER w AS window_len,
               SUM(price) OVER w AS total_price,
               ROW_NUMBER() OVER (PARTITION BY row_id, grp ORDER BY seat_number) AS pos
        FROM available
        WINDOW w AS (PARTITION BY row_id, grp ORDER BY seat_number ROWS BETWEEN CURRENT ROW AND ? FOLLOWING)
    ),
    picked AS (
        SELECT row_id, grp, pos AS start_pos
        FROM windows
        WHERE window_len = ? AND total_price = ?
        ORDER BY row_id, grp, pos
        LIMIT 1
    )
    SELECT w.row_id, w.seat_number
    FROM windows w
    JOIN picked p ON w.row_id = p.row_id AND w.grp = p.grp
    WHERE w.pos BETWEEN p.start_pos AND p.start_pos + ? - 1
) chosen ON s.row_id = chosen.row_id AND s.seat_number = chosen.seat_number
SET s.seat_status = 'HELD', s.hold_token = ?, s.hold_expiry = ?
WHERE s.event_id = ? AND s.section_id = ? AND s.seat_status = 'FREE'`

// holdCheapestSQL claims the N cheapest FREE seats regardless of position.
const holdCheapestSQL = `
UPDATE seats
SET seat_status = 'HELD', hold_token = ?, hold_expiry = ?
WHERE event_id = ? AND section_id = ? AND seat_status = 'FREE'
ORDER BY price, row_id, seat_number
LIMIT ?`

// HoldAdjacentTx marks an adjacent window HELD under holdToken and returns
// the number of seats updated (0 or quantity unless a concurrent writer
// won part of the window).
func (r *SeatRepo) HoldAdjacentTx(ctx context.Context, tx *sql.Tx, eventID, sectionID string, quantity int, totalPrice int64, holdToken string, expiry time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, holdAdjacentSQL,
		eventID, sectionID,
		quantity-1,
		quantity, totalPrice,
		quantity,
		holdToken, expiry.UTC(),
		eventID, sectionID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HoldCheapestTx marks up to quantity of the cheapest FREE seats HELD.
func (r *SeatRepo) HoldCheapestTx(ctx context.Context, tx *sql.Tx, eventID, sectionID string, quantity int, holdToken string, expiry time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, holdCheapestSQL, holdToken, expiry.UTC(), eventID, sectionID, quantity)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SeatsByHoldTx lists the seats currently tagged with holdToken.
func (r *SeatRepo) SeatsByHoldTx(ctx context.Context, tx *sql.Tx, holdToken string) ([]model.HeldSeat, error) {
	return seatsByHold(ctx, tx, holdToken)
}

// SeatsByHold is the non-transactional variant used by read endpoints.
func (r *SeatRepo) SeatsByHold(ctx context.Context, holdToken string) ([]model.HeldSeat, error) {
	return seatsByHold(ctx, r.db, holdToken)
}

func seatsByHold(ctx context.Context, q querier, holdToken string) ([]model.HeldSeat, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT section_id, row_id, seat_number, price FROM seats WHERE hold_token = ? ORDER BY row_id, seat_number`,
		holdToken,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.HeldSeat
	for rows.Next() {
		var s model.HeldSeat
		if err := rows.Scan(&s.SectionID, &s.RowID, &s.SeatNumber, &s.Price); err != nil {
			return nil, err
		}
		s.SeatID = model.SeatID(s.SectionID, s.RowID, s.SeatNumber)
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// MarkSoldTx moves every HELD seat of the hold to SOLD.  The hold token is
// kept on the row.
func (r *SeatRepo) MarkSoldTx(ctx context.Context, tx *sql.Tx, holdToken string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET seat_status = 'SOLD', hold_expiry = NULL WHERE hold_token = ? AND seat_status = 'HELD'`,
		holdToken,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FreeByHoldTx returns the HELD seats of one hold to FREE.
func (r *SeatRepo) FreeByHoldTx(ctx context.Context, tx *sql.Tx, holdToken string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET seat_status = 'FREE', hold_token = NULL, hold_expiry = NULL WHERE hold_token = ? AND seat_status = 'HELD'`,
		holdToken,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FreeExpiredTx frees the seats of every ACTIVE hold that expired at or
// before cutoff.  Run it before HoldRepo.ExpireDueTx with the same cutoff so
// both statements see the same set of holds.
func (r *SeatRepo) FreeExpiredTx(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
UPDATE seats s
JOIN holds h ON s.hold_token = h.hold_token
SET s.seat_status = 'FREE', s.hold_token = NULL, s.hold_expiry = NULL
WHERE h.status = 'ACTIVE' AND h.expires_at <= ? AND s.seat_status = 'HELD'`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Sections summarises every section of an event: free seats and the price range.
func (r *SeatRepo) Sections(ctx context.Context, eventID string) ([]model.SectionAvailability, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT section_id,
       SUM(seat_status = 'FREE') AS free_seats,
       MIN(price) AS min_price,
       MAX(price) AS max_price
FROM seats
WHERE event_id = ?
GROUP BY section_id
ORDER BY section_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SectionAvailability
	for rows.Next() {
		var s model.SectionAvailability
		if err := rows.Scan(&s.SectionID, &s.FreeSeats, &s.MinPrice, &s.MaxPrice); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// listingsAdjacentSQL counts, per section and total price, the windows of N
// contiguous FREE seats that HoldAdjacentTx could claim.  It groups runs the
// same way as holdAdjacentSQL, partitioned by section as well.
//
// Placeholders in order: event, N-1, N.
const listingsAdjacentSQL = `
WITH available AS (
    SELECT section_id, row_id, seat_number, price,
           seat_number - ROW_NUMBER() OVER (PARTITION BY section_id, row_id ORDER BY seat_number) AS grp
    FROM seats
    WHERE event_id = ? AND seat_status = 'FREE'
),
windows AS (
    SELECT section_id,
           COUNT(*) OVER w AS window_len,
           SUM(price) OVER w AS total_price
    FROM available
    WINDOW w AS (PARTITION BY section_id, row_id, grp ORDER BY seat_number ROWS BETWEEN CURRENT ROW AND ? FOLLOWING)
)
SELECT section_id, total_price, COUNT(*) AS block_count
FROM windows
WHERE window_len = ?
GROUP BY section_id, total_price
ORDER BY section_id, total_price`

// listingsCheapestSQL prices the N cheapest FREE seats of each section that
// still has at least N of them.
//
// Placeholders in order: event, N, N.
const listingsCheapestSQL = `
WITH ranked AS (
    SELECT section_id, price,
           ROW_NUMBER() OVER (PARTITION BY section_id ORDER BY price, row_id, seat_number) AS rn
    FROM seats
    WHERE event_id = ? AND seat_status = 'FREE'
)
SELECT section_id, SUM(price) AS total_price, 1 AS block_count
FROM ranked
WHERE rn <= ?
GROUP BY section_id
HAVING COUNT(*) = ?
ORDER BY section_id`

// Listings returns, for every section that can currently satisfy quantity,
// the totals a hold request may carry.  Sections with no option are left
// out.
func (r *SeatRepo) Listings(ctx context.Context, eventID string, quantity int, adjacent bool) ([]model.SectionListing, error) {
	query, args := listingsCheapestSQL, []any{eventID, quantity, quantity}
	if adjacent {
		query, args = listingsAdjacentSQL, []any{eventID, quantity - 1, quantity}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SectionListing
	for rows.Next() {
		var (
			sectionID string
			opt       model.PriceOption
		)
		if err := rows.Scan(&sectionID, &opt.Price, &opt.BlockCount); err != nil {
			return nil, err
		}
		// rows arrive ordered by section, so a new section starts a new entry
		if n := len(out); n == 0 || out[n-1].SectionID != sectionID {
			out = append(out, model.SectionListing{SectionID: sectionID, Available: true})
		}
		last := &out[len(out)-1]
		last.PriceOptions = append(last.PriceOptions, opt)
	}
	return out, rows.Err()
}
