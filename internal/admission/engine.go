// Package admission runs the virtual waiting room in front of a sale.  The
// Engine owns the Redis queue state; the Server drains it at a fixed pace
// and hands out access credentials.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

const (
	sessionPrefix   = "session:"
	activeQueuesKey = "active:queues"
)

// Enqueue statuses.
const (
	EnqueueOK     = "OK"
	EnqueueExists = "EXISTS"
)

// MarkReady outcomes that are not errors.
const (
	ReadyOK      = "READY"
	ReadyIgnored = "IGNORED"
)

// Outcome is the result of one ServeNext attempt.
type Outcome string

const (
	OutcomeOK                 Outcome = "OK"
	OutcomeNoReady            Outcome = "NO_READY"
	OutcomeEmpty              Outcome = "EMPTY"
	OutcomeLimitReached       Outcome = "LIMIT_REACHED"
	OutcomeSkipSessionExpired Outcome = "SKIP_SESSION_EXPIRED"
)

func counterKey(eventID string) string       { return "event:" + eventID + ":counter" }
func queueKey(eventID string) string         { return "event:" + eventID + ":queue" }
func readyKey(eventID string) string         { return "event:" + eventID + ":ready" }
func bookingActiveKey(eventID string) string { return "event:" + eventID + ":booking_active" }
func sessionKey(visitorToken string) string  { return sessionPrefix + visitorToken }
func ghostCursorKey(eventID string) string   { return "event:" + eventID + ":ghost_cursor" }

// EnqueueResult describes the visitor's place after Enqueue.  Status is
// OK for a new entry and EXISTS when the visitor was already queued, in
// which case Sequence is the original one.
type EnqueueResult struct {
	Status   string        `json:"status"`
	Sequence int64         `json:"sequence"`
	Position int64         `json:"queuePosition"` // 1-based, -1 when no longer waiting
	TTL      time.Duration `json:"-"`
}

// ServeResult is the outcome of one ServeNext call.  VisitorToken is set
// for OK and SKIP_SESSION_EXPIRED.
type ServeResult struct {
	Outcome      Outcome
	VisitorToken string
}

// SessionView is what a visitor sees when polling.  Position is only
// meaningful while WAITING or READY.
type SessionView struct {
	Status   string `json:"status"`
	EventID  string `json:"eventId"`
	Sequence int64  `json:"sequence"`
	Position int64  `json:"position"`
}

// ResetResult counts what Reset removed.
type ResetResult struct {
	SessionsDeleted int64 `json:"sessionDeleted"`
	QueueCount      int64 `json:"queueCount"`
	ReadyCount      int64 `json:"readyCount"`
}

// Engine is safe for concurrent use; all coordination lives in Redis.
type Engine struct {
	rdb              redis.UniversalClient
	sessionTTL       time.Duration
	bookingActiveTTL time.Duration
	maxActive        int
	now              func() time.Time
}

// NewEngine builds an engine over any Redis client mode.
func NewEngine(rdb redis.UniversalClient, cfg config.AdmissionConfig) *Engine {
	return &Engine{
		rdb:              rdb,
		sessionTTL:       cfg.SessionTTL,
		bookingActiveTTL: cfg.BookingActiveTTL,
		maxActive:        cfg.MaxActiveBookings,
		now:              time.Now,
	}
}

// Enqueue admits a visitor to the event's queue.  A visitor that already has
// a live session gets EXISTS and the sequence assigned the first time.
func (e *Engine) Enqueue(ctx context.Context, eventID, visitorToken string) (EnqueueResult, error) {
	now := e.now()
	raw, err := enqueueScript.Run(ctx, e.rdb,
		[]string{counterKey(eventID), queueKey(eventID), sessionKey(visitorToken), activeQueuesKey},
		visitorToken, eventID, now.UnixMilli(), seconds(e.sessionTTL),
	).Slice()
	if err != nil {
		return EnqueueResult{}, unavailable(err)
	}
	if len(raw) != 2 {
		return EnqueueResult{}, unavailable(fmt.Errorf("enqueue: unexpected reply %v", raw))
	}
	res := EnqueueResult{
		Status:   fmt.Sprint(raw[0]),
		Sequence: toInt64(raw[1]),
		TTL:      e.sessionTTL,
	}
	res.Position, err = e.rank(ctx, queueKey(eventID), visitorToken)
	if err != nil {
		return EnqueueResult{}, err
	}
	return res, nil
}

// MarkReady moves a WAITING visitor into the ready set, keeping the
// original sequence as its score so service order equals enqueue order.
func (e *Engine) MarkReady(ctx context.Context, eventID, visitorToken string) (string, error) {
	out, err := markReadyScript.Run(ctx, e.rdb,
		[]string{sessionKey(visitorToken), queueKey(eventID), readyKey(eventID)},
		visitorToken, seconds(e.sessionTTL),
	).Text()
	if err != nil {
		return "", unavailable(err)
	}
	switch out {
	case ReadyOK, ReadyIgnored:
		return out, nil
	case "SESSION_EXPIRED":
		return "", ErrSessionExpired
	case "NOT_IN_QUEUE":
		return "", ErrNotInQueue
	}
	return "", unavailable(fmt.Errorf("mark ready: unexpected reply %q", out))
}

// ServeNext pops the earliest ready visitor if the event has a free booking
// slot and marks the session SERVED.
func (e *Engine) ServeNext(ctx context.Context, eventID string) (ServeResult, error) {
	raw, err := serveNextScript.Run(ctx, e.rdb,
		[]string{readyKey(eventID), queueKey(eventID), bookingActiveKey(eventID), activeQueuesKey},
		sessionPrefix, e.now().UnixMilli(), seconds(e.bookingActiveTTL), e.maxActive, eventID,
	).Slice()
	if err != nil {
		return ServeResult{}, unavailable(err)
	}
	if len(raw) == 0 {
		return ServeResult{}, unavailable(errors.New("serve next: empty reply"))
	}
	res := ServeResult{Outcome: Outcome(fmt.Sprint(raw[0]))}
	if len(raw) > 1 {
		res.VisitorToken = fmt.Sprint(raw[1])
	}
	if res.Outcome == OutcomeOK && res.VisitorToken == "" {
		return ServeResult{}, unavailable(errors.New("serve next: OK without visitor"))
	}
	return res, nil
}

// Activate stores the issued credential on the session and stretches the
// session to the credential's lifetime.
func (e *Engine) Activate(ctx context.Context, visitorToken, accessToken string, ttl time.Duration) error {
	key := sessionKey(visitorToken)
	_, err := e.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "access_token", accessToken, "status", model.SessionActive)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// RevertGrant releases the booking slot taken by ServeNext and puts a
// still-SERVED visitor back in the ready set, so the next tick can retry the
// grant.  It reports whether the visitor was requeued.
func (e *Engine) RevertGrant(ctx context.Context, eventID, visitorToken string) (bool, error) {
	n, err := revertGrantScript.Run(ctx, e.rdb,
		[]string{bookingActiveKey(eventID), readyKey(eventID), sessionKey(visitorToken), activeQueuesKey},
		visitorToken, seconds(e.sessionTTL), eventID,
	).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// Status reads the visitor's session.  Polling doubles as a keepalive while
// the visitor is still WAITING or READY.
func (e *Engine) Status(ctx context.Context, eventID, visitorToken string) (SessionView, error) {
	key := sessionKey(visitorToken)
	fields, err := e.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return SessionView{}, unavailable(err)
	}
	if len(fields) == 0 {
		return SessionView{}, ErrSessionExpired
	}
	if fields["event_id"] != eventID {
		return SessionView{}, ErrNotInQueue
	}
	view := SessionView{Status: fields["status"], EventID: eventID, Position: -1}
	view.Sequence, _ = strconv.ParseInt(fields["seq"], 10, 64)

	var set string
	switch view.Status {
	case model.SessionWaiting:
		set = queueKey(eventID)
	case model.SessionReady:
		set = readyKey(eventID)
	default:
		return view, nil
	}
	if view.Position, err = e.rank(ctx, set, visitorToken); err != nil {
		return SessionView{}, err
	}
	if err := e.rdb.Expire(ctx, key, e.sessionTTL).Err(); err != nil {
		return SessionView{}, unavailable(err)
	}
	return view, nil
}

// ReleaseBooking frees the visitor's booking slot once payment settles.
func (e *Engine) ReleaseBooking(ctx context.Context, eventID, visitorToken string) error {
	if err := e.rdb.ZRem(ctx, bookingActiveKey(eventID), visitorToken).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// ExpireActiveBookings drops booking slots whose deadline is at or before now.
func (e *Engine) ExpireActiveBookings(ctx context.Context, eventID string, now time.Time) (int64, error) {
	n, err := e.rdb.ZRemRangeByScore(ctx, bookingActiveKey(eventID), "-inf", strconv.FormatInt(now.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// CleanupGhosts removes queue and ready members whose session has already
// expired.  A call inspects at most batch members of each set; successive
// calls resume where the previous one stopped, so a ghost sitting behind a
// long run of live visitors is still reached.
func (e *Engine) CleanupGhosts(ctx context.Context, eventID string, batch int) (int64, error) {
	if batch <= 0 {
		return 0, nil
	}
	n, err := cleanupGhostsScript.Run(ctx, e.rdb,
		[]string{queueKey(eventID), readyKey(eventID), ghostCursorKey(eventID)},
		sessionPrefix, batch,
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Reset wipes every queue structure and session of an event.
func (e *Engine) Reset(ctx context.Context, eventID string) (ResetResult, error) {
	raw, err := resetScript.Run(ctx, e.rdb,
		[]string{queueKey(eventID), readyKey(eventID), bookingActiveKey(eventID), counterKey(eventID), activeQueuesKey, ghostCursorKey(eventID)},
		sessionPrefix, eventID,
	).Int64Slice()
	if err != nil {
		return ResetResult{}, unavailable(err)
	}
	if len(raw) != 3 {
		return ResetResult{}, unavailable(fmt.Errorf("reset: unexpected reply %v", raw))
	}
	return ResetResult{SessionsDeleted: raw[0], QueueCount: raw[1], ReadyCount: raw[2]}, nil
}

// ActiveEvents lists events that still have visitors queued or ready.
func (e *Engine) ActiveEvents(ctx context.Context) ([]string, error) {
	ids, err := e.rdb.SMembers(ctx, activeQueuesKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

// Ping reports whether the queue store answers.
func (e *Engine) Ping(ctx context.Context) error {
	return e.rdb.Ping(ctx).Err()
}

func (e *Engine) rank(ctx context.Context, key, visitorToken string) (int64, error) {
	r, err := e.rdb.ZRank(ctx, key, visitorToken).Result()
	if errors.Is(err, redis.Nil) {
		return -1, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return r + 1, nil
}

func seconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}
