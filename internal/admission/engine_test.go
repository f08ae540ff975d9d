package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

func testAdmissionConfig() config.AdmissionConfig {
	return config.AdmissionConfig{
		SessionTTL:        300 * time.Second,
		AccessTTL:         600 * time.Second,
		BookingActiveTTL:  600 * time.Second,
		MaxActiveBookings: 2,
		ServeBatch:        1,
		GhostBatch:        200,
	}
}

type EngineSuite struct {
	suite.Suite
	mr  *miniredis.Miniredis
	rdb *redis.Client
	e   *Engine
	now time.Time
	ctx context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.rdb = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.e = NewEngine(s.rdb, testAdmissionConfig())
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.e.now = func() time.Time { return s.now }
	s.ctx = context.Background()
}

func (s *EngineSuite) TearDownTest() {
	_ = s.rdb.Close()
}

func (s *EngineSuite) enqueueReady(visitors ...string) {
	for _, v := range visitors {
		_, err := s.e.Enqueue(s.ctx, "E1", v)
		s.Require().NoError(err)
		_, err = s.e.MarkReady(s.ctx, "E1", v)
		s.Require().NoError(err)
	}
}

func (s *EngineSuite) TestEnqueueAssignsSequenceAndPosition() {
	first, err := s.e.Enqueue(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	second, err := s.e.Enqueue(s.ctx, "E1", "V2")
	s.Require().NoError(err)

	s.Equal(EnqueueOK, first.Status)
	s.EqualValues(1, first.Sequence)
	s.EqualValues(1, first.Position)
	s.EqualValues(2, second.Sequence)
	s.EqualValues(2, second.Position)
	s.Equal(300*time.Second, first.TTL)

	s.Equal(model.SessionWaiting, s.mr.HGet("session:V1", "status"))
	s.Equal("E1", s.mr.HGet("session:V1", "event_id"))
	s.Equal(300*time.Second, s.mr.TTL("session:V1"))
	members, _ := s.mr.Members(activeQueuesKey)
	s.Equal([]string{"E1"}, members)
}

func (s *EngineSuite) TestEnqueueTwiceReturnsExisting() {
	_, err := s.e.Enqueue(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	again, err := s.e.Enqueue(s.ctx, "E1", "V1")
	s.Require().NoError(err)

	s.Equal(EnqueueExists, again.Status)
	s.EqualValues(1, again.Sequence)
	s.EqualValues(1, again.Position)
	counter, _ := s.mr.Get("event:E1:counter")
	s.Equal("1", counter, "no new sequence is drawn")
}

func (s *EngineSuite) TestMarkReadyKeepsOriginalScore() {
	for _, v := range []string{"V1", "V2", "V3"} {
		_, err := s.e.Enqueue(s.ctx, "E1", v)
		s.Require().NoError(err)
	}

	out, err := s.e.MarkReady(s.ctx, "E1", "V3")
	s.Require().NoError(err)
	s.Equal(ReadyOK, out)
	out, err = s.e.MarkReady(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	s.Equal(ReadyOK, out)

	score, err := s.mr.ZScore("event:E1:ready", "V3")
	s.Require().NoError(err)
	s.Equal(3.0, score)
	s.False(s.mr.Exists("event:E1:queue") && isMember(s.mr, "event:E1:queue", "V3"))
	s.Equal(model.SessionReady, s.mr.HGet("session:V3", "status"))

	res, err := s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(ServeResult{Outcome: OutcomeOK, VisitorToken: "V1"}, res, "V1 enqueued first, so it is served first")
}

func isMember(mr *miniredis.Miniredis, key, member string) bool {
	members, _ := mr.ZMembers(key)
	for _, m := range members {
		if m == member {
			return true
		}
	}
	return false
}

func (s *EngineSuite) TestMarkReadyOutcomes() {
	_, err := s.e.MarkReady(s.ctx, "E1", "ghost")
	s.ErrorIs(err, ErrSessionExpired)

	_, err = s.e.Enqueue(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	_, err = s.e.MarkReady(s.ctx, "E2", "V1")
	s.ErrorIs(err, ErrNotInQueue)

	_, err = s.e.MarkReady(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	out, err := s.e.MarkReady(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	s.Equal(ReadyIgnored, out)
}

func (s *EngineSuite) TestServeNextOutcomes() {
	res, err := s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(OutcomeEmpty, res.Outcome)

	_, err = s.e.Enqueue(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	res, err = s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(OutcomeNoReady, res.Outcome)

	_, err = s.e.MarkReady(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	res, err = s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(OutcomeOK, res.Outcome)
	s.Equal(model.SessionServed, s.mr.HGet("session:V1", "status"))

	score, err := s.mr.ZScore("event:E1:booking_active", "V1")
	s.Require().NoError(err)
	s.Equal(float64(s.now.UnixMilli()+600_000), score)

	res, err = s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(OutcomeEmpty, res.Outcome)
	members, _ := s.mr.Members(activeQueuesKey)
	s.Empty(members, "an empty event leaves the active set")
}

func (s *EngineSuite) TestServeNextRespectsActiveLimit() {
	s.enqueueReady("V1", "V2", "V3")

	for i := 0; i < 2; i++ {
		res, err := s.e.ServeNext(s.ctx, "E1")
		s.Require().NoError(err)
		s.Equal(OutcomeOK, res.Outcome)
	}
	res, err := s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(OutcomeLimitReached, res.Outcome)

	s.Require().NoError(s.e.ReleaseBooking(s.ctx, "E1", "V1"))
	res, err = s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(ServeResult{Outcome: OutcomeOK, VisitorToken: "V3"}, res)
}

func (s *EngineSuite) TestExpiredSlotsDoNotCountTowardLimit() {
	s.enqueueReady("V1", "V2", "V3")
	for i := 0; i < 2; i++ {
		_, err := s.e.ServeNext(s.ctx, "E1")
		s.Require().NoError(err)
	}

	s.now = s.now.Add(601 * time.Second)
	res, err := s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(OutcomeOK, res.Outcome)

	removed, err := s.e.ExpireActiveBookings(s.ctx, "E1", s.now)
	s.Require().NoError(err)
	s.EqualValues(2, removed)
}

func (s *EngineSuite) TestServeNextSkipsExpiredSession() {
	s.enqueueReady("V1", "V2")
	s.mr.Del("session:V1")

	res, err := s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(ServeResult{Outcome: OutcomeSkipSessionExpired, VisitorToken: "V1"}, res)

	res, err = s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal("V2", res.VisitorToken)
}

func (s *EngineSuite) TestActivateStoresCredential() {
	s.enqueueReady("V1")
	_, err := s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)

	s.Require().NoError(s.e.Activate(s.ctx, "V1", "jwt-token", 600*time.Second))
	s.Equal(model.SessionActive, s.mr.HGet("session:V1", "status"))
	s.Equal("jwt-token", s.mr.HGet("session:V1", "access_token"))
	s.Equal(600*time.Second, s.mr.TTL("session:V1"))
}

func (s *EngineSuite) TestStatusRefreshesWaitingSession() {
	_, err := s.e.Enqueue(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	_, err = s.e.Enqueue(s.ctx, "E1", "V2")
	s.Require().NoError(err)
	s.mr.FastForward(200 * time.Second)

	view, err := s.e.Status(s.ctx, "E1", "V2")
	s.Require().NoError(err)
	s.Equal(SessionView{Status: model.SessionWaiting, EventID: "E1", Sequence: 2, Position: 2}, view)
	s.Equal(300*time.Second, s.mr.TTL("session:V2"))

	_, err = s.e.Status(s.ctx, "E2", "V2")
	s.ErrorIs(err, ErrNotInQueue)

	s.mr.FastForward(301 * time.Second)
	_, err = s.e.Status(s.ctx, "E1", "V1")
	s.ErrorIs(err, ErrSessionExpired)
}

func (s *EngineSuite) TestStatusOfServedVisitorHasNoPosition() {
	s.enqueueReady("V1")
	_, err := s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)

	view, err := s.e.Status(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	s.Equal(model.SessionServed, view.Status)
	s.EqualValues(-1, view.Position)
}

func (s *EngineSuite) TestCleanupGhostsRemovesOrphans() {
	for _, v := range []string{"V1", "V2", "V3"} {
		_, err := s.e.Enqueue(s.ctx, "E1", v)
		s.Require().NoError(err)
	}
	_, err := s.e.MarkReady(s.ctx, "E1", "V3")
	s.Require().NoError(err)
	s.mr.Del("session:V1")
	s.mr.Del("session:V3")

	removed, err := s.e.CleanupGhosts(s.ctx, "E1", 200)
	s.Require().NoError(err)
	s.EqualValues(2, removed)

	queued, _ := s.mr.ZMembers("event:E1:queue")
	s.Equal([]string{"V2"}, queued)
	s.False(s.mr.Exists("event:E1:ready"))
}

func (s *EngineSuite) TestCleanupGhostsHonoursBatch() {
	for _, v := range []string{"V1", "V2", "V3"} {
		_, err := s.e.Enqueue(s.ctx, "E1", v)
		s.Require().NoError(err)
		s.mr.Del("session:" + v)
	}
	removed, err := s.e.CleanupGhosts(s.ctx, "E1", 2)
	s.Require().NoError(err)
	s.EqualValues(2, removed)

	removed, err = s.e.CleanupGhosts(s.ctx, "E1", 2)
	s.Require().NoError(err)
	s.EqualValues(1, removed)
	s.False(s.mr.Exists("event:E1:queue"))
}

func (s *EngineSuite) TestCleanupGhostsReachesPastLiveHead() {
	for _, v := range []string{"V1", "V2", "V3"} {
		_, err := s.e.Enqueue(s.ctx, "E1", v)
		s.Require().NoError(err)
	}
	s.mr.Del("session:V3")

	var total int64
	for i := 0; i < 2; i++ {
		removed, err := s.e.CleanupGhosts(s.ctx, "E1", 2)
		s.Require().NoError(err)
		total += removed
	}
	s.EqualValues(1, total)

	queued, _ := s.mr.ZMembers("event:E1:queue")
	s.Equal([]string{"V1", "V2"}, queued)
}

func (s *EngineSuite) TestCleanupGhostsWrapsToHead() {
	for _, v := range []string{"V1", "V2", "V3"} {
		_, err := s.e.Enqueue(s.ctx, "E1", v)
		s.Require().NoError(err)
	}

	// first pass stops after V2, second reaches the tail and resets
	for i := 0; i < 2; i++ {
		_, err := s.e.CleanupGhosts(s.ctx, "E1", 2)
		s.Require().NoError(err)
	}
	s.False(s.mr.Exists("event:E1:ghost_cursor"))

	s.mr.Del("session:V1")
	removed, err := s.e.CleanupGhosts(s.ctx, "E1", 2)
	s.Require().NoError(err)
	s.EqualValues(1, removed)
}

func (s *EngineSuite) TestResetWipesEvent() {
	s.enqueueReady("V1", "V2")
	_, err := s.e.Enqueue(s.ctx, "E1", "V3")
	s.Require().NoError(err)
	_, err = s.e.ServeNext(s.ctx, "E1")
	s.Require().NoError(err)

	res, err := s.e.Reset(s.ctx, "E1")
	s.Require().NoError(err)
	s.Equal(ResetResult{SessionsDeleted: 3, QueueCount: 1, ReadyCount: 1}, res)

	for _, key := range []string{"event:E1:queue", "event:E1:ready", "event:E1:booking_active", "event:E1:counter", "session:V1", "session:V2", "session:V3"} {
		s.False(s.mr.Exists(key), key)
	}
	ids, err := s.e.ActiveEvents(s.ctx)
	s.Require().NoError(err)
	s.Empty(ids)

	again, err := s.e.Enqueue(s.ctx, "E1", "V1")
	s.Require().NoError(err)
	s.EqualValues(1, again.Sequence, "sequence restarts after a reset")
}

func TestStoreFailuresAreUnavailable(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	e := NewEngine(rdb, testAdmissionConfig())
	ctx := context.Background()

	mock.ExpectSMembers(activeQueuesKey).SetErr(errors.New("connection refused"))
	_, err := e.ActiveEvents(ctx)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeUnavailable, apperror.AsAppError(err).Code)

	mock.ExpectZRem("event:E1:booking_active", "V1").SetErr(errors.New("timeout"))
	err = e.ReleaseBooking(ctx, "E1", "V1")
	assert.Equal(t, apperror.CodeUnavailable, apperror.AsAppError(err).Code)

	mock.ExpectHGetAll("session:V1").SetVal(map[string]string{})
	_, err = e.Status(ctx, "E1", "V1")
	assert.ErrorIs(t, err, ErrSessionExpired)

	mock.ExpectZRemRangeByScore("event:E1:booking_active", "-inf", "1772359200000").SetVal(4)
	n, err := e.ExpireActiveBookings(ctx, "E1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScriptFailureIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	e := NewEngine(rdb, testAdmissionConfig())

	mr.SetError("LOADING Redis is loading the dataset in memory")
	_, err := e.Enqueue(context.Background(), "E1", "V1")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeUnavailable, apperror.AsAppError(err).Code)
}
