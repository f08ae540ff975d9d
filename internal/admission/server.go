package admission

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/ticket-sale-gate/internal/broker"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
	"github.com/iliyamo/ticket-sale-gate/internal/repository"
)

// StatusProvider reports an event's sale status.
type StatusProvider interface {
	EventStatus(ctx context.Context, eventID string) (string, error)
}

// CredentialIssuer mints the access credential handed to a served visitor.
type CredentialIssuer interface {
	Issue(visitorToken, eventID string) (token string, expiresAt time.Time, err error)
}

// LogPublisher records every grant on the queue log.
type LogPublisher interface {
	PublishServed(ctx context.Context, evt model.ServedEvent) error
}

// Notifier pushes the grant to the visitor's connection.
type Notifier interface {
	Push(ctx context.Context, routingKey string, msg broker.PushMessage) error
}

// Server grants access to ready visitors.  Tick is meant to be driven by a
// singleton scheduler job, so two ticks never overlap.
type Server struct {
	engine *Engine
	status StatusProvider
	issuer CredentialIssuer
	logs   LogPublisher
	push   Notifier
	batch  int
	log    *logger.Logger
}

// NewServer builds a server that grants at most batch visitors per event
// per tick.  logs and push may be nil.
func NewServer(engine *Engine, status StatusProvider, issuer CredentialIssuer, logs LogPublisher, push Notifier, batch int, log *logger.Logger) *Server {
	if batch < 1 {
		batch = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		engine: engine,
		status: status,
		issuer: issuer,
		logs:   logs,
		push:   push,
		batch:  batch,
		log:    log.With("component", "serve_next"),
	}
}

// Tick serves every active event that is currently SELLING.  Failures are
// logged per event and never stop the other events.
func (s *Server) Tick(ctx context.Context) {
	events, err := s.engine.ActiveEvents(ctx)
	if err != nil {
		s.log.Error("list active queues", "error", err)
		return
	}
	for _, eventID := range events {
		if _, err := s.ServeEvent(ctx, eventID); err != nil {
			s.log.Error("serve event", "event_id", eventID, "error", err)
		}
	}
}

// ServeEvent runs up to batch grants for one event and returns how many
// visitors were let in.
func (s *Server) ServeEvent(ctx context.Context, eventID string) (int, error) {
	status, err := s.status.EventStatus(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			s.log.Warn("queue for unknown event", "event_id", eventID)
			return 0, nil
		}
		return 0, err
	}
	if status != model.EventSelling {
		return 0, nil
	}

	granted := 0
	for i := 0; i < s.batch; i++ {
		res, err := s.engine.ServeNext(ctx, eventID)
		if err != nil {
			return granted, err
		}
		if res.Outcome != OutcomeOK {
			if res.Outcome == OutcomeSkipSessionExpired {
				s.log.Debug("skipped expired session", "event_id", eventID, "visitor_token", res.VisitorToken)
			}
			return granted, nil
		}
		if err := s.grant(ctx, eventID, res.VisitorToken); err != nil {
			s.revert(ctx, eventID, res.VisitorToken)
			return granted, err
		}
		granted++
	}
	return granted, nil
}

// revert hands the slot back after a failed grant.  The visitor keeps its
// place at the head of the ready set instead of sitting SERVED without a
// credential until the session expires.
func (s *Server) revert(ctx context.Context, eventID, visitorToken string) {
	requeued, err := s.engine.RevertGrant(ctx, eventID, visitorToken)
	if err != nil {
		s.log.Error("revert grant", "event_id", eventID, "visitor_token", visitorToken, "error", err)
		return
	}
	s.log.Warn("grant reverted", "event_id", eventID, "visitor_token", visitorToken, "requeued", requeued)
}

// grant issues the credential, stores it on the session, then announces the
// grant.  Only the first two steps can fail the grant; publishing is best
// effort.
func (s *Server) grant(ctx context.Context, eventID, visitorToken string) error {
	token, expiresAt, err := s.issuer.Issue(visitorToken, eventID)
	if err != nil {
		return err
	}
	if err := s.engine.Activate(ctx, visitorToken, token, time.Until(expiresAt)); err != nil {
		return err
	}
	servedAt := time.Now().UnixMilli()
	s.log.Info("access granted", "event_id", eventID, "visitor_token", visitorToken)

	if s.logs != nil {
		evt := model.ServedEvent{EventID: eventID, VisitorToken: visitorToken, AccessToken: token, ServedAt: servedAt}
		if err := s.logs.PublishServed(ctx, evt); err != nil {
			s.log.Warn("publish served record", "event_id", eventID, "visitor_token", visitorToken, "error", err)
		}
	}
	if s.push != nil {
		msg := broker.PushMessage{
			Type:         broker.PushAccessGranted,
			EventID:      eventID,
			VisitorToken: visitorToken,
			AccessToken:  token,
			At:           servedAt,
		}
		if err := s.push.Push(ctx, broker.VisitorTopic(visitorToken), msg); err != nil {
			s.log.Warn("push access granted", "event_id", eventID, "visitor_token", visitorToken, "error", err)
		}
	}
	return nil
}
