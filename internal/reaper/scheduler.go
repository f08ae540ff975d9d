package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
)

// ServeTicker is the admission serve loop, driven from the same scheduler.
type ServeTicker interface {
	Tick(ctx context.Context)
}

// Scheduler owns the gocron scheduler.  Every job runs in singleton mode: a
// tick that comes due while the previous run is still going is rescheduled
// rather than run concurrently.
type Scheduler struct {
	s      gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger
}

type job struct {
	name  string
	every time.Duration
	run   func(context.Context)
}

// NewScheduler registers every reaper job and the serve tick as singleton
// duration jobs.  Nothing runs until Start.
func NewScheduler(r *Reaper, serve ServeTicker, cfg config.AdmissionConfig, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Discard()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sched := &Scheduler{s: s, ctx: ctx, cancel: cancel, log: log.With("component", "scheduler")}

	jobs := []job{
		{"hold-expiry", cfg.HoldExpiryInterval, r.ExpireHolds},
		{"queue-cleanup", cfg.CleanupInterval, r.CleanupQueues},
		{"event-status", cfg.StatusInterval, r.AdvanceStatuses},
	}
	if serve != nil {
		jobs = append(jobs, job{"serve-next", cfg.ServeInterval, serve.Tick})
	}

	for _, j := range jobs {
		if err := sched.add(j.name, j.every, j.run); err != nil {
			_ = s.Shutdown()
			cancel()
			return nil, err
		}
	}
	return sched, nil
}

func (s *Scheduler) add(name string, every time.Duration, run func(context.Context)) error {
	_, err := s.s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { run(s.ctx) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.log.Info("job scheduled", "job", name, "every", every.String())
	return nil
}

func (s *Scheduler) Start() { s.s.Start() }

// Shutdown cancels running jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.s.Shutdown()
}

// Jobs lists the scheduled job names.
func (s *Scheduler) Jobs() []string {
	var names []string
	for _, j := range s.s.Jobs() {
		names = append(names, j.Name())
	}
	return names
}
