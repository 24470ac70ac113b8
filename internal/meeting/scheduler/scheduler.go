// Package scheduler drives time-based meeting transitions. A periodic sweep
// scans for due meetings and applies the transition through the lifecycle
// service; all contended writes go through compare-and-set, so any number of
// scheduler instances can run concurrently and each transition fires once.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"quorum/internal/meeting"
	"quorum/internal/platform/metrics"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

// Lifecycle is the slice of the meeting service the scheduler drives.
type Lifecycle interface {
	DispatchNotice(ctx context.Context, meetingID id.MeetingID) error
	OpenVoting(ctx context.Context, meetingID id.MeetingID) error
	Close(ctx context.Context, meetingID id.MeetingID) error
	EnsureFinalized(ctx context.Context, meetingID id.MeetingID) error
}

// Lister exposes the due-meeting scan.
type Lister interface {
	ListInStates(ctx context.Context, states ...id.MeetingState) ([]meeting.Meeting, error)
}

// Scheduler sweeps due meetings on a fixed interval.
type Scheduler struct {
	lifecycle Lifecycle
	store     Lister
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	workers   int
	clock     func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithWorkers bounds sweep concurrency.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func New(lifecycle Lifecycle, store Lister, logger *slog.Logger, m *metrics.Metrics,
	interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		lifecycle: lifecycle,
		store:     store,
		logger:    logger,
		metrics:   m,
		interval:  interval,
		workers:   2,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run sweeps until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval, "workers", s.workers)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("scheduler sweep failed", "error", err)
			}
		}
	}
}

// Sweep scans every non-terminal meeting and applies any transition whose
// time condition holds. Lost races against a concurrent sweep surface as
// state conflicts and are skipped silently.
func (s *Scheduler) Sweep(ctx context.Context) error {
	start := s.clock()
	meetings, err := s.store.ListInStates(ctx,
		id.MeetingNoticePending, id.MeetingNoticeSent, id.MeetingVotingOpen, id.MeetingClosed)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, m := range meetings {
		g.Go(func() error {
			if err := s.apply(gctx, m, start); err != nil {
				s.logger.Error("scheduler transition failed",
					"error", err, "meeting_id", m.ID.String(), "state", m.State)
			}
			return nil
		})
	}
	err = g.Wait()

	s.metrics.IncSweepsRun()
	s.metrics.ObserveSweepDuration(s.clock().Sub(start).Seconds())
	return err
}

func (s *Scheduler) apply(ctx context.Context, m meeting.Meeting, now time.Time) error {
	var err error
	switch {
	case m.State == id.MeetingNoticePending && m.NoticeDue(now):
		err = s.lifecycle.DispatchNotice(ctx, m.ID)
	case m.State == id.MeetingNoticeSent && m.RecordDateReached(now):
		err = s.lifecycle.OpenVoting(ctx, m.ID)
	case m.State == id.MeetingVotingOpen && m.VotingExpired(now):
		err = s.lifecycle.Close(ctx, m.ID)
	case m.State == id.MeetingClosed:
		err = s.lifecycle.EnsureFinalized(ctx, m.ID)
	default:
		return nil
	}
	// A state conflict means another worker transitioned the meeting first.
	if err != nil && dErrors.HasCode(err, dErrors.CodeStateConflict) {
		return nil
	}
	return err
}
