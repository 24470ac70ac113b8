package tally

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"quorum/internal/meeting"
	"quorum/internal/platform/metrics"
	"quorum/internal/voting"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/audit"
	"quorum/pkg/platform/sentinel"
)

// Ballots is the ledger slice the tally reads: current votes only, superseded
// rows excluded.
type Ballots interface {
	ListActive(ctx context.Context, meetingID id.MeetingID) ([]voting.Vote, error)
}

// SnapshotTotals resolves the meeting's total frozen weight for the integrity
// check. Implemented by the snapshot service.
type SnapshotTotals interface {
	TotalWeight(ctx context.Context, meetingID id.MeetingID) (int64, error)
}

// Agenda lists the meeting's resolutions. Implemented by the meeting store.
type Agenda interface {
	ListResolutions(ctx context.Context, meetingID id.MeetingID) ([]meeting.Resolution, error)
}

// Service finalizes and serves tallies.
type Service struct {
	store   Store
	ballots Ballots
	totals  SnapshotTotals
	agenda  Agenda
	auditor *audit.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewService(store Store, ballots Ballots, totals SnapshotTotals, agenda Agenda,
	auditor *audit.Publisher, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:   store,
		ballots: ballots,
		totals:  totals,
		agenda:  agenda,
		auditor: auditor,
		logger:  logger,
		metrics: m,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Finalize sums weight per choice across the current vote set and writes the
// immutable results. The accumulation is integer addition over an unordered
// set, so the outcome is independent of iteration order. Idempotent: a second
// call observes the existing results and returns nil without touching them.
func (s *Service) Finalize(ctx context.Context, meetingID id.MeetingID) error {
	done, err := s.store.Exists(ctx, meetingID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check tally state")
	}
	if done {
		return nil
	}

	resolutions, err := s.agenda.ListResolutions(ctx, meetingID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list resolutions")
	}
	votes, err := s.ballots.ListActive(ctx, meetingID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read vote ledger")
	}
	totalWeight, err := s.totals.TotalWeight(ctx, meetingID)
	if err != nil {
		return err
	}

	counts := make(map[id.ResolutionID]*Result, len(resolutions))
	for _, resolution := range resolutions {
		counts[resolution.ID] = &Result{MeetingID: meetingID, ResolutionID: resolution.ID}
	}
	for _, vote := range votes {
		result, ok := counts[vote.ResolutionID]
		if !ok {
			return s.breach(ctx, meetingID, vote.ResolutionID,
				"vote references a resolution not on the agenda")
		}
		switch vote.Choice {
		case id.ChoiceYes:
			result.Yes += vote.Weight
		case id.ChoiceNo:
			result.No += vote.Weight
		case id.ChoiceAbstain:
			result.Abstain += vote.Weight
		}
	}

	// A resolution's summed weight can never exceed the frozen total; more
	// means the ledger or snapshot was tampered with. Abort, never publish.
	for _, result := range counts {
		if result.Total() > totalWeight {
			return s.breach(ctx, meetingID, result.ResolutionID,
				"tally exceeds total snapshot weight")
		}
	}

	now := s.clock()
	results := make([]Result, 0, len(resolutions))
	byID := make(map[id.ResolutionID]int, len(resolutions))
	for _, resolution := range resolutions {
		byID[resolution.ID] = resolution.Position
		result := counts[resolution.ID]
		result.FinalizedAt = now
		results = append(results, *result)
	}
	sort.Slice(results, func(i, j int) bool {
		return byID[results[i].ResolutionID] < byID[results[j].ResolutionID]
	})

	if err := s.store.SaveAll(ctx, meetingID, results); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent finalization won; results are already durable.
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist tally")
	}

	s.metrics.IncTalliesFinalized()
	s.audit(ctx, audit.Event{
		MeetingID: meetingID,
		Action:    audit.EventTallyFinalized.String(),
		Decision:  "accepted",
		Timestamp: now,
	})
	s.logger.Info("tally finalized", "meeting_id", meetingID.String(), "resolutions", len(results))
	return nil
}

// Get returns the finalized result for one resolution. Before finalization it
// fails so callers can distinguish "not yet closed" from "no such tally".
func (s *Service) Get(ctx context.Context, meetingID id.MeetingID, resolutionID id.ResolutionID) (Result, error) {
	result, err := s.store.Find(ctx, meetingID, resolutionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, dErrors.New(dErrors.CodeNotFinalized, "tally not finalized")
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tally")
	}
	return result, nil
}

// List returns all finalized results for a meeting in agenda order.
func (s *Service) List(ctx context.Context, meetingID id.MeetingID) ([]Result, error) {
	results, err := s.store.ListByMeeting(ctx, meetingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFinalized, "tally not finalized")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tally")
	}
	return results, nil
}

func (s *Service) breach(ctx context.Context, meetingID id.MeetingID, resolutionID id.ResolutionID, reason string) error {
	s.audit(ctx, audit.Event{
		MeetingID:    meetingID,
		ResolutionID: resolutionID,
		Action:       audit.EventIntegrityBreach.String(),
		Decision:     "aborted",
		Reason:       reason,
		Timestamp:    s.clock(),
	})
	s.logger.Error("tally integrity breach",
		"meeting_id", meetingID.String(), "resolution_id", resolutionID.String(), "reason", reason)
	return dErrors.New(dErrors.CodeIntegrity, reason)
}

func (s *Service) audit(ctx context.Context, event audit.Event) {
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Error("failed to emit audit event", "error", err, "action", event.Action)
	}
}
