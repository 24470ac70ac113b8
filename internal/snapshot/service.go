package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quorum/internal/platform/metrics"
	"quorum/internal/registry"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/audit"
	"quorum/pkg/platform/sentinel"
)

// MeetingLookup is the narrow slice of meeting data freezing needs. Defined
// here so the meeting package can depend on snapshot, not the other way
// around.
type MeetingLookup interface {
	// RecordDate returns the owning company and record date for a meeting, or
	// sentinel.ErrNotFound.
	RecordDate(ctx context.Context, meetingID id.MeetingID) (id.CompanyID, time.Time, error)
}

// Service freezes voting weights at the record date and serves them to the
// vote ledger.
type Service struct {
	store    Store
	meetings MeetingLookup
	shares   registry.ShareRegistry
	auditor  *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
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

func NewService(store Store, meetings MeetingLookup, shares registry.ShareRegistry,
	auditor *audit.Publisher, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:    store,
		meetings: meetings,
		shares:   shares,
		auditor:  auditor,
		logger:   logger,
		metrics:  m,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Freeze captures the current share count of every shareholder of the owning
// company as the meeting's immutable weight snapshot. Idempotent: a repeat
// call after a successful freeze is a logged no-op, not an error, so
// concurrent scheduler workers can race safely.
func (s *Service) Freeze(ctx context.Context, meetingID id.MeetingID) error {
	companyID, recordDate, err := s.meetings.RecordDate(ctx, meetingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "meeting not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load meeting")
	}

	now := s.clock()
	if now.Before(recordDate) {
		return dErrors.New(dErrors.CodeStateConflict, "record date not reached")
	}

	holders, err := s.shares.ListShareholders(ctx, companyID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read share registry")
	}

	entries := make([]WeightSnapshot, 0, len(holders))
	for _, holder := range holders {
		entries = append(entries, WeightSnapshot{
			MeetingID:     meetingID,
			ShareholderID: holder.ID,
			Weight:        holder.Shares,
			FrozenAt:      now,
		})
	}

	if err := s.store.FreezeAll(ctx, meetingID, entries); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Another worker won the freeze race. Idempotency short-circuit.
			s.logger.Info("weights already frozen", "meeting_id", meetingID.String())
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to freeze weights")
	}

	s.metrics.IncSnapshotsFrozen()
	if err := s.auditor.Emit(ctx, audit.Event{
		MeetingID: meetingID,
		Action:    audit.EventWeightsFrozen.String(),
		Decision:  "frozen",
		Reason:    "record date reached",
		Timestamp: now,
	}); err != nil {
		s.logger.Error("failed to audit freeze", "error", err, "meeting_id", meetingID.String())
	}
	s.logger.Info("voting weights frozen",
		"meeting_id", meetingID.String(),
		"company_id", companyID.String(),
		"shareholders", len(entries),
	)
	return nil
}

// WeightOf returns the frozen voting weight for one shareholder. The absence
// of a snapshot means voting is not yet open for the meeting.
func (s *Service) WeightOf(ctx context.Context, meetingID id.MeetingID, shareholderID id.ShareholderID) (int64, error) {
	weight, err := s.store.WeightOf(ctx, meetingID, shareholderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNoSnapshot, "no weight snapshot captured")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read snapshot")
	}
	return weight, nil
}

// TotalWeight sums the meeting's frozen weights; used by the tally integrity
// check.
func (s *Service) TotalWeight(ctx context.Context, meetingID id.MeetingID) (int64, error) {
	total, err := s.store.TotalWeight(ctx, meetingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNoSnapshot, "no weight snapshot captured")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read snapshot total")
	}
	return total, nil
}

// Frozen reports whether a snapshot exists; the meeting lifecycle consults
// this before opening voting (write-ahead-of-transition).
func (s *Service) Frozen(ctx context.Context, meetingID id.MeetingID) (bool, error) {
	return s.store.Frozen(ctx, meetingID)
}
