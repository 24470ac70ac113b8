package meeting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quorum/internal/notify"
	"quorum/internal/platform/metrics"
	"quorum/internal/registry"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/email"
	"quorum/pkg/platform/audit"
	"quorum/pkg/platform/sentinel"
)

// Freezer captures the weight snapshot before voting opens. Implemented by
// the snapshot service.
type Freezer interface {
	Freeze(ctx context.Context, meetingID id.MeetingID) error
}

// Finalizer computes and persists the immutable tally. Implemented by the
// tally service; must be idempotent so crash recovery can re-run it.
type Finalizer interface {
	Finalize(ctx context.Context, meetingID id.MeetingID) error
}

// Defaults carry the statutory configuration inputs.
type Defaults struct {
	RecordDateOffset    time.Duration
	CollaboratorTimeout time.Duration
}

// Service owns the meeting lifecycle. Every transition is validated against
// the central state machine and committed via compare-and-set so concurrent
// scheduler workers cannot double-fire.
type Service struct {
	store      Store
	freezer    Freezer
	finalizer  Finalizer
	dispatcher notify.Dispatcher
	shares     registry.ShareRegistry
	auditor    *audit.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	defaults   Defaults
	clock      func() time.Time
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

func NewService(store Store, freezer Freezer, finalizer Finalizer, dispatcher notify.Dispatcher,
	shares registry.ShareRegistry, auditor *audit.Publisher, logger *slog.Logger,
	m *metrics.Metrics, defaults Defaults, opts ...Option) *Service {
	s := &Service{
		store:      store,
		freezer:    freezer,
		finalizer:  finalizer,
		dispatcher: dispatcher,
		shares:     shares,
		auditor:    auditor,
		logger:     logger,
		metrics:    m,
		defaults:   defaults,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateRequest carries the createMeeting inputs. RecordDate is optional and
// defaults to ScheduledAt minus the configured offset.
type CreateRequest struct {
	CompanyID      id.CompanyID
	Title          string
	ScheduledAt    time.Time
	NoticeWindow   time.Duration
	VotingDuration time.Duration
	RecordDate     time.Time
}

// Create schedules a meeting. A valid future schedule moves it straight from
// Draft into NoticePending, where the scheduler picks it up.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Meeting, error) {
	now := s.clock()
	if req.CompanyID.IsNil() {
		return Meeting{}, dErrors.New(dErrors.CodeInvalidInput, "company ID required")
	}
	if !req.ScheduledAt.After(now) {
		return Meeting{}, dErrors.New(dErrors.CodeInvalidInput, "scheduled timestamp must be in the future")
	}
	if req.NoticeWindow <= 0 {
		return Meeting{}, dErrors.New(dErrors.CodeInvalidInput, "notice window must be positive")
	}
	if req.VotingDuration <= 0 {
		return Meeting{}, dErrors.New(dErrors.CodeInvalidInput, "voting duration must be positive")
	}

	recordDate := req.RecordDate
	if recordDate.IsZero() {
		recordDate = req.ScheduledAt.Add(-s.defaults.RecordDateOffset)
	}
	if recordDate.After(req.ScheduledAt) {
		return Meeting{}, dErrors.New(dErrors.CodeInvalidInput, "record date must not be after the meeting date")
	}

	meeting := Meeting{
		ID:             id.NewMeetingID(),
		CompanyID:      req.CompanyID,
		Title:          req.Title,
		ScheduledAt:    req.ScheduledAt,
		RecordDate:     recordDate,
		NoticeWindow:   req.NoticeWindow,
		VotingDuration: req.VotingDuration,
		State:          id.MeetingNoticePending,
		CreatedAt:      now,
	}
	if err := s.store.Create(ctx, meeting); err != nil {
		return Meeting{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create meeting")
	}

	s.audit(ctx, audit.Event{
		MeetingID: meeting.ID,
		Action:    audit.EventMeetingCreated.String(),
		Reason:    "scheduled",
		Timestamp: now,
	})
	s.logger.Info("meeting created",
		"meeting_id", meeting.ID.String(),
		"company_id", meeting.CompanyID.String(),
		"scheduled_at", meeting.ScheduledAt,
		"record_date", meeting.RecordDate,
	)
	return meeting, nil
}

// AddResolution appends an agenda item. Resolutions are frozen once voting
// opens.
func (s *Service) AddResolution(ctx context.Context, meetingID id.MeetingID, title, description string) (Resolution, error) {
	if title == "" {
		return Resolution{}, dErrors.New(dErrors.CodeInvalidInput, "resolution title required")
	}
	meeting, err := s.find(ctx, meetingID)
	if err != nil {
		return Resolution{}, err
	}
	switch meeting.State {
	case id.MeetingVotingOpen, id.MeetingClosed, id.MeetingArchived:
		return Resolution{}, dErrors.New(dErrors.CodeStateConflict, "agenda is frozen once voting opens")
	}

	existing, err := s.store.ListResolutions(ctx, meetingID)
	if err != nil {
		return Resolution{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list resolutions")
	}
	resolution := Resolution{
		ID:          id.NewResolutionID(),
		MeetingID:   meetingID,
		Title:       title,
		Description: description,
		Position:    len(existing) + 1,
	}
	if err := s.store.AddResolution(ctx, resolution); err != nil {
		return Resolution{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add resolution")
	}
	return resolution, nil
}

// Status returns the listMeetingState projection.
func (s *Service) Status(ctx context.Context, meetingID id.MeetingID) (Status, error) {
	meeting, err := s.find(ctx, meetingID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		State:      meeting.State,
		NoticeSent: meeting.NoticeSent,
		RecordDate: meeting.RecordDate,
	}, nil
}

// Find returns the full meeting record.
func (s *Service) Find(ctx context.Context, meetingID id.MeetingID) (Meeting, error) {
	return s.find(ctx, meetingID)
}

// Resolutions returns the agenda in order.
func (s *Service) Resolutions(ctx context.Context, meetingID id.MeetingID) ([]Resolution, error) {
	if _, err := s.find(ctx, meetingID); err != nil {
		return nil, err
	}
	resolutions, err := s.store.ListResolutions(ctx, meetingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list resolutions")
	}
	return resolutions, nil
}

// DispatchNotice fires the statutory notice for a meeting whose window has
// opened. The notice_sent flag flips via compare-and-set, so with any number
// of concurrent callers exactly one dispatches; the rest observe the flag and
// skip. A recipient-resolution failure surfaces before the flag flips and the
// scheduler retries on the next sweep. Dispatcher failure does not unwind the
// flag: the attempt is recorded and retry policy belongs to the dispatcher.
func (s *Service) DispatchNotice(ctx context.Context, meetingID id.MeetingID) error {
	meeting, err := s.find(ctx, meetingID)
	if err != nil {
		return err
	}
	now := s.clock()
	if !meeting.NoticeDue(now) {
		return dErrors.New(dErrors.CodeStateConflict, "notice window not yet open")
	}

	// Recipients resolve before the claim is consumed, so a registry failure
	// leaves the meeting in NoticePending for the next scheduler sweep.
	recipients, err := s.recipients(ctx, meeting.CompanyID)
	if err != nil {
		s.logger.Error("failed to resolve notice recipients", "error", err, "meeting_id", meetingID.String())
		s.audit(ctx, audit.Event{
			MeetingID: meetingID,
			Action:    audit.EventNoticeFailed.String(),
			Decision:  "failed",
			Reason:    err.Error(),
			Timestamp: now,
		})
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve notice recipients")
	}

	if err := s.store.ClaimNotice(ctx, meetingID); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Another worker won; idempotent skip.
			return nil
		}
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeStateConflict, "illegal transition to notice_sent")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim notice dispatch")
	}

	// The dispatcher may block on external I/O; bound it and hold no locks.
	for channel, batch := range recipients {
		dispatchCtx, cancel := context.WithTimeout(ctx, s.defaults.CollaboratorTimeout)
		dispatchErr := s.dispatcher.Dispatch(dispatchCtx, meetingID, channel, batch)
		cancel()

		event := audit.Event{
			MeetingID:      meetingID,
			Action:         audit.EventNoticeDispatched.String(),
			Decision:       "accepted",
			Channel:        channel,
			RecipientCount: len(batch),
			Timestamp:      now,
		}
		if dispatchErr != nil {
			event.Action = audit.EventNoticeFailed.String()
			event.Decision = "failed"
			event.Reason = dispatchErr.Error()
			s.logger.Error("notice dispatch failed",
				"error", dispatchErr, "meeting_id", meetingID.String(), "channel", channel)
		} else {
			s.metrics.IncNoticesDispatched()
		}
		s.audit(ctx, event)
	}

	s.logger.Info("statutory notice dispatched", "meeting_id", meetingID.String())
	return nil
}

// OpenVoting freezes weights and opens the ballot window. The snapshot is
// durable before the state flips (write-ahead-of-transition), so a vote can
// never be accepted without a frozen weight behind it.
func (s *Service) OpenVoting(ctx context.Context, meetingID id.MeetingID) error {
	meeting, err := s.find(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.State != id.MeetingNoticeSent {
		return dErrors.Newf(dErrors.CodeStateConflict, "illegal transition %s -> %s",
			meeting.State, id.MeetingVotingOpen)
	}
	now := s.clock()
	if !meeting.RecordDateReached(now) {
		return dErrors.New(dErrors.CodeStateConflict, "record date not reached")
	}

	// Freeze is idempotent; a lost race here is harmless.
	if err := s.freezer.Freeze(ctx, meetingID); err != nil {
		return err
	}

	if err := s.store.CompareAndSetState(ctx, meetingID, id.MeetingNoticeSent, id.MeetingVotingOpen); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// Another worker opened it first.
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to open voting")
	}

	s.audit(ctx, audit.Event{
		MeetingID: meetingID,
		Action:    audit.EventVotingOpened.String(),
		Timestamp: now,
	})
	s.logger.Info("voting opened", "meeting_id", meetingID.String())
	return nil
}

// Close stops the ballot window and finalizes the tally. The state flips
// first so no further votes can land, then the tally is computed over the
// final vote set; Finalize is idempotent and the scheduler re-runs it if the
// process dies in between.
func (s *Service) Close(ctx context.Context, meetingID id.MeetingID) error {
	meeting, err := s.find(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.State != id.MeetingVotingOpen {
		return dErrors.Newf(dErrors.CodeStateConflict, "illegal transition %s -> %s",
			meeting.State, id.MeetingClosed)
	}

	if err := s.store.CompareAndSetState(ctx, meetingID, id.MeetingVotingOpen, id.MeetingClosed); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close meeting")
	}

	if err := s.finalizer.Finalize(ctx, meetingID); err != nil {
		// The meeting stays Closed; the scheduler retries finalization until
		// the tally is durable.
		s.logger.Error("tally finalization failed after close", "error", err, "meeting_id", meetingID.String())
		return err
	}

	s.audit(ctx, audit.Event{
		MeetingID: meetingID,
		Action:    audit.EventMeetingClosed.String(),
		Timestamp: s.clock(),
	})
	s.logger.Info("meeting closed", "meeting_id", meetingID.String())
	return nil
}

// EnsureFinalized re-runs tally finalization for a closed meeting. Finalize
// is idempotent, so the scheduler calls this on every sweep to recover from a
// crash between the close transition and the tally write.
func (s *Service) EnsureFinalized(ctx context.Context, meetingID id.MeetingID) error {
	return s.finalizer.Finalize(ctx, meetingID)
}

// Archive moves a closed meeting to its terminal read-only state.
func (s *Service) Archive(ctx context.Context, meetingID id.MeetingID) error {
	meeting, err := s.find(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.State != id.MeetingClosed {
		return dErrors.Newf(dErrors.CodeStateConflict, "illegal transition %s -> %s",
			meeting.State, id.MeetingArchived)
	}
	if err := s.store.CompareAndSetState(ctx, meetingID, id.MeetingClosed, id.MeetingArchived); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to archive meeting")
	}
	s.audit(ctx, audit.Event{
		MeetingID: meetingID,
		Action:    audit.EventMeetingArchived.String(),
		Timestamp: s.clock(),
	})
	return nil
}

func (s *Service) find(ctx context.Context, meetingID id.MeetingID) (Meeting, error) {
	meeting, err := s.store.FindByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Meeting{}, dErrors.New(dErrors.CodeNotFound, "meeting not found")
		}
		return Meeting{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load meeting")
	}
	return meeting, nil
}

// recipients groups the company's shareholders by contact channel.
func (s *Service) recipients(ctx context.Context, companyID id.CompanyID) (map[string][]notify.Recipient, error) {
	holders, err := s.shares.ListShareholders(ctx, companyID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]notify.Recipient)
	for _, holder := range holders {
		channel := string(holder.Contact)
		name := holder.Name
		if name == "" && holder.Contact == registry.ChannelEmail {
			first, last := email.DeriveNameFromEmail(holder.Address)
			name = first + " " + last
		}
		out[channel] = append(out[channel], notify.Recipient{
			ShareholderID: holder.ID,
			Name:          name,
			Channel:       channel,
			Contact:       holder.Address,
		})
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, event audit.Event) {
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Error("failed to emit audit event", "error", err, "action", event.Action)
	}
}
