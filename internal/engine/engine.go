// Package engine is the function-level surface of the voting engine. It
// composes the subsystem services and exposes the operations a caller (or a
// transport binding) consumes; no business logic lives here.
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"quorum/internal/meeting"
	"quorum/internal/snapshot"
	"quorum/internal/tally"
	"quorum/internal/voting"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/audit"
)

var tracer = otel.Tracer("quorum/internal/engine")

// Engine bundles the subsystem services behind one surface.
type Engine struct {
	meetings  *meeting.Service
	snapshots *snapshot.Service
	votes     *voting.Service
	tallies   *tally.Service
	auditor   *audit.Publisher
}

func New(meetings *meeting.Service, snapshots *snapshot.Service,
	votes *voting.Service, tallies *tally.Service, auditor *audit.Publisher) *Engine {
	return &Engine{
		meetings:  meetings,
		snapshots: snapshots,
		votes:     votes,
		tallies:   tallies,
		auditor:   auditor,
	}
}

func span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func end(s trace.Span, err error) {
	if err != nil {
		s.RecordError(err)
	}
	s.End()
}

// CreateMeeting schedules a meeting and returns its identifier.
func (e *Engine) CreateMeeting(ctx context.Context, companyID id.CompanyID, title string,
	scheduledAt time.Time, noticeWindow, votingDuration time.Duration) (id.MeetingID, error) {
	ctx, sp := span(ctx, "engine.CreateMeeting",
		attribute.String("company_id", companyID.String()))
	created, err := e.meetings.Create(ctx, meeting.CreateRequest{
		CompanyID:      companyID,
		Title:          title,
		ScheduledAt:    scheduledAt,
		NoticeWindow:   noticeWindow,
		VotingDuration: votingDuration,
	})
	end(sp, err)
	if err != nil {
		return id.MeetingID{}, err
	}
	return created.ID, nil
}

// ListMeetingState returns the meeting's lifecycle projection.
func (e *Engine) ListMeetingState(ctx context.Context, meetingID id.MeetingID) (meeting.Status, error) {
	return e.meetings.Status(ctx, meetingID)
}

// AddResolution appends an agenda item before voting opens.
func (e *Engine) AddResolution(ctx context.Context, meetingID id.MeetingID, title, description string) (meeting.Resolution, error) {
	ctx, sp := span(ctx, "engine.AddResolution",
		attribute.String("meeting_id", meetingID.String()))
	resolution, err := e.meetings.AddResolution(ctx, meetingID, title, description)
	end(sp, err)
	return resolution, err
}

// CastVote admits one ballot and returns its receipt.
func (e *Engine) CastVote(ctx context.Context, req voting.CastRequest) (voting.Receipt, error) {
	ctx, sp := span(ctx, "engine.CastVote",
		attribute.String("meeting_id", req.MeetingID.String()),
		attribute.String("resolution_id", req.ResolutionID.String()))
	receipt, err := e.votes.Cast(ctx, req)
	end(sp, err)
	return receipt, err
}

// GetTally returns the finalized result for one resolution.
func (e *Engine) GetTally(ctx context.Context, meetingID id.MeetingID, resolutionID id.ResolutionID) (tally.Result, error) {
	return e.tallies.Get(ctx, meetingID, resolutionID)
}

// TotalVotingWeight returns the meeting's frozen total weight, for turnout
// reporting against tallies.
func (e *Engine) TotalVotingWeight(ctx context.Context, meetingID id.MeetingID) (int64, error) {
	return e.snapshots.TotalWeight(ctx, meetingID)
}

// CloseMeeting stops the ballot window on operator request.
func (e *Engine) CloseMeeting(ctx context.Context, meetingID id.MeetingID) error {
	ctx, sp := span(ctx, "engine.CloseMeeting",
		attribute.String("meeting_id", meetingID.String()))
	err := e.meetings.Close(ctx, meetingID)
	end(sp, err)
	return err
}

// ArchiveMeeting moves a closed meeting to its terminal state.
func (e *Engine) ArchiveMeeting(ctx context.Context, meetingID id.MeetingID) error {
	ctx, sp := span(ctx, "engine.ArchiveMeeting",
		attribute.String("meeting_id", meetingID.String()))
	err := e.meetings.Archive(ctx, meetingID)
	end(sp, err)
	return err
}

// AuditTrail returns the ordered, replayable compliance sequence for a
// meeting: ballots, corrections, notice dispatch attempts, snapshot events.
func (e *Engine) AuditTrail(ctx context.Context, meetingID id.MeetingID) ([]audit.Event, error) {
	if _, err := e.meetings.Status(ctx, meetingID); err != nil {
		return nil, err
	}
	return e.auditor.Trail(ctx, meetingID)
}
