package tally

import (
	"context"

	id "quorum/pkg/domain"
)

// Store persists finalized results. A meeting's results are written once and
// never updated; SaveAll fails with sentinel.ErrConflict when results already
// exist, which Finalize treats as an idempotent no-op.
type Store interface {
	SaveAll(ctx context.Context, meetingID id.MeetingID, results []Result) error
	Find(ctx context.Context, meetingID id.MeetingID, resolutionID id.ResolutionID) (Result, error)
	ListByMeeting(ctx context.Context, meetingID id.MeetingID) ([]Result, error)
	// Exists reports whether the meeting is already finalized.
	Exists(ctx context.Context, meetingID id.MeetingID) (bool, error)
}
