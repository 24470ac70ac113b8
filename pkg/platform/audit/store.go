package audit

import (
	"context"

	id "quorum/pkg/domain"
)

// Store persists audit events. Append-only; events are never updated or
// deleted while the owning meeting exists.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListByMeeting returns the meeting's events ordered by timestamp, then by
	// insertion order for equal timestamps. The ordering makes the trail
	// replayable for compliance export.
	ListByMeeting(ctx context.Context, meetingID id.MeetingID) ([]Event, error)
}
