package meeting

import (
	"context"
	"time"

	id "quorum/pkg/domain"
)

// Store persists meetings and resolutions. The two compare-and-set methods
// are the only mutations of contended state; they linearize concurrent
// scheduler workers without any coarse lock.
type Store interface {
	Create(ctx context.Context, meeting Meeting) error
	FindByID(ctx context.Context, meetingID id.MeetingID) (Meeting, error)
	// ListInStates returns meetings currently in any of the given states.
	ListInStates(ctx context.Context, states ...id.MeetingState) ([]Meeting, error)

	// CompareAndSetState atomically moves a meeting from the expected state to
	// next. Returns sentinel.ErrInvalidState when the current state differs
	// from expected (another worker already transitioned it).
	CompareAndSetState(ctx context.Context, meetingID id.MeetingID, expected, next id.MeetingState) error
	// ClaimNotice atomically flips notice_sent false→true together with the
	// NoticePending→NoticeSent transition. Returns sentinel.ErrAlreadyUsed
	// when the flag was already set; at most one caller ever wins.
	ClaimNotice(ctx context.Context, meetingID id.MeetingID) error

	AddResolution(ctx context.Context, resolution Resolution) error
	ListResolutions(ctx context.Context, meetingID id.MeetingID) ([]Resolution, error)

	// RecordDate implements snapshot.MeetingLookup.
	RecordDate(ctx context.Context, meetingID id.MeetingID) (id.CompanyID, time.Time, error)
}
