package snapshot

import (
	"context"

	id "quorum/pkg/domain"
)

// Store persists weight snapshots. FreezeAll is the only write; rows are
// immutable afterwards.
type Store interface {
	// FreezeAll writes the full snapshot set for a meeting atomically,
	// at-most-once. A second call after a successful freeze returns
	// sentinel.ErrAlreadyUsed without writing anything.
	FreezeAll(ctx context.Context, meetingID id.MeetingID, entries []WeightSnapshot) error
	// WeightOf returns the frozen weight, or sentinel.ErrNotFound when the
	// meeting has no snapshot for the shareholder. Callers treat the absence
	// as "voting not yet open".
	WeightOf(ctx context.Context, meetingID id.MeetingID, shareholderID id.ShareholderID) (int64, error)
	// TotalWeight sums all frozen weights for a meeting; zero with
	// sentinel.ErrNotFound when nothing is frozen yet.
	TotalWeight(ctx context.Context, meetingID id.MeetingID) (int64, error)
	List(ctx context.Context, meetingID id.MeetingID) ([]WeightSnapshot, error)
	// Frozen reports whether a snapshot set exists for the meeting.
	Frozen(ctx context.Context, meetingID id.MeetingID) (bool, error)
}
