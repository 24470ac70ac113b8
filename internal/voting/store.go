package voting

import (
	"context"

	id "quorum/pkg/domain"
)

// Store persists the vote ledger. Record is the single contended write; it
// linearizes concurrent casts for the same key so exactly one commit wins.
type Store interface {
	// Record writes the vote under its (meeting, shareholder, resolution)
	// key. When an active vote already exists: with allowSupersede the prior
	// row is marked superseded in the same atomic step and returned;
	// without it Record fails with sentinel.ErrConflict. A duplicate proof
	// digest fails with sentinel.ErrAlreadyUsed.
	Record(ctx context.Context, vote Vote, allowSupersede bool) (prior *Vote, err error)

	// FindActive returns the current non-superseded vote for the key.
	FindActive(ctx context.Context, meetingID id.MeetingID, shareholderID id.ShareholderID, resolutionID id.ResolutionID) (Vote, error)

	// ListActive returns all non-superseded votes for a meeting, for tally.
	ListActive(ctx context.Context, meetingID id.MeetingID) ([]Vote, error)

	// ListLedger returns the full ledger including superseded rows, for
	// compliance export.
	ListLedger(ctx context.Context, meetingID id.MeetingID) ([]Vote, error)
}
