// Package snapshot captures and freezes voting weights at a meeting's record
// date. Snapshots are written exactly once per meeting and are immutable until
// the meeting is archived, so later share transfers can never alter the
// outcome of a vote.
package snapshot

import (
	"time"

	id "quorum/pkg/domain"
)

// WeightSnapshot is one shareholder's frozen voting weight for one meeting.
type WeightSnapshot struct {
	MeetingID     id.MeetingID
	ShareholderID id.ShareholderID
	Weight        int64
	FrozenAt      time.Time
}
