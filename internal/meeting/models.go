// Package meeting owns the meeting lifecycle state machine. All transitions
// run through the service so gating rules (notice before voting, freeze before
// open, tally before close) live in exactly one place.
package meeting

import (
	"time"

	id "quorum/pkg/domain"
)

// Meeting is one scheduled shareholder meeting. State moves strictly forward:
// Draft → NoticePending → NoticeSent → VotingOpen → Closed → Archived.
type Meeting struct {
	ID        id.MeetingID
	CompanyID id.CompanyID
	Title     string

	ScheduledAt time.Time
	// RecordDate is when voting weights freeze. Defaults to ScheduledAt minus
	// the configured record-date offset.
	RecordDate time.Time
	// NoticeWindow is the statutory advance notice period (e.g. 40 days
	// before ScheduledAt).
	NoticeWindow time.Duration
	// VotingDuration bounds the voting window after ScheduledAt; the
	// scheduler closes the meeting automatically once it elapses.
	VotingDuration time.Duration

	State id.MeetingState
	// NoticeSent flips false→true exactly once, via compare-and-set.
	NoticeSent bool

	CreatedAt time.Time
}

// NoticeDue reports whether the statutory notice window has opened.
func (m Meeting) NoticeDue(now time.Time) bool {
	return !now.Before(m.ScheduledAt.Add(-m.NoticeWindow))
}

// RecordDateReached reports whether weights may freeze.
func (m Meeting) RecordDateReached(now time.Time) bool {
	return !now.Before(m.RecordDate)
}

// VotingExpired reports whether the automatic close is due.
func (m Meeting) VotingExpired(now time.Time) bool {
	return !now.Before(m.ScheduledAt.Add(m.VotingDuration))
}

// Resolution is one agenda item put to a vote. Title and description are
// opaque to the engine; Position preserves agenda order for export.
type Resolution struct {
	ID          id.ResolutionID
	MeetingID   id.MeetingID
	Title       string
	Description string
	Position    int
}

// Status is the read-model projection of a meeting's lifecycle.
type Status struct {
	State      id.MeetingState
	NoticeSent bool
	RecordDate time.Time
}
