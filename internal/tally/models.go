// Package tally aggregates the vote ledger against frozen weights into
// immutable per-resolution results. Finalization is a pure function of the
// unordered set of current votes: accumulation is integer addition, so
// iteration order cannot affect the outcome.
package tally

import (
	"time"

	id "quorum/pkg/domain"
)

// Result is the weighted count for one resolution. Never mutated after the
// meeting closes.
type Result struct {
	MeetingID    id.MeetingID
	ResolutionID id.ResolutionID
	Yes          int64
	No           int64
	Abstain      int64
	FinalizedAt  time.Time
}

// Total returns the summed weight across all choices.
func (r Result) Total() int64 {
	return r.Yes + r.No + r.Abstain
}
