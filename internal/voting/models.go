// Package voting is the append-mostly vote ledger. One active vote per
// (meeting, shareholder, resolution) key; a later vote supersedes the prior
// one while voting is open, and superseded rows are retained for audit,
// never deleted.
package voting

import (
	"time"

	"quorum/internal/signature"
	id "quorum/pkg/domain"
)

// Vote is one recorded ballot. Immutable once written; corrections write a
// new row and flip Superseded on the old one.
type Vote struct {
	ID            id.VoteID
	MeetingID     id.MeetingID
	ShareholderID id.ShareholderID
	ResolutionID  id.ResolutionID
	Choice        id.VoteChoice
	// Weight is copied from the meeting's weight snapshot at cast time so the
	// ledger stays self-contained for audit.
	Weight int64
	Proof  signature.Proof
	CastAt time.Time

	Superseded   bool
	SupersededAt time.Time
}

// Receipt is returned to the caller on a successful cast.
type Receipt struct {
	VoteID      id.VoteID
	ProofDigest string
	CastAt      time.Time
	// Corrected is true when this ballot superseded an earlier one.
	Corrected bool
}
