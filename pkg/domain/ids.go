// Package domain holds the engine's shared primitives: typed identifiers and
// closed state/choice enumerations. Parsing happens at trust boundaries so the
// rest of the engine never handles raw strings.
package domain

import (
	"github.com/google/uuid"

	dErrors "quorum/pkg/domain-errors"
)

// Typed IDs prevent cross-entity assignment at compile time. A MeetingID can
// never be passed where a ShareholderID is expected.
type (
	CompanyID     uuid.UUID
	ShareholderID uuid.UUID
	MeetingID     uuid.UUID
	ResolutionID  uuid.UUID
	VoteID        uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s ID required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s ID", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "nil %s ID", kind)
	}
	return u, nil
}

func ParseCompanyID(s string) (CompanyID, error) {
	u, err := parseUUID(s, "company")
	return CompanyID(u), err
}

func ParseShareholderID(s string) (ShareholderID, error) {
	u, err := parseUUID(s, "shareholder")
	return ShareholderID(u), err
}

func ParseMeetingID(s string) (MeetingID, error) {
	u, err := parseUUID(s, "meeting")
	return MeetingID(u), err
}

func ParseResolutionID(s string) (ResolutionID, error) {
	u, err := parseUUID(s, "resolution")
	return ResolutionID(u), err
}

func ParseVoteID(s string) (VoteID, error) {
	u, err := parseUUID(s, "vote")
	return VoteID(u), err
}

func NewCompanyID() CompanyID         { return CompanyID(uuid.New()) }
func NewShareholderID() ShareholderID { return ShareholderID(uuid.New()) }
func NewMeetingID() MeetingID         { return MeetingID(uuid.New()) }
func NewResolutionID() ResolutionID   { return ResolutionID(uuid.New()) }
func NewVoteID() VoteID               { return VoteID(uuid.New()) }

func (id CompanyID) String() string     { return uuid.UUID(id).String() }
func (id ShareholderID) String() string { return uuid.UUID(id).String() }
func (id MeetingID) String() string     { return uuid.UUID(id).String() }
func (id ResolutionID) String() string  { return uuid.UUID(id).String() }
func (id VoteID) String() string        { return uuid.UUID(id).String() }

func (id CompanyID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ShareholderID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MeetingID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ResolutionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id VoteID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
