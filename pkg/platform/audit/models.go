// Package audit captures the engine's compliance trail. Every snapshot freeze,
// notice dispatch attempt, ballot, and correction is emitted as an Event so
// the trail can be exported and replayed for legal review.
package audit

import (
	"time"

	id "quorum/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. This enables
// different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: ballots,
	// corrections, notice dispatches, snapshot freezes, tally finalization.
	// These require tamper-evident storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to forensics: identity
	// rejections, replayed proofs, integrity violations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: sweeps, state transitions, meeting creation.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category      EventCategory
	Timestamp     time.Time
	MeetingID     id.MeetingID
	ShareholderID id.ShareholderID
	ResolutionID  id.ResolutionID
	Action        string
	Decision      string
	Reason        string
	// ProofDigest links the event to a signature proof for non-repudiation.
	ProofDigest string
	// SupersededAt carries the prior ballot's timestamp on corrections so both
	// timestamps survive for audit.
	SupersededAt time.Time
	// Channel and RecipientCount describe a notice dispatch attempt.
	Channel        string
	RecipientCount int
}

// AuditEvent names an auditable action.
type AuditEvent string

const (
	// Meeting lifecycle events
	EventMeetingCreated   AuditEvent = "meeting_created"
	EventNoticeDispatched AuditEvent = "notice_dispatched"
	EventNoticeFailed     AuditEvent = "notice_dispatch_failed"
	EventWeightsFrozen    AuditEvent = "weights_frozen"
	EventVotingOpened     AuditEvent = "voting_opened"
	EventMeetingClosed    AuditEvent = "meeting_closed"
	EventMeetingArchived  AuditEvent = "meeting_archived"

	// Ballot events
	EventVoteCast      AuditEvent = "vote_cast"
	EventVoteCorrected AuditEvent = "vote_corrected"
	EventVoteRejected  AuditEvent = "vote_rejected"

	// Security events
	EventIdentityRejected AuditEvent = "identity_rejected"
	EventProofReplayed    AuditEvent = "proof_replayed"
	EventIntegrityBreach  AuditEvent = "integrity_breach"

	// Tally events
	EventTallyFinalized AuditEvent = "tally_finalized"
)

// eventCategories is the source of truth for event routing.
var eventCategories = map[AuditEvent]EventCategory{
	EventMeetingCreated:   CategoryOperations,
	EventNoticeDispatched: CategoryCompliance,
	EventNoticeFailed:     CategoryCompliance,
	EventWeightsFrozen:    CategoryCompliance,
	EventVotingOpened:     CategoryOperations,
	EventMeetingClosed:    CategoryCompliance,
	EventMeetingArchived:  CategoryOperations,
	EventVoteCast:         CategoryCompliance,
	EventVoteCorrected:    CategoryCompliance,
	EventVoteRejected:     CategoryOperations,
	EventIdentityRejected: CategorySecurity,
	EventProofReplayed:    CategorySecurity,
	EventIntegrityBreach:  CategorySecurity,
	EventTallyFinalized:   CategoryCompliance,
}

// Category returns the routing category for an action; uncategorized actions
// default to operations.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

func (e AuditEvent) String() string { return string(e) }
