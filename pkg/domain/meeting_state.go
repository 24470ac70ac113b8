package domain

import (
	dErrors "quorum/pkg/domain-errors"
)

// MeetingState is the closed lifecycle state of a meeting. Transitions are
// validated centrally via CanTransition; call sites never compare raw strings.
type MeetingState string

const (
	MeetingDraft         MeetingState = "draft"
	MeetingNoticePending MeetingState = "notice_pending"
	MeetingNoticeSent    MeetingState = "notice_sent"
	MeetingVotingOpen    MeetingState = "voting_open"
	MeetingClosed        MeetingState = "closed"
	MeetingArchived      MeetingState = "archived"
)

// validTransitions encodes the lifecycle:
// Draft → NoticePending → NoticeSent → VotingOpen → Closed → Archived.
var validTransitions = map[MeetingState]MeetingState{
	MeetingDraft:         MeetingNoticePending,
	MeetingNoticePending: MeetingNoticeSent,
	MeetingNoticeSent:    MeetingVotingOpen,
	MeetingVotingOpen:    MeetingClosed,
	MeetingClosed:        MeetingArchived,
}

// ParseMeetingState validates a persisted state string.
func ParseMeetingState(s string) (MeetingState, error) {
	state := MeetingState(s)
	switch state {
	case MeetingDraft, MeetingNoticePending, MeetingNoticeSent,
		MeetingVotingOpen, MeetingClosed, MeetingArchived:
		return state, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown meeting state %q", s)
}

func (s MeetingState) String() string { return string(s) }

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. The lifecycle is strictly linear; there are no skips or reversals.
func (s MeetingState) CanTransition(next MeetingState) bool {
	return validTransitions[s] == next
}

// Terminal reports whether the state admits no further transitions.
func (s MeetingState) Terminal() bool {
	_, ok := validTransitions[s]
	return !ok
}

// VotingPermitted reports whether ballots are accepted in this state.
func (s MeetingState) VotingPermitted() bool {
	return s == MeetingVotingOpen
}
