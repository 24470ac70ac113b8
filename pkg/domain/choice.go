package domain

import (
	dErrors "quorum/pkg/domain-errors"
)

// VoteChoice is the closed set of ballot choices.
type VoteChoice string

const (
	ChoiceYes     VoteChoice = "yes"
	ChoiceNo      VoteChoice = "no"
	ChoiceAbstain VoteChoice = "abstain"
)

// ParseVoteChoice validates a ballot choice at the trust boundary.
func ParseVoteChoice(s string) (VoteChoice, error) {
	c := VoteChoice(s)
	switch c {
	case ChoiceYes, ChoiceNo, ChoiceAbstain:
		return c, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown vote choice %q", s)
}

func (c VoteChoice) String() string { return string(c) }

// Choices returns all valid choices in tally output order.
func Choices() []VoteChoice {
	return []VoteChoice{ChoiceYes, ChoiceNo, ChoiceAbstain}
}

// VerificationStatus is a shareholder's identity-verification state.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationFailed     VerificationStatus = "failed"
)

// ParseVerificationStatus validates a persisted verification status.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	v := VerificationStatus(s)
	switch v {
	case VerificationUnverified, VerificationPending, VerificationVerified, VerificationFailed:
		return v, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown verification status %q", s)
}

func (v VerificationStatus) String() string { return string(v) }

// RevotePolicy decides how a second ballot for the same (meeting, shareholder,
// resolution) key is handled while voting is open. Legal requirements differ
// per jurisdiction, so this is configuration, not a hardcoded rule.
type RevotePolicy string

const (
	// RevoteSupersede records the new ballot and keeps the prior one as an
	// auditable correction.
	RevoteSupersede RevotePolicy = "supersede"
	// RevoteOneShot rejects any second ballot for the same key.
	RevoteOneShot RevotePolicy = "oneshot"
)

// ParseRevotePolicy validates a configured re-vote policy.
func ParseRevotePolicy(s string) (RevotePolicy, error) {
	p := RevotePolicy(s)
	switch p {
	case RevoteSupersede, RevoteOneShot:
		return p, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown revote policy %q", s)
}
