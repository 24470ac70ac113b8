// Package domainerrors provides coded domain errors for the voting engine.
//
// Stores and infrastructure return sentinel errors (pkg/platform/sentinel);
// services translate them into coded errors at the boundary so callers can
// distinguish "voting not open" from "already voted" from "identity rejected"
// without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are part of the engine's public
// contract: transport bindings map them to status codes, callers branch on
// them via HasCode.
type Code string

const (
	// CodeInvalidInput covers malformed or missing input, rejected with detail.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound signals a referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeStateConflict covers illegal lifecycle transitions, duplicate notice
	// dispatch, and other operations invalid for the entity's current state.
	CodeStateConflict Code = "state_conflict"
	// CodeVotingNotOpen rejects a ballot cast outside the voting-open window.
	CodeVotingNotOpen Code = "voting_not_open"
	// CodeNoSnapshot rejects a ballot for which no frozen weight exists yet.
	CodeNoSnapshot Code = "no_snapshot"
	// CodeIdentityRejected surfaces a failed identity assertion; the vote is
	// not recorded.
	CodeIdentityRejected Code = "identity_rejected"
	// CodeReplayedProof rejects a signature proof whose digest was already
	// bound to a recorded vote.
	CodeReplayedProof Code = "replayed_proof"
	// CodePayloadMismatch signals a proof that does not bind the presented
	// ballot payload.
	CodePayloadMismatch Code = "payload_mismatch"
	// CodeNotFinalized signals a tally requested before meeting close.
	CodeNotFinalized Code = "not_finalized"
	// CodeUnavailable signals an external collaborator timeout; retryable by
	// the caller, never retried internally for votes.
	CodeUnavailable Code = "unavailable"
	// CodeIntegrity signals a data-model invariant breach (tally exceeding
	// snapshot total, digest collision). Fatal to the operation.
	CodeIntegrity Code = "integrity_violation"
	// CodeInternal covers unexpected failures not worth distinguishing.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Reason carries caller-facing detail.
type Error struct {
	Code   Code
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a caller-facing reason.
func New(code Code, reason string) error {
	return &Error{Code: code, Reason: reason}
}

// Newf creates a coded error with a formatted reason.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and reason to an underlying error, preserving the
// cause chain for errors.Is/As.
func Wrap(err error, code Code, reason string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Reason: reason, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			break
		}
		de = nil
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// is not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ReasonOf returns the caller-facing reason, or the raw error text for
// uncoded errors.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return err.Error()
}
