// Package notify defines the Notification Dispatcher collaborator port. The
// engine dispatches statutory meeting notices fire-and-forget: it records the
// attempt for audit but never retries internally; retry policy belongs to the
// dispatcher implementation.
package notify

import (
	"context"

	id "quorum/pkg/domain"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks Dispatcher

// Recipient is one notice target. Contact is channel-specific (email address,
// phone number).
type Recipient struct {
	ShareholderID id.ShareholderID
	Name          string
	Channel       string
	Contact       string
}

// Dispatcher delivers a meeting notice to a recipient set over one channel.
// Implementations may block on external I/O; callers bound the call with a
// context timeout and never hold engine locks across it. A nil error means
// the dispatcher accepted the batch, not that delivery completed.
type Dispatcher interface {
	Dispatch(ctx context.Context, meetingID id.MeetingID, channel string, recipients []Recipient) error
}
