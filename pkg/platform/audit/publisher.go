package audit

import (
	"context"
	"time"

	id "quorum/pkg/domain"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit records an event, deriving the category from the action when unset.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	if base.Category == "" {
		base.Category = AuditEvent(base.Action).Category()
	}
	return p.store.Append(ctx, base)
}

// Trail returns the ordered, replayable event sequence for a meeting.
func (p *Publisher) Trail(ctx context.Context, meetingID id.MeetingID) ([]Event, error) {
	return p.store.ListByMeeting(ctx, meetingID)
}
