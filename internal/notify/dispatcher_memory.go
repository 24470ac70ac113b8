package notify

import (
	"context"
	"sync"

	id "quorum/pkg/domain"
)

// Dispatched is one recorded dispatch call.
type Dispatched struct {
	MeetingID  id.MeetingID
	Channel    string
	Recipients []Recipient
}

// InMemoryDispatcher records dispatch calls. Test double and single-process
// default when no broker is configured.
type InMemoryDispatcher struct {
	mu         sync.Mutex
	dispatched []Dispatched
	// failWith, when set, makes every Dispatch call fail. Tests use it to
	// exercise the attempt-recording path.
	failWith error
}

func NewInMemoryDispatcher() *InMemoryDispatcher {
	return &InMemoryDispatcher{}
}

func (d *InMemoryDispatcher) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWith = err
}

func (d *InMemoryDispatcher) Dispatch(_ context.Context, meetingID id.MeetingID, channel string, recipients []Recipient) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.dispatched = append(d.dispatched, Dispatched{
		MeetingID:  meetingID,
		Channel:    channel,
		Recipients: append([]Recipient{}, recipients...),
	})
	return nil
}

// Dispatches returns a copy of all recorded calls.
func (d *InMemoryDispatcher) Dispatches() []Dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Dispatched{}, d.dispatched...)
}
