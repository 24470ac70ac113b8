package memory

import (
	"context"
	"sort"
	"sync"

	id "quorum/pkg/domain"
	audit "quorum/pkg/platform/audit"
)

// InMemoryStore keeps audit events per meeting. Insertion order is preserved
// so the trail stays replayable without a database.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.MeetingID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.MeetingID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.MeetingID] = append(s.events[event.MeetingID], event)
	return nil
}

func (s *InMemoryStore) ListByMeeting(_ context.Context, meetingID id.MeetingID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]audit.Event{}, s.events[meetingID]...)
	// Stable sort keeps insertion order for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.MeetingID][]audit.Event)
}
