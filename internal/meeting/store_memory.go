package meeting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// InMemoryStore implements Store with mutex-scoped compare-and-set, matching
// the semantics of the conditional UPDATEs in the Postgres implementation.
type InMemoryStore struct {
	mu          sync.RWMutex
	meetings    map[id.MeetingID]Meeting
	resolutions map[id.MeetingID][]Resolution
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		meetings:    make(map[id.MeetingID]Meeting),
		resolutions: make(map[id.MeetingID][]Resolution),
	}
}

func (s *InMemoryStore) Create(_ context.Context, meeting Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[meeting.ID]; ok {
		return fmt.Errorf("meeting %s: %w", meeting.ID, sentinel.ErrConflict)
	}
	s.meetings[meeting.ID] = meeting
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, meetingID id.MeetingID) (Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meeting, ok := s.meetings[meetingID]
	if !ok {
		return Meeting{}, fmt.Errorf("meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	return meeting, nil
}

func (s *InMemoryStore) ListInStates(_ context.Context, states ...id.MeetingState) ([]Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[id.MeetingState]bool, len(states))
	for _, state := range states {
		wanted[state] = true
	}
	var out []Meeting
	for _, meeting := range s.meetings {
		if wanted[meeting.State] {
			out = append(out, meeting)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (s *InMemoryStore) CompareAndSetState(_ context.Context, meetingID id.MeetingID, expected, next id.MeetingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meeting, ok := s.meetings[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	if meeting.State != expected {
		return fmt.Errorf("meeting %s in state %s, expected %s: %w",
			meetingID, meeting.State, expected, sentinel.ErrInvalidState)
	}
	meeting.State = next
	s.meetings[meetingID] = meeting
	return nil
}

func (s *InMemoryStore) ClaimNotice(_ context.Context, meetingID id.MeetingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meeting, ok := s.meetings[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	if meeting.NoticeSent {
		return fmt.Errorf("notice for meeting %s: %w", meetingID, sentinel.ErrAlreadyUsed)
	}
	if meeting.State != id.MeetingNoticePending {
		return fmt.Errorf("meeting %s in state %s: %w", meetingID, meeting.State, sentinel.ErrInvalidState)
	}
	meeting.NoticeSent = true
	meeting.State = id.MeetingNoticeSent
	s.meetings[meetingID] = meeting
	return nil
}

func (s *InMemoryStore) AddResolution(_ context.Context, resolution Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[resolution.MeetingID]; !ok {
		return fmt.Errorf("meeting %s: %w", resolution.MeetingID, sentinel.ErrNotFound)
	}
	s.resolutions[resolution.MeetingID] = append(s.resolutions[resolution.MeetingID], resolution)
	return nil
}

func (s *InMemoryStore) ListResolutions(_ context.Context, meetingID id.MeetingID) ([]Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Resolution{}, s.resolutions[meetingID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *InMemoryStore) RecordDate(_ context.Context, meetingID id.MeetingID) (id.CompanyID, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meeting, ok := s.meetings[meetingID]
	if !ok {
		return id.CompanyID{}, time.Time{}, fmt.Errorf("meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	return meeting.CompanyID, meeting.RecordDate, nil
}
