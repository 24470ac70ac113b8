package tally

import (
	"context"
	"fmt"
	"sync"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// InMemoryStore is the test and single-process result store.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[id.MeetingID][]Result
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[id.MeetingID][]Result)}
}

func (s *InMemoryStore) SaveAll(_ context.Context, meetingID id.MeetingID, results []Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[meetingID]; ok {
		return fmt.Errorf("meeting %s already finalized: %w", meetingID, sentinel.ErrConflict)
	}
	s.results[meetingID] = append([]Result{}, results...)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, meetingID id.MeetingID, resolutionID id.ResolutionID) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, result := range s.results[meetingID] {
		if result.ResolutionID == resolutionID {
			return result, nil
		}
	}
	return Result{}, fmt.Errorf("tally for resolution %s: %w", resolutionID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListByMeeting(_ context.Context, meetingID id.MeetingID) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results, ok := s.results[meetingID]
	if !ok {
		return nil, fmt.Errorf("tally for meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	return append([]Result{}, results...), nil
}

func (s *InMemoryStore) Exists(_ context.Context, meetingID id.MeetingID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.results[meetingID]
	return ok, nil
}
