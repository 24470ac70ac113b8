package snapshot

import (
	"context"
	"fmt"
	"sync"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// InMemoryStore keeps snapshots per meeting. The frozen set is written under
// a single lock so the at-most-once guarantee holds across concurrent
// scheduler workers.
type InMemoryStore struct {
	mu      sync.RWMutex
	frozen  map[id.MeetingID][]WeightSnapshot
	weights map[id.MeetingID]map[id.ShareholderID]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		frozen:  make(map[id.MeetingID][]WeightSnapshot),
		weights: make(map[id.MeetingID]map[id.ShareholderID]int64),
	}
}

func (s *InMemoryStore) FreezeAll(_ context.Context, meetingID id.MeetingID, entries []WeightSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.frozen[meetingID]; ok {
		return fmt.Errorf("snapshot for meeting %s: %w", meetingID, sentinel.ErrAlreadyUsed)
	}
	byHolder := make(map[id.ShareholderID]int64, len(entries))
	for _, entry := range entries {
		byHolder[entry.ShareholderID] = entry.Weight
	}
	s.frozen[meetingID] = append([]WeightSnapshot{}, entries...)
	s.weights[meetingID] = byHolder
	return nil
}

func (s *InMemoryStore) WeightOf(_ context.Context, meetingID id.MeetingID, shareholderID id.ShareholderID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byHolder, ok := s.weights[meetingID]
	if !ok {
		return 0, fmt.Errorf("snapshot for meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	weight, ok := byHolder[shareholderID]
	if !ok {
		return 0, fmt.Errorf("snapshot for shareholder %s: %w", shareholderID, sentinel.ErrNotFound)
	}
	return weight, nil
}

func (s *InMemoryStore) TotalWeight(_ context.Context, meetingID id.MeetingID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.frozen[meetingID]
	if !ok {
		return 0, fmt.Errorf("snapshot for meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	var total int64
	for _, entry := range entries {
		total += entry.Weight
	}
	return total, nil
}

func (s *InMemoryStore) List(_ context.Context, meetingID id.MeetingID) ([]WeightSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]WeightSnapshot{}, s.frozen[meetingID]...), nil
}

func (s *InMemoryStore) Frozen(_ context.Context, meetingID id.MeetingID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.frozen[meetingID]
	return ok, nil
}
