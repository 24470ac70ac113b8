package voting

import (
	"context"
	"fmt"
	"sync"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

type ballotKey struct {
	meetingID     id.MeetingID
	shareholderID id.ShareholderID
	resolutionID  id.ResolutionID
}

// InMemoryStore is the test and single-process ledger. The mutex scopes the
// whole Record step so supersede-and-insert is atomic.
type InMemoryStore struct {
	mu      sync.RWMutex
	ledger  map[id.MeetingID][]Vote
	active  map[ballotKey]int
	digests map[string]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		ledger:  make(map[id.MeetingID][]Vote),
		active:  make(map[ballotKey]int),
		digests: make(map[string]bool),
	}
}

func (s *InMemoryStore) Record(_ context.Context, vote Vote, allowSupersede bool) (*Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.digests[vote.Proof.Digest] {
		return nil, fmt.Errorf("proof digest %s: %w", vote.Proof.Digest, sentinel.ErrAlreadyUsed)
	}

	key := ballotKey{vote.MeetingID, vote.ShareholderID, vote.ResolutionID}
	var prior *Vote
	if idx, ok := s.active[key]; ok {
		if !allowSupersede {
			return nil, fmt.Errorf("vote already recorded for key: %w", sentinel.ErrConflict)
		}
		entries := s.ledger[vote.MeetingID]
		entries[idx].Superseded = true
		entries[idx].SupersededAt = vote.CastAt
		copied := entries[idx]
		prior = &copied
	}

	s.ledger[vote.MeetingID] = append(s.ledger[vote.MeetingID], vote)
	s.active[key] = len(s.ledger[vote.MeetingID]) - 1
	s.digests[vote.Proof.Digest] = true
	return prior, nil
}

func (s *InMemoryStore) FindActive(_ context.Context, meetingID id.MeetingID, shareholderID id.ShareholderID, resolutionID id.ResolutionID) (Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.active[ballotKey{meetingID, shareholderID, resolutionID}]
	if !ok {
		return Vote{}, fmt.Errorf("no active vote for key: %w", sentinel.ErrNotFound)
	}
	return s.ledger[meetingID][idx], nil
}

func (s *InMemoryStore) ListActive(_ context.Context, meetingID id.MeetingID) ([]Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Vote
	for _, vote := range s.ledger[meetingID] {
		if !vote.Superseded {
			out = append(out, vote)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListLedger(_ context.Context, meetingID id.MeetingID) ([]Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Vote{}, s.ledger[meetingID]...), nil
}
