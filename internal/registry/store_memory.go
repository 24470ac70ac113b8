package registry

import (
	"context"
	"fmt"
	"sync"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// InMemoryStore is the test and single-process implementation of Store and
// ShareRegistry.
type InMemoryStore struct {
	mu           sync.RWMutex
	companies    map[id.CompanyID]Company
	shareholders map[id.ShareholderID]Shareholder
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		companies:    make(map[id.CompanyID]Company),
		shareholders: make(map[id.ShareholderID]Shareholder),
	}
}

func (s *InMemoryStore) SaveCompany(_ context.Context, company Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[company.ID] = company
	return nil
}

func (s *InMemoryStore) FindCompany(_ context.Context, companyID id.CompanyID) (Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	company, ok := s.companies[companyID]
	if !ok {
		return Company{}, fmt.Errorf("company %s: %w", companyID, sentinel.ErrNotFound)
	}
	return company, nil
}

func (s *InMemoryStore) SaveShareholder(_ context.Context, holder Shareholder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	company, ok := s.companies[holder.CompanyID]
	if !ok {
		return fmt.Errorf("company %s: %w", holder.CompanyID, sentinel.ErrNotFound)
	}
	if err := s.checkIssuanceLocked(company, holder.ID, holder.Shares); err != nil {
		return err
	}
	s.shareholders[holder.ID] = holder
	return nil
}

func (s *InMemoryStore) FindShareholder(_ context.Context, holderID id.ShareholderID) (Shareholder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	holder, ok := s.shareholders[holderID]
	if !ok {
		return Shareholder{}, fmt.Errorf("shareholder %s: %w", holderID, sentinel.ErrNotFound)
	}
	return holder, nil
}

func (s *InMemoryStore) ListShareholders(_ context.Context, companyID id.CompanyID) ([]Shareholder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Shareholder
	for _, holder := range s.shareholders {
		if holder.CompanyID == companyID {
			out = append(out, holder)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateShares(_ context.Context, holderID id.ShareholderID, shares int64) error {
	if shares < 0 {
		return fmt.Errorf("negative share count: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	holder, ok := s.shareholders[holderID]
	if !ok {
		return fmt.Errorf("shareholder %s: %w", holderID, sentinel.ErrNotFound)
	}
	company := s.companies[holder.CompanyID]
	if err := s.checkIssuanceLocked(company, holderID, shares); err != nil {
		return err
	}
	holder.Shares = shares
	s.shareholders[holderID] = holder
	return nil
}

func (s *InMemoryStore) CurrentShares(_ context.Context, companyID id.CompanyID, shareholderID id.ShareholderID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	holder, ok := s.shareholders[shareholderID]
	if !ok || holder.CompanyID != companyID {
		return 0, fmt.Errorf("shareholder %s: %w", shareholderID, sentinel.ErrNotFound)
	}
	return holder.Shares, nil
}

// checkIssuanceLocked enforces sum(active shares) <= total issued. Caller
// holds the write lock.
func (s *InMemoryStore) checkIssuanceLocked(company Company, holderID id.ShareholderID, proposed int64) error {
	var sum int64
	for hid, holder := range s.shareholders {
		if holder.CompanyID != company.ID || hid == holderID {
			continue
		}
		sum += holder.Shares
	}
	if sum+proposed > company.TotalShares {
		return fmt.Errorf("share issuance exceeded for company %s: %w", company.ID, sentinel.ErrInvalidState)
	}
	return nil
}
