package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quorum/internal/platform/logger"
	"quorum/internal/registry"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/audit"
	auditmem "quorum/pkg/platform/audit/store/memory"
	"quorum/pkg/platform/sentinel"
)

type meetingLookupStub struct {
	companyID  id.CompanyID
	recordDate time.Time
	known      map[id.MeetingID]bool
}

func (m *meetingLookupStub) RecordDate(_ context.Context, meetingID id.MeetingID) (id.CompanyID, time.Time, error) {
	if !m.known[meetingID] {
		return id.CompanyID{}, time.Time{}, fmt.Errorf("meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	return m.companyID, m.recordDate, nil
}

type SnapshotServiceSuite struct {
	suite.Suite
	store     *InMemoryStore
	shares    *registry.InMemoryStore
	meetings  *meetingLookupStub
	service   *Service
	auditmem  *auditmem.InMemoryStore
	companyID id.CompanyID
	meetingID id.MeetingID
	holderID  id.ShareholderID
	now       time.Time
}

func TestSnapshotServiceSuite(t *testing.T) {
	suite.Run(t, new(SnapshotServiceSuite))
}

func (s *SnapshotServiceSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.companyID = id.NewCompanyID()
	s.meetingID = id.NewMeetingID()
	s.holderID = id.NewShareholderID()

	s.shares = registry.NewInMemoryStore()
	s.Require().NoError(s.shares.SaveCompany(context.Background(), registry.Company{
		ID: s.companyID, Name: "Acme Holdings", TotalShares: 10_000,
	}))
	s.Require().NoError(s.shares.SaveShareholder(context.Background(), registry.Shareholder{
		ID: s.holderID, CompanyID: s.companyID, Name: "A",
		Shares: 1_000, Verification: id.VerificationVerified, Contact: registry.ChannelEmail,
	}))

	s.store = NewInMemoryStore()
	s.meetings = &meetingLookupStub{
		companyID:  s.companyID,
		recordDate: s.now.Add(-time.Hour),
		known:      map[id.MeetingID]bool{s.meetingID: true},
	}
	s.auditmem = auditmem.NewInMemoryStore()
	s.service = NewService(s.store, s.meetings, s.shares,
		audit.NewPublisher(s.auditmem), logger.New(), nil,
		WithClock(func() time.Time { return s.now }))
}

func (s *SnapshotServiceSuite) TestFreeze() {
	s.Run("captures current share counts", func() {
		err := s.service.Freeze(context.Background(), s.meetingID)
		s.Require().NoError(err)

		weight, err := s.service.WeightOf(context.Background(), s.meetingID, s.holderID)
		s.Require().NoError(err)
		s.Equal(int64(1_000), weight)
	})

	s.Run("frozen weight survives later share transfers", func() {
		s.Require().NoError(s.shares.UpdateShares(context.Background(), s.holderID, 100))

		weight, err := s.service.WeightOf(context.Background(), s.meetingID, s.holderID)
		s.Require().NoError(err)
		s.Equal(int64(1_000), weight, "weight must stay at the record-date value")
	})

	s.Run("second freeze is an idempotent no-op", func() {
		err := s.service.Freeze(context.Background(), s.meetingID)
		s.Require().NoError(err)

		entries, err := s.store.List(context.Background(), s.meetingID)
		s.Require().NoError(err)
		s.Len(entries, 1, "no duplicate snapshot rows")
		// Post-transfer share count must not leak into the snapshot.
		s.Equal(int64(1_000), entries[0].Weight)
	})
}

func (s *SnapshotServiceSuite) TestFreezeFailures() {
	s.Run("unknown meeting", func() {
		err := s.service.Freeze(context.Background(), id.NewMeetingID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("record date not reached", func() {
		s.meetings.recordDate = s.now.Add(time.Hour)
		err := s.service.Freeze(context.Background(), s.meetingID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})
}

func (s *SnapshotServiceSuite) TestWeightOfWithoutSnapshot() {
	_, err := s.service.WeightOf(context.Background(), s.meetingID, s.holderID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNoSnapshot),
		"no snapshot must map to the voting-not-yet-open signal")
}

func (s *SnapshotServiceSuite) TestFreezeEmitsAuditEvent() {
	s.Require().NoError(s.service.Freeze(context.Background(), s.meetingID))

	events, err := s.auditmem.ListByMeeting(context.Background(), s.meetingID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.EventWeightsFrozen.String(), events[0].Action)
	s.Equal(audit.CategoryCompliance, events[0].Category)
}
