//go:build integration

package meeting_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quorum/internal/meeting"
	"quorum/internal/registry"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
	"quorum/pkg/testutil/containers"
)

type MeetingPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *meeting.PostgresStore

	companyID id.CompanyID
}

func TestMeetingPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(MeetingPostgresSuite))
}

func (s *MeetingPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = meeting.NewPostgresStore(s.postgres.DB)
}

func (s *MeetingPostgresSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "resolutions", "meetings", "companies")
	s.Require().NoError(err)

	companies := registry.NewPostgresStore(s.postgres.DB)
	s.companyID = id.NewCompanyID()
	s.Require().NoError(companies.SaveCompany(ctx, registry.Company{
		ID:          s.companyID,
		Name:        "Integration Test Corp",
		TotalShares: 1000,
	}))
}

func (s *MeetingPostgresSuite) createMeeting(state id.MeetingState) id.MeetingID {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	meetingID := id.NewMeetingID()
	s.Require().NoError(s.store.Create(ctx, meeting.Meeting{
		ID:             meetingID,
		CompanyID:      s.companyID,
		Title:          "Annual General Meeting",
		ScheduledAt:    now.Add(41 * 24 * time.Hour),
		RecordDate:     now.Add(13 * 24 * time.Hour),
		NoticeWindow:   40 * 24 * time.Hour,
		VotingDuration: 4 * time.Hour,
		State:          state,
		CreatedAt:      now,
	}))
	return meetingID
}

// TestConcurrentClaimNotice verifies the fused notice-flag and state
// compare-and-set: concurrent sweeps claim the notice exactly once.
func (s *MeetingPostgresSuite) TestConcurrentClaimNotice() {
	ctx := context.Background()
	meetingID := s.createMeeting(id.MeetingNoticePending)
	const goroutines = 10

	var wg sync.WaitGroup
	var claimedCount, usedCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.ClaimNotice(ctx, meetingID)
			switch {
			case err == nil:
				claimedCount.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				usedCount.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), claimedCount.Load())
	s.Equal(int32(goroutines-1), usedCount.Load())

	found, err := s.store.FindByID(ctx, meetingID)
	s.Require().NoError(err)
	s.True(found.NoticeSent)
	s.Equal(id.MeetingNoticeSent, found.State)
}

func (s *MeetingPostgresSuite) TestCompareAndSetState() {
	ctx := context.Background()
	meetingID := s.createMeeting(id.MeetingNoticeSent)

	err := s.store.CompareAndSetState(ctx, meetingID, id.MeetingVotingOpen, id.MeetingClosed)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	s.Require().NoError(s.store.CompareAndSetState(ctx, meetingID,
		id.MeetingNoticeSent, id.MeetingVotingOpen))

	found, err := s.store.FindByID(ctx, meetingID)
	s.Require().NoError(err)
	s.Equal(id.MeetingVotingOpen, found.State)

	err = s.store.CompareAndSetState(ctx, id.NewMeetingID(), id.MeetingNoticeSent, id.MeetingVotingOpen)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MeetingPostgresSuite) TestListInStates() {
	ctx := context.Background()
	pending := s.createMeeting(id.MeetingNoticePending)
	open := s.createMeeting(id.MeetingVotingOpen)
	s.createMeeting(id.MeetingArchived)

	meetings, err := s.store.ListInStates(ctx, id.MeetingNoticePending, id.MeetingVotingOpen)
	s.Require().NoError(err)
	s.Require().Len(meetings, 2)

	ids := map[id.MeetingID]bool{}
	for _, m := range meetings {
		ids[m.ID] = true
	}
	s.True(ids[pending])
	s.True(ids[open])
}
