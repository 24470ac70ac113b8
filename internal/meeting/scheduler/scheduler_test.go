package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quorum/internal/meeting"
	"quorum/internal/notify"
	"quorum/internal/platform/logger"
	"quorum/internal/registry"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/audit"
	auditmem "quorum/pkg/platform/audit/store/memory"
)

type freezerStub struct{}

func (freezerStub) Freeze(_ context.Context, _ id.MeetingID) error { return nil }

type finalizerStub struct {
	mu    sync.Mutex
	calls int
}

func (f *finalizerStub) Finalize(_ context.Context, _ id.MeetingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *finalizerStub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type SchedulerSuite struct {
	suite.Suite
	store      *meeting.InMemoryStore
	dispatcher *notify.InMemoryDispatcher
	finalizer  *finalizerStub
	service    *meeting.Service
	scheduler  *Scheduler
	companyID  id.CompanyID
	now        time.Time
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.now = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s.companyID = id.NewCompanyID()

	shares := registry.NewInMemoryStore()
	s.Require().NoError(shares.SaveCompany(context.Background(), registry.Company{
		ID: s.companyID, Name: "Acme Holdings", TotalShares: 1_000,
	}))
	s.Require().NoError(shares.SaveShareholder(context.Background(), registry.Shareholder{
		ID: id.NewShareholderID(), CompanyID: s.companyID, Name: "A", Shares: 1_000,
		Verification: id.VerificationVerified, Contact: registry.ChannelEmail, Address: "a@acme.example",
	}))

	s.store = meeting.NewInMemoryStore()
	s.dispatcher = notify.NewInMemoryDispatcher()
	s.finalizer = &finalizerStub{}
	clock := func() time.Time { return s.now }

	s.service = meeting.NewService(s.store, freezerStub{}, s.finalizer, s.dispatcher, shares,
		audit.NewPublisher(auditmem.NewInMemoryStore()), logger.New(), nil,
		meeting.Defaults{RecordDateOffset: 3 * 24 * time.Hour, CollaboratorTimeout: time.Second},
		meeting.WithClock(clock),
	)
	s.scheduler = New(s.service, s.store, logger.New(), nil, time.Minute,
		WithClock(clock), WithWorkers(4))
}

func (s *SchedulerSuite) schedule(lead time.Duration) meeting.Meeting {
	m, err := s.service.Create(context.Background(), meeting.CreateRequest{
		CompanyID:      s.companyID,
		Title:          "Annual General Meeting",
		ScheduledAt:    s.now.Add(lead),
		NoticeWindow:   40 * 24 * time.Hour,
		VotingDuration: 4 * time.Hour,
	})
	s.Require().NoError(err)
	return m
}

func (s *SchedulerSuite) state(meetingID id.MeetingID) id.MeetingState {
	status, err := s.service.Status(context.Background(), meetingID)
	s.Require().NoError(err)
	return status.State
}

func (s *SchedulerSuite) TestSweepDrivesLifecycle() {
	m := s.schedule(41 * 24 * time.Hour)

	s.Run("before the notice window nothing fires", func() {
		s.Require().NoError(s.scheduler.Sweep(context.Background()))
		s.Equal(id.MeetingNoticePending, s.state(m.ID))
		s.Empty(s.dispatcher.Dispatches())
	})

	s.Run("one second before the boundary still pending", func() {
		s.now = m.ScheduledAt.Add(-40*24*time.Hour - time.Second)
		s.Require().NoError(s.scheduler.Sweep(context.Background()))
		s.Equal(id.MeetingNoticePending, s.state(m.ID))
	})

	s.Run("at the boundary the notice fires", func() {
		s.now = m.ScheduledAt.Add(-40 * 24 * time.Hour)
		s.Require().NoError(s.scheduler.Sweep(context.Background()))
		s.Equal(id.MeetingNoticeSent, s.state(m.ID))
		s.Len(s.dispatcher.Dispatches(), 1)
	})

	s.Run("at the record date voting opens", func() {
		s.now = m.RecordDate
		s.Require().NoError(s.scheduler.Sweep(context.Background()))
		s.Equal(id.MeetingVotingOpen, s.state(m.ID))
	})

	s.Run("after the voting window the meeting closes", func() {
		s.now = m.ScheduledAt.Add(4 * time.Hour)
		s.Require().NoError(s.scheduler.Sweep(context.Background()))
		s.Equal(id.MeetingClosed, s.state(m.ID))
		s.Equal(1, s.finalizer.count())
	})

	s.Run("closed meetings are re-finalized each sweep", func() {
		s.Require().NoError(s.scheduler.Sweep(context.Background()))
		s.Equal(2, s.finalizer.count())
		s.Equal(id.MeetingClosed, s.state(m.ID))
	})
}

func (s *SchedulerSuite) TestConcurrentSweepsFireNoticeOnce() {
	m := s.schedule(30 * 24 * time.Hour) // window already open

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.scheduler.Sweep(context.Background()))
		}()
	}
	wg.Wait()

	s.Equal(id.MeetingNoticeSent, s.state(m.ID))
	s.Len(s.dispatcher.Dispatches(), 1)
}

func (s *SchedulerSuite) TestSweepSkipsArchived() {
	m := s.schedule(30 * 24 * time.Hour)
	s.Require().NoError(s.service.DispatchNotice(context.Background(), m.ID))
	s.now = m.RecordDate
	s.Require().NoError(s.service.OpenVoting(context.Background(), m.ID))
	s.Require().NoError(s.service.Close(context.Background(), m.ID))
	s.Require().NoError(s.service.Archive(context.Background(), m.ID))

	before := s.finalizer.count()
	s.Require().NoError(s.scheduler.Sweep(context.Background()))
	s.Equal(before, s.finalizer.count())
	s.Equal(id.MeetingArchived, s.state(m.ID))
}
