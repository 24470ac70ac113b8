package meeting

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"quorum/internal/notify"
	"quorum/internal/notify/mocks"
	"quorum/internal/platform/logger"
	"quorum/internal/registry"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/audit"
	auditmem "quorum/pkg/platform/audit/store/memory"
)

type freezerStub struct {
	mu     sync.Mutex
	calls  int
	frozen map[id.MeetingID]bool
	err    error
}

func (f *freezerStub) Freeze(_ context.Context, meetingID id.MeetingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls++
	if f.frozen == nil {
		f.frozen = make(map[id.MeetingID]bool)
	}
	f.frozen[meetingID] = true
	return nil
}

type finalizerStub struct {
	calls atomic.Int64
	err   error
}

func (f *finalizerStub) Finalize(_ context.Context, _ id.MeetingID) error {
	if f.err != nil {
		return f.err
	}
	f.calls.Add(1)
	return nil
}

type registryStub struct {
	err error
}

func (r *registryStub) ListShareholders(_ context.Context, _ id.CompanyID) ([]registry.Shareholder, error) {
	return nil, r.err
}

type MeetingServiceSuite struct {
	suite.Suite
	store      *InMemoryStore
	shares     *registry.InMemoryStore
	freezer    *freezerStub
	finalizer  *finalizerStub
	dispatcher *notify.InMemoryDispatcher
	auditmem   *auditmem.InMemoryStore
	service    *Service
	companyID  id.CompanyID
	now        time.Time
}

func TestMeetingServiceSuite(t *testing.T) {
	suite.Run(t, new(MeetingServiceSuite))
}

func (s *MeetingServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.companyID = id.NewCompanyID()

	s.shares = registry.NewInMemoryStore()
	s.Require().NoError(s.shares.SaveCompany(context.Background(), registry.Company{
		ID: s.companyID, Name: "Acme Holdings", TotalShares: 10_000,
	}))
	for _, holder := range []registry.Shareholder{
		{ID: id.NewShareholderID(), CompanyID: s.companyID, Name: "A", Shares: 700,
			Verification: id.VerificationVerified, Contact: registry.ChannelEmail, Address: "a@acme.example"},
		{ID: id.NewShareholderID(), CompanyID: s.companyID, Name: "B", Shares: 300,
			Verification: id.VerificationVerified, Contact: registry.ChannelWhatsApp, Address: "+4917200000"},
	} {
		s.Require().NoError(s.shares.SaveShareholder(context.Background(), holder))
	}

	s.store = NewInMemoryStore()
	s.freezer = &freezerStub{}
	s.finalizer = &finalizerStub{}
	s.dispatcher = notify.NewInMemoryDispatcher()
	s.auditmem = auditmem.NewInMemoryStore()
	s.service = NewService(s.store, s.freezer, s.finalizer, s.dispatcher, s.shares,
		audit.NewPublisher(s.auditmem), logger.New(), nil,
		Defaults{RecordDateOffset: 3 * 24 * time.Hour, CollaboratorTimeout: time.Second},
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *MeetingServiceSuite) create(scheduledIn time.Duration) Meeting {
	meeting, err := s.service.Create(context.Background(), CreateRequest{
		CompanyID:      s.companyID,
		Title:          "Annual General Meeting",
		ScheduledAt:    s.now.Add(scheduledIn),
		NoticeWindow:   40 * 24 * time.Hour,
		VotingDuration: 4 * time.Hour,
	})
	s.Require().NoError(err)
	return meeting
}

func (s *MeetingServiceSuite) TestCreate() {
	s.Run("defaults record date from offset", func() {
		meeting := s.create(60 * 24 * time.Hour)
		s.Equal(id.MeetingNoticePending, meeting.State)
		s.False(meeting.NoticeSent)
		s.Equal(meeting.ScheduledAt.Add(-3*24*time.Hour), meeting.RecordDate)
	})

	s.Run("rejects past schedule", func() {
		_, err := s.service.Create(context.Background(), CreateRequest{
			CompanyID:      s.companyID,
			Title:          "Back-dated",
			ScheduledAt:    s.now.Add(-time.Hour),
			NoticeWindow:   40 * 24 * time.Hour,
			VotingDuration: 4 * time.Hour,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects record date after meeting date", func() {
		_, err := s.service.Create(context.Background(), CreateRequest{
			CompanyID:      s.companyID,
			Title:          "Bad record date",
			ScheduledAt:    s.now.Add(48 * time.Hour),
			RecordDate:     s.now.Add(72 * time.Hour),
			NoticeWindow:   time.Hour,
			VotingDuration: 4 * time.Hour,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *MeetingServiceSuite) TestResolutions() {
	meeting := s.create(60 * 24 * time.Hour)

	s.Run("appends in agenda order", func() {
		first, err := s.service.AddResolution(context.Background(), meeting.ID, "Approve accounts", "")
		s.Require().NoError(err)
		second, err := s.service.AddResolution(context.Background(), meeting.ID, "Elect board", "")
		s.Require().NoError(err)
		s.Equal(1, first.Position)
		s.Equal(2, second.Position)
	})

	s.Run("agenda frozen once voting opens", func() {
		s.Require().NoError(s.store.ClaimNotice(context.Background(), meeting.ID))
		s.Require().NoError(s.store.CompareAndSetState(context.Background(), meeting.ID,
			id.MeetingNoticeSent, id.MeetingVotingOpen))

		_, err := s.service.AddResolution(context.Background(), meeting.ID, "Late item", "")
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})
}

func (s *MeetingServiceSuite) TestDispatchNotice() {
	s.Run("dispatches once the window opens", func() {
		meeting := s.create(30 * 24 * time.Hour) // 40-day window already open

		s.Require().NoError(s.service.DispatchNotice(context.Background(), meeting.ID))

		status, err := s.service.Status(context.Background(), meeting.ID)
		s.Require().NoError(err)
		s.Equal(id.MeetingNoticeSent, status.State)
		s.True(status.NoticeSent)

		calls := s.dispatcher.Dispatches()
		s.Require().Len(calls, 2) // one batch per contact channel
		total := 0
		for _, call := range calls {
			total += len(call.Recipients)
		}
		s.Equal(2, total)
	})

	s.Run("too early is a state conflict", func() {
		meeting := s.create(60 * 24 * time.Hour)
		err := s.service.DispatchNotice(context.Background(), meeting.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Run("exact window boundary dispatches", func() {
		meeting := s.create(40 * 24 * time.Hour)
		s.Require().NoError(s.service.DispatchNotice(context.Background(), meeting.ID))
	})

	s.Run("one second before the boundary does not", func() {
		meeting := s.create(40*24*time.Hour + time.Second)
		err := s.service.DispatchNotice(context.Background(), meeting.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Run("second dispatch is an idempotent no-op", func() {
		meeting := s.create(30 * 24 * time.Hour)
		s.Require().NoError(s.service.DispatchNotice(context.Background(), meeting.ID))
		before := len(s.dispatcher.Dispatches())

		s.Require().NoError(s.service.DispatchNotice(context.Background(), meeting.ID))
		s.Len(s.dispatcher.Dispatches(), before)
	})

	s.Run("dispatcher failure keeps the flag and records the attempt", func() {
		meeting := s.create(30 * 24 * time.Hour)
		s.dispatcher.FailWith(errors.New("smtp down"))
		defer s.dispatcher.FailWith(nil)

		s.Require().NoError(s.service.DispatchNotice(context.Background(), meeting.ID))

		status, err := s.service.Status(context.Background(), meeting.ID)
		s.Require().NoError(err)
		s.True(status.NoticeSent)

		trail, err := audit.NewPublisher(s.auditmem).Trail(context.Background(), meeting.ID)
		s.Require().NoError(err)
		var failed int
		for _, event := range trail {
			if event.Action == audit.EventNoticeFailed.String() {
				failed++
			}
		}
		s.Equal(2, failed)
	})
}

func (s *MeetingServiceSuite) TestDispatchNoticeRegistryOutage() {
	meeting := s.create(30 * 24 * time.Hour)

	broken := NewService(s.store, s.freezer, s.finalizer, s.dispatcher,
		&registryStub{err: errors.New("registry down")},
		audit.NewPublisher(s.auditmem), logger.New(), nil,
		Defaults{RecordDateOffset: 3 * 24 * time.Hour, CollaboratorTimeout: time.Second},
		WithClock(func() time.Time { return s.now }),
	)

	err := broken.DispatchNotice(context.Background(), meeting.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	// The claim survives the failure, nothing was dispatched, and the
	// attempt is on the audit trail.
	status, statusErr := s.service.Status(context.Background(), meeting.ID)
	s.Require().NoError(statusErr)
	s.Equal(id.MeetingNoticePending, status.State)
	s.False(status.NoticeSent)
	s.Empty(s.dispatcher.Dispatches())

	trail, trailErr := audit.NewPublisher(s.auditmem).Trail(context.Background(), meeting.ID)
	s.Require().NoError(trailErr)
	var failed int
	for _, event := range trail {
		if event.Action == audit.EventNoticeFailed.String() {
			failed++
		}
	}
	s.Equal(1, failed)

	// The next sweep with a healthy registry delivers the notice.
	s.Require().NoError(s.service.DispatchNotice(context.Background(), meeting.ID))
	status, statusErr = s.service.Status(context.Background(), meeting.ID)
	s.Require().NoError(statusErr)
	s.True(status.NoticeSent)
}

func (s *MeetingServiceSuite) TestOpenVoting() {
	openable := func() Meeting {
		meeting := s.create(30 * 24 * time.Hour)
		s.Require().NoError(s.service.DispatchNotice(context.Background(), meeting.ID))
		return meeting
	}

	s.Run("freezes weights before the transition", func() {
		meeting := openable()
		s.now = meeting.RecordDate

		s.Require().NoError(s.service.OpenVoting(context.Background(), meeting.ID))
		s.True(s.freezer.frozen[meeting.ID])

		status, err := s.service.Status(context.Background(), meeting.ID)
		s.Require().NoError(err)
		s.Equal(id.MeetingVotingOpen, status.State)
	})

	s.Run("before record date is a state conflict", func() {
		meeting := openable()
		s.now = meeting.RecordDate.Add(-time.Minute)

		err := s.service.OpenVoting(context.Background(), meeting.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
		s.False(s.freezer.frozen[meeting.ID])
	})

	s.Run("freeze failure blocks the transition", func() {
		meeting := openable()
		s.now = meeting.RecordDate
		s.freezer.err = errors.New("snapshot store down")
		defer func() { s.freezer.err = nil }()

		s.Require().Error(s.service.OpenVoting(context.Background(), meeting.ID))

		status, err := s.service.Status(context.Background(), meeting.ID)
		s.Require().NoError(err)
		s.Equal(id.MeetingNoticeSent, status.State)
	})

	s.Run("without notice is a state conflict", func() {
		meeting := s.create(30 * 24 * time.Hour)
		s.now = meeting.RecordDate

		err := s.service.OpenVoting(context.Background(), meeting.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})
}

func (s *MeetingServiceSuite) TestCloseAndArchive() {
	open := func() Meeting {
		meeting := s.create(30 * 24 * time.Hour)
		s.Require().NoError(s.service.DispatchNotice(context.Background(), meeting.ID))
		s.now = meeting.RecordDate
		s.Require().NoError(s.service.OpenVoting(context.Background(), meeting.ID))
		return meeting
	}

	s.Run("close finalizes the tally", func() {
		meeting := open()
		s.Require().NoError(s.service.Close(context.Background(), meeting.ID))
		s.Equal(int64(1), s.finalizer.calls.Load())

		status, err := s.service.Status(context.Background(), meeting.ID)
		s.Require().NoError(err)
		s.Equal(id.MeetingClosed, status.State)
	})

	s.Run("close stays closed when finalization fails", func() {
		meeting := open()
		s.finalizer.err = errors.New("tally store down")
		defer func() { s.finalizer.err = nil }()

		s.Require().Error(s.service.Close(context.Background(), meeting.ID))

		status, err := s.service.Status(context.Background(), meeting.ID)
		s.Require().NoError(err)
		s.Equal(id.MeetingClosed, status.State)
	})

	s.Run("archive is terminal", func() {
		meeting := open()
		s.Require().NoError(s.service.Close(context.Background(), meeting.ID))
		s.Require().NoError(s.service.Archive(context.Background(), meeting.ID))

		status, err := s.service.Status(context.Background(), meeting.ID)
		s.Require().NoError(err)
		s.Equal(id.MeetingArchived, status.State)

		err = s.service.Archive(context.Background(), meeting.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Run("skipping states is rejected", func() {
		meeting := s.create(30 * 24 * time.Hour)
		err := s.service.Close(context.Background(), meeting.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))

		err = s.service.Archive(context.Background(), meeting.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})
}

func (s *MeetingServiceSuite) TestConcurrentNoticeDispatch() {
	meeting := s.create(30 * 24 * time.Hour)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.service.DispatchNotice(context.Background(), meeting.ID)
		}()
	}
	wg.Wait()

	// One winning claim, so one batch per channel.
	s.Len(s.dispatcher.Dispatches(), 2)
}

func (s *MeetingServiceSuite) TestDispatchNoticeRecipientBatches() {
	// A nameless email holder gets a display name derived from the address.
	s.Require().NoError(s.shares.SaveShareholder(context.Background(), registry.Shareholder{
		ID: id.NewShareholderID(), CompanyID: s.companyID, Shares: 100,
		Verification: id.VerificationVerified, Contact: registry.ChannelEmail,
		Address: "jane.doe@acme.example",
	}))

	ctrl := gomock.NewController(s.T())
	dispatcher := mocks.NewMockDispatcher(ctrl)

	service := NewService(s.store, s.freezer, s.finalizer, dispatcher, s.shares,
		audit.NewPublisher(s.auditmem), logger.New(), nil,
		Defaults{RecordDateOffset: 3 * 24 * time.Hour, CollaboratorTimeout: time.Second},
		WithClock(func() time.Time { return s.now }),
	)
	meeting := s.create(30 * 24 * time.Hour)

	batches := make(map[string][]notify.Recipient)
	dispatcher.EXPECT().
		Dispatch(gomock.Any(), meeting.ID, "email", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.MeetingID, channel string, recipients []notify.Recipient) error {
			batches[channel] = recipients
			return nil
		})
	dispatcher.EXPECT().
		Dispatch(gomock.Any(), meeting.ID, "whatsapp", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.MeetingID, channel string, recipients []notify.Recipient) error {
			batches[channel] = recipients
			return nil
		})

	s.Require().NoError(service.DispatchNotice(context.Background(), meeting.ID))

	s.Require().Len(batches["email"], 2)
	s.Require().Len(batches["whatsapp"], 1)

	names := make(map[string]string)
	for _, r := range batches["email"] {
		names[r.Contact] = r.Name
	}
	s.Equal("A", names["a@acme.example"])
	s.Equal("Jane Doe", names["jane.doe@acme.example"])
}
