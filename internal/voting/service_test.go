package voting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"quorum/internal/meeting"
	"quorum/internal/platform/logger"
	"quorum/internal/signature"
	sigmocks "quorum/internal/signature/mocks"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/audit"
	auditmem "quorum/pkg/platform/audit/store/memory"
)

type meetingGateStub struct {
	state       id.MeetingState
	resolutions []meeting.Resolution
}

func (g *meetingGateStub) Status(_ context.Context, _ id.MeetingID) (meeting.Status, error) {
	return meeting.Status{State: g.state}, nil
}

func (g *meetingGateStub) Resolutions(_ context.Context, _ id.MeetingID) ([]meeting.Resolution, error) {
	return g.resolutions, nil
}

type weightsStub struct {
	weights map[id.ShareholderID]int64
}

func (w *weightsStub) WeightOf(_ context.Context, _ id.MeetingID, shareholderID id.ShareholderID) (int64, error) {
	weight, ok := w.weights[shareholderID]
	if !ok {
		return 0, dErrors.New(dErrors.CodeNoSnapshot, "no weight snapshot captured")
	}
	return weight, nil
}

type VotingServiceSuite struct {
	suite.Suite
	store        *InMemoryStore
	gate         *meetingGateStub
	weights      *weightsStub
	verifier     *signature.StaticVerifier
	auditmem     *auditmem.InMemoryStore
	service      *Service
	meetingID    id.MeetingID
	resolutionID id.ResolutionID
	holderA      id.ShareholderID
	holderB      id.ShareholderID
	now          time.Time
}

func TestVotingServiceSuite(t *testing.T) {
	suite.Run(t, new(VotingServiceSuite))
}

func (s *VotingServiceSuite) SetupTest() {
	s.now = time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC)
	s.meetingID = id.NewMeetingID()
	s.resolutionID = id.NewResolutionID()
	s.holderA = id.NewShareholderID()
	s.holderB = id.NewShareholderID()

	s.gate = &meetingGateStub{
		state: id.MeetingVotingOpen,
		resolutions: []meeting.Resolution{
			{ID: s.resolutionID, MeetingID: s.meetingID, Title: "Approve accounts", Position: 1},
		},
	}
	s.weights = &weightsStub{weights: map[id.ShareholderID]int64{
		s.holderA: 700,
		s.holderB: 300,
	}}
	s.verifier = signature.NewStaticVerifier()
	s.verifier.Accept("token-a", s.holderA)
	s.verifier.Accept("token-b", s.holderB)

	s.store = NewInMemoryStore()
	s.auditmem = auditmem.NewInMemoryStore()
	s.service = s.newService(id.RevoteSupersede)
}

func (s *VotingServiceSuite) newService(policy id.RevotePolicy) *Service {
	return NewService(s.store, s.gate, s.weights, s.verifier,
		signature.NewInMemoryReplayIndex(), audit.NewPublisher(s.auditmem),
		logger.New(), nil, policy, time.Second,
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *VotingServiceSuite) cast(holder id.ShareholderID, token string, choice id.VoteChoice) (Receipt, error) {
	return s.service.Cast(context.Background(), CastRequest{
		MeetingID:      s.meetingID,
		ShareholderID:  holder,
		ResolutionID:   s.resolutionID,
		Choice:         choice,
		AssertionToken: token,
	})
}

func (s *VotingServiceSuite) TestCast() {
	s.Run("accepted ballot carries the frozen weight", func() {
		receipt, err := s.cast(s.holderA, "token-a", id.ChoiceYes)
		s.Require().NoError(err)
		s.False(receipt.Corrected)
		s.NotEmpty(receipt.ProofDigest)

		vote, err := s.store.FindActive(context.Background(), s.meetingID, s.holderA, s.resolutionID)
		s.Require().NoError(err)
		s.Equal(int64(700), vote.Weight)
		s.Equal(id.ChoiceYes, vote.Choice)
	})

	s.Run("voting not open", func() {
		s.gate.state = id.MeetingNoticeSent
		defer func() { s.gate.state = id.MeetingVotingOpen }()

		_, err := s.cast(s.holderB, "token-b", id.ChoiceNo)
		s.True(dErrors.HasCode(err, dErrors.CodeVotingNotOpen))
	})

	s.Run("closed meeting rejects too", func() {
		s.gate.state = id.MeetingClosed
		defer func() { s.gate.state = id.MeetingVotingOpen }()

		_, err := s.cast(s.holderB, "token-b", id.ChoiceNo)
		s.True(dErrors.HasCode(err, dErrors.CodeVotingNotOpen))
	})

	s.Run("unknown resolution", func() {
		_, err := s.service.Cast(context.Background(), CastRequest{
			MeetingID:      s.meetingID,
			ShareholderID:  s.holderB,
			ResolutionID:   id.NewResolutionID(),
			Choice:         id.ChoiceNo,
			AssertionToken: "token-b",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("no snapshot weight", func() {
		stranger := id.NewShareholderID()
		s.verifier.Accept("token-s", stranger)
		_, err := s.cast(stranger, "token-s", id.ChoiceAbstain)
		s.True(dErrors.HasCode(err, dErrors.CodeNoSnapshot))
	})

	s.Run("identity rejected leaves no row", func() {
		_, err := s.cast(s.holderB, "wrong-token", id.ChoiceNo)
		s.True(dErrors.HasCode(err, dErrors.CodeIdentityRejected))

		_, err = s.store.FindActive(context.Background(), s.meetingID, s.holderB, s.resolutionID)
		s.Error(err)
	})
}

func (s *VotingServiceSuite) TestCorrections() {
	s.Run("re-vote supersedes and keeps both timestamps", func() {
		first, err := s.cast(s.holderA, "token-a", id.ChoiceYes)
		s.Require().NoError(err)

		s.now = s.now.Add(10 * time.Minute)
		second, err := s.cast(s.holderA, "token-a", id.ChoiceNo)
		s.Require().NoError(err)
		s.True(second.Corrected)

		ledger, err := s.service.Ledger(context.Background(), s.meetingID)
		s.Require().NoError(err)
		s.Require().Len(ledger, 2)
		s.True(ledger[0].Superseded)
		s.Equal(first.CastAt, ledger[0].CastAt)
		s.Equal(second.CastAt, ledger[0].SupersededAt)
		s.False(ledger[1].Superseded)

		active, err := s.store.ListActive(context.Background(), s.meetingID)
		s.Require().NoError(err)
		s.Require().Len(active, 1)
		s.Equal(id.ChoiceNo, active[0].Choice)

		trail, err := audit.NewPublisher(s.auditmem).Trail(context.Background(), s.meetingID)
		s.Require().NoError(err)
		last := trail[len(trail)-1]
		s.Equal(audit.EventVoteCorrected.String(), last.Action)
		s.Equal(first.CastAt, last.SupersededAt)
	})

	s.Run("one-shot policy rejects the second ballot", func() {
		oneShot := s.newService(id.RevoteOneShot)
		_, err := oneShot.Cast(context.Background(), CastRequest{
			MeetingID:      s.meetingID,
			ShareholderID:  s.holderB,
			ResolutionID:   s.resolutionID,
			Choice:         id.ChoiceNo,
			AssertionToken: "token-b",
		})
		s.Require().NoError(err)

		s.now = s.now.Add(time.Minute)
		_, err = oneShot.Cast(context.Background(), CastRequest{
			MeetingID:      s.meetingID,
			ShareholderID:  s.holderB,
			ResolutionID:   s.resolutionID,
			Choice:         id.ChoiceYes,
			AssertionToken: "token-b",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})
}

func (s *VotingServiceSuite) TestReplayRejection() {
	// Identical payload and assertion at the same instant produce the same
	// digest; the second submission must be rejected as a replay.
	_, err := s.cast(s.holderA, "token-a", id.ChoiceYes)
	s.Require().NoError(err)

	_, err = s.cast(s.holderA, "token-a", id.ChoiceYes)
	s.True(dErrors.HasCode(err, dErrors.CodeReplayedProof))

	trail, err := audit.NewPublisher(s.auditmem).Trail(context.Background(), s.meetingID)
	s.Require().NoError(err)
	last := trail[len(trail)-1]
	s.Equal(audit.EventProofReplayed.String(), last.Action)
	s.Equal(audit.CategorySecurity, last.Category)
}

func (s *VotingServiceSuite) TestVerifierOutageFailsCast() {
	ctrl := gomock.NewController(s.T())
	verifier := sigmocks.NewMockVerifier(ctrl)
	verifier.EXPECT().
		Verify(gomock.Any(), s.holderA, "token-a").
		Return(signature.Assertion{}, dErrors.New(dErrors.CodeUnavailable, "identity provider unavailable"))

	service := NewService(s.store, s.gate, s.weights, verifier,
		signature.NewInMemoryReplayIndex(), audit.NewPublisher(s.auditmem),
		logger.New(), nil, id.RevoteSupersede, time.Second,
		WithClock(func() time.Time { return s.now }),
	)

	_, err := service.Cast(context.Background(), CastRequest{
		MeetingID:      s.meetingID,
		ShareholderID:  s.holderA,
		ResolutionID:   s.resolutionID,
		Choice:         id.ChoiceYes,
		AssertionToken: "token-a",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// No ballot may be recorded on an unverified identity.
	_, err = s.store.FindActive(context.Background(), s.meetingID, s.holderA, s.resolutionID)
	s.Error(err)
}
