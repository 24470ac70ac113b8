package voting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quorum/internal/meeting"
	"quorum/internal/platform/metrics"
	"quorum/internal/signature"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/audit"
	"quorum/pkg/platform/sentinel"
)

// MeetingGate is the slice of the meeting service the ledger consults before
// accepting a ballot.
type MeetingGate interface {
	Status(ctx context.Context, meetingID id.MeetingID) (meeting.Status, error)
	Resolutions(ctx context.Context, meetingID id.MeetingID) ([]meeting.Resolution, error)
}

// Weights resolves the frozen voting weight. Implemented by the snapshot
// service.
type Weights interface {
	WeightOf(ctx context.Context, meetingID id.MeetingID, shareholderID id.ShareholderID) (int64, error)
}

// Service accepts ballots. Each cast runs the full admission pipeline: state
// gate, frozen weight lookup, identity assertion, content-binding proof,
// replay check, then the single atomic ledger write. A cast cancelled before
// that write leaves no row.
type Service struct {
	store    Store
	meetings MeetingGate
	weights  Weights
	verifier signature.Verifier
	replay   signature.ReplayIndex
	auditor  *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	policy   id.RevotePolicy
	timeout  time.Duration
	clock    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewService(store Store, meetings MeetingGate, weights Weights,
	verifier signature.Verifier, replay signature.ReplayIndex,
	auditor *audit.Publisher, logger *slog.Logger, m *metrics.Metrics,
	policy id.RevotePolicy, collaboratorTimeout time.Duration, opts ...Option) *Service {
	s := &Service{
		store:    store,
		meetings: meetings,
		weights:  weights,
		verifier: verifier,
		replay:   replay,
		auditor:  auditor,
		logger:   logger,
		metrics:  m,
		policy:   policy,
		timeout:  collaboratorTimeout,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CastRequest carries one ballot.
type CastRequest struct {
	MeetingID      id.MeetingID
	ShareholderID  id.ShareholderID
	ResolutionID   id.ResolutionID
	Choice         id.VoteChoice
	AssertionToken string
}

// Cast admits one ballot. Every rejection carries a specific code so the
// caller can distinguish "not yet open" from "already voted" from "identity
// rejected".
func (s *Service) Cast(ctx context.Context, req CastRequest) (Receipt, error) {
	status, err := s.meetings.Status(ctx, req.MeetingID)
	if err != nil {
		return Receipt{}, err
	}
	if status.State != id.MeetingVotingOpen {
		return Receipt{}, s.reject(ctx, req, audit.EventVoteRejected, "",
			dErrors.Newf(dErrors.CodeVotingNotOpen, "meeting is %s", status.State))
	}

	if err := s.checkResolution(ctx, req); err != nil {
		return Receipt{}, err
	}

	weight, err := s.weights.WeightOf(ctx, req.MeetingID, req.ShareholderID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNoSnapshot) {
			return Receipt{}, s.reject(ctx, req, audit.EventVoteRejected, "", err)
		}
		return Receipt{}, err
	}

	// The identity collaborator may block on external I/O; bound it and hold
	// no locks across the call. Timeouts surface as retryable without any
	// internal retry, so a double submission is always caller-initiated.
	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	assertion, err := s.verifier.Verify(verifyCtx, req.ShareholderID, req.AssertionToken)
	cancel()
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeIdentityRejected) {
			return Receipt{}, s.reject(ctx, req, audit.EventIdentityRejected, "", err)
		}
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity assertion service unavailable")
	}

	now := s.clock()
	payload := signature.BallotPayload{
		MeetingID:     req.MeetingID,
		ShareholderID: req.ShareholderID,
		ResolutionID:  req.ResolutionID,
		Choice:        req.Choice,
		Weight:        weight,
		CastAt:        now,
	}
	proof := signature.Sign(payload, assertion)

	if err := s.replay.Register(ctx, proof.Digest); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return Receipt{}, s.reject(ctx, req, audit.EventProofReplayed, proof.Digest,
				dErrors.New(dErrors.CodeReplayedProof, "signature proof already used"))
		}
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "replay index unavailable")
	}

	vote := Vote{
		ID:            id.NewVoteID(),
		MeetingID:     req.MeetingID,
		ShareholderID: req.ShareholderID,
		ResolutionID:  req.ResolutionID,
		Choice:        req.Choice,
		Weight:        weight,
		Proof:         proof,
		CastAt:        now,
	}
	prior, err := s.store.Record(ctx, vote, s.policy == id.RevoteSupersede)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrConflict):
		return Receipt{}, s.reject(ctx, req, audit.EventVoteRejected, proof.Digest,
			dErrors.New(dErrors.CodeStateConflict, "ballot already cast and corrections are disabled"))
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return Receipt{}, s.reject(ctx, req, audit.EventProofReplayed, proof.Digest,
			dErrors.New(dErrors.CodeReplayedProof, "signature proof already bound to a vote"))
	default:
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
	}

	event := audit.Event{
		MeetingID:     req.MeetingID,
		ShareholderID: req.ShareholderID,
		ResolutionID:  req.ResolutionID,
		Action:        audit.EventVoteCast.String(),
		Decision:      "accepted",
		ProofDigest:   proof.Digest,
		Timestamp:     now,
	}
	if prior != nil {
		// Corrections retain both timestamps for audit.
		event.Action = audit.EventVoteCorrected.String()
		event.SupersededAt = prior.CastAt
		s.metrics.IncVoteCorrections()
	}
	s.audit(ctx, event)
	s.metrics.IncVotesCast()
	s.logger.Info("vote recorded",
		"meeting_id", req.MeetingID.String(),
		"resolution_id", req.ResolutionID.String(),
		"corrected", prior != nil,
	)

	return Receipt{
		VoteID:      vote.ID,
		ProofDigest: proof.Digest,
		CastAt:      now,
		Corrected:   prior != nil,
	}, nil
}

// Ledger returns the full vote ledger including superseded rows.
func (s *Service) Ledger(ctx context.Context, meetingID id.MeetingID) ([]Vote, error) {
	votes, err := s.store.ListLedger(ctx, meetingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ledger")
	}
	return votes, nil
}

func (s *Service) checkResolution(ctx context.Context, req CastRequest) error {
	resolutions, err := s.meetings.Resolutions(ctx, req.MeetingID)
	if err != nil {
		return err
	}
	for _, resolution := range resolutions {
		if resolution.ID == req.ResolutionID {
			return nil
		}
	}
	return s.reject(ctx, req, audit.EventVoteRejected, "",
		dErrors.New(dErrors.CodeNotFound, "resolution not on the meeting agenda"))
}

// reject records the rejection for audit and metrics and returns the coded
// error unchanged.
func (s *Service) reject(ctx context.Context, req CastRequest, action audit.AuditEvent, digest string, cause error) error {
	reason := string(dErrors.CodeOf(cause))
	s.metrics.IncVotesRejected(reason)
	if action == audit.EventProofReplayed {
		s.metrics.IncReplayRejections()
	}
	s.audit(ctx, audit.Event{
		MeetingID:     req.MeetingID,
		ShareholderID: req.ShareholderID,
		ResolutionID:  req.ResolutionID,
		Action:        action.String(),
		Decision:      "rejected",
		Reason:        dErrors.ReasonOf(cause),
		ProofDigest:   digest,
		Timestamp:     s.clock(),
	})
	return cause
}

func (s *Service) audit(ctx context.Context, event audit.Event) {
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Error("failed to emit audit event", "error", err, "action", event.Action)
	}
}
