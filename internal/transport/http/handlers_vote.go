package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quorum/internal/voting"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/httputil"
)

type castVoteRequest struct {
	ShareholderID  string `json:"shareholder_id"`
	ResolutionID   string `json:"resolution_id"`
	Choice         string `json:"choice"`
	AssertionToken string `json:"assertion_token"`
}

type castVoteResponse struct {
	VoteID      string    `json:"vote_id"`
	ProofDigest string    `json:"proof_digest"`
	CastAt      time.Time `json:"cast_at"`
	Corrected   bool      `json:"corrected"`
}

// HandleCastVote handles POST /meetings/{meetingID}/votes.
func (h *Handler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meetingID, err := id.ParseMeetingID(chi.URLParam(r, "meetingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[castVoteRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	shareholderID, err := id.ParseShareholderID(req.ShareholderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resolutionID, err := id.ParseResolutionID(req.ResolutionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	choice, err := id.ParseVoteChoice(req.Choice)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.engine.CastVote(ctx, voting.CastRequest{
		MeetingID:      meetingID,
		ShareholderID:  shareholderID,
		ResolutionID:   resolutionID,
		Choice:         choice,
		AssertionToken: req.AssertionToken,
	})
	if err != nil {
		h.logger.InfoContext(ctx, "vote rejected",
			"request_id", middleware.GetReqID(ctx),
			"meeting_id", meetingID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, castVoteResponse{
		VoteID:      receipt.VoteID.String(),
		ProofDigest: receipt.ProofDigest,
		CastAt:      receipt.CastAt,
		Corrected:   receipt.Corrected,
	})
}
