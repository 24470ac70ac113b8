package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/httputil"
)

type tallyResponse struct {
	MeetingID    string    `json:"meeting_id"`
	ResolutionID string    `json:"resolution_id"`
	Yes          int64     `json:"yes_weight"`
	No           int64     `json:"no_weight"`
	Abstain      int64     `json:"abstain_weight"`
	TotalWeight  int64     `json:"total_voting_weight"`
	FinalizedAt  time.Time `json:"finalized_at"`
}

// HandleGetTally handles GET /meetings/{meetingID}/resolutions/{resolutionID}/tally.
func (h *Handler) HandleGetTally(w http.ResponseWriter, r *http.Request) {
	meetingID, err := id.ParseMeetingID(chi.URLParam(r, "meetingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resolutionID, err := id.ParseResolutionID(chi.URLParam(r, "resolutionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.engine.GetTally(r.Context(), meetingID, resolutionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// Turnout is only meaningful against the frozen total, so the response
	// carries both.
	totalWeight, err := h.engine.TotalVotingWeight(r.Context(), meetingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tallyResponse{
		MeetingID:    result.MeetingID.String(),
		ResolutionID: result.ResolutionID.String(),
		Yes:          result.Yes,
		No:           result.No,
		Abstain:      result.Abstain,
		TotalWeight:  totalWeight,
		FinalizedAt:  result.FinalizedAt,
	})
}

type auditEventResponse struct {
	Category      string    `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	Decision      string    `json:"decision,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	ShareholderID string    `json:"shareholder_id,omitempty"`
	ResolutionID  string    `json:"resolution_id,omitempty"`
	ProofDigest   string    `json:"proof_digest,omitempty"`
	SupersededAt  time.Time `json:"superseded_at,omitzero"`
	Channel       string    `json:"channel,omitempty"`
	Recipients    int       `json:"recipient_count,omitempty"`
}

// HandleAuditTrail handles GET /meetings/{meetingID}/audit.
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	meetingID, err := id.ParseMeetingID(chi.URLParam(r, "meetingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	trail, err := h.engine.AuditTrail(r.Context(), meetingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]auditEventResponse, 0, len(trail))
	for _, event := range trail {
		entry := auditEventResponse{
			Category:     string(event.Category),
			Timestamp:    event.Timestamp,
			Action:       event.Action,
			Decision:     event.Decision,
			Reason:       event.Reason,
			ProofDigest:  event.ProofDigest,
			SupersededAt: event.SupersededAt,
			Channel:      event.Channel,
			Recipients:   event.RecipientCount,
		}
		if !event.ShareholderID.IsNil() {
			entry.ShareholderID = event.ShareholderID.String()
		}
		if !event.ResolutionID.IsNil() {
			entry.ResolutionID = event.ResolutionID.String()
		}
		out = append(out, entry)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
