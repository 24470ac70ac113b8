package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/httputil"
)

type createMeetingRequest struct {
	CompanyID        string `json:"company_id"`
	Title            string `json:"title"`
	ScheduledAt      string `json:"scheduled_at"`
	NoticeWindowDays int    `json:"notice_window_days"`
	VotingDurationS  int    `json:"voting_duration_seconds"`
}

type createMeetingResponse struct {
	MeetingID string `json:"meeting_id"`
}

// HandleCreateMeeting handles POST /meetings.
func (h *Handler) HandleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[createMeetingRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	companyID, err := id.ParseCompanyID(req.CompanyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "scheduled_at must be RFC 3339"))
		return
	}

	meetingID, err := h.engine.CreateMeeting(ctx, companyID, req.Title, scheduledAt,
		time.Duration(req.NoticeWindowDays)*24*time.Hour,
		time.Duration(req.VotingDurationS)*time.Second)
	if err != nil {
		h.logger.ErrorContext(ctx, "create meeting failed",
			"request_id", middleware.GetReqID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createMeetingResponse{MeetingID: meetingID.String()})
}

type meetingStateResponse struct {
	State      string    `json:"state"`
	NoticeSent bool      `json:"notice_sent"`
	RecordDate time.Time `json:"record_date"`
}

// HandleMeetingState handles GET /meetings/{meetingID}.
func (h *Handler) HandleMeetingState(w http.ResponseWriter, r *http.Request) {
	meetingID, err := id.ParseMeetingID(chi.URLParam(r, "meetingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := h.engine.ListMeetingState(r.Context(), meetingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meetingStateResponse{
		State:      status.State.String(),
		NoticeSent: status.NoticeSent,
		RecordDate: status.RecordDate,
	})
}

type addResolutionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type addResolutionResponse struct {
	ResolutionID string `json:"resolution_id"`
	Position     int    `json:"position"`
}

// HandleAddResolution handles POST /meetings/{meetingID}/resolutions.
func (h *Handler) HandleAddResolution(w http.ResponseWriter, r *http.Request) {
	meetingID, err := id.ParseMeetingID(chi.URLParam(r, "meetingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[addResolutionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resolution, err := h.engine.AddResolution(r.Context(), meetingID, req.Title, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, addResolutionResponse{
		ResolutionID: resolution.ID.String(),
		Position:     resolution.Position,
	})
}

// HandleCloseMeeting handles POST /meetings/{meetingID}/close.
func (h *Handler) HandleCloseMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := id.ParseMeetingID(chi.URLParam(r, "meetingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.engine.CloseMeeting(r.Context(), meetingID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleArchiveMeeting handles POST /meetings/{meetingID}/archive.
func (h *Handler) HandleArchiveMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := id.ParseMeetingID(chi.URLParam(r, "meetingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.engine.ArchiveMeeting(r.Context(), meetingID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
