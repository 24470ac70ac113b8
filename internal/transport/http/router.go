// Package httptransport is the thin HTTP binding over the engine surface. It
// decodes, delegates, and encodes; no engine logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quorum/internal/engine"
)

// NewRouter wires the engine endpoints plus health and metrics.
func NewRouter(eng *engine.Engine, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	h := &Handler{engine: eng, logger: logger}
	h.Register(r)
	return r
}

// Handler holds the endpoint dependencies.
type Handler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Register mounts the engine endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/meetings", h.HandleCreateMeeting)
	r.Get("/meetings/{meetingID}", h.HandleMeetingState)
	r.Post("/meetings/{meetingID}/resolutions", h.HandleAddResolution)
	r.Post("/meetings/{meetingID}/close", h.HandleCloseMeeting)
	r.Post("/meetings/{meetingID}/archive", h.HandleArchiveMeeting)
	r.Post("/meetings/{meetingID}/votes", h.HandleCastVote)
	r.Get("/meetings/{meetingID}/resolutions/{resolutionID}/tally", h.HandleGetTally)
	r.Get("/meetings/{meetingID}/audit", h.HandleAuditTrail)
}
