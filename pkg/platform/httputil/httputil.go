// Package httputil centralizes JSON encoding and domain error translation for
// the HTTP binding so every endpoint returns the same envelope.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "quorum/pkg/domain-errors"
)

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Decode parses a JSON request body into T.
func Decode[T any](r *http.Request) (T, error) {
	var out T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed request body")
	}
	return out, nil
}

// WriteError translates a coded domain error into an HTTP response. Internal
// errors omit the reason so infrastructure detail never leaks to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		body["error_description"] = dErrors.ReasonOf(err)
	}
	WriteJSON(w, statusOf(code), body)
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeNotFound, dErrors.CodeNotFinalized:
		return http.StatusNotFound
	case dErrors.CodeStateConflict, dErrors.CodeVotingNotOpen,
		dErrors.CodeNoSnapshot, dErrors.CodeReplayedProof, dErrors.CodePayloadMismatch:
		return http.StatusConflict
	case dErrors.CodeIdentityRejected:
		return http.StatusUnauthorized
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
