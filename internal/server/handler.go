package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/trustgate/trustgate/internal/advisor"
	"github.com/trustgate/trustgate/internal/upstream"
)

// AdviseHandler processes POST /v1/advise requests through the full
// sanitize / upstream / gate / validate pipeline.
type AdviseHandler struct {
	advisor *advisor.Advisor
	logger  *slog.Logger
}

// NewAdviseHandler creates the advise endpoint handler.
func NewAdviseHandler(a *advisor.Advisor, logger *slog.Logger) *AdviseHandler {
	return &AdviseHandler{advisor: a, logger: logger}
}

// ServeHTTP handles POST /v1/advise.
func (h *AdviseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req advisor.AdviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	if req.FindingID == "" || req.Entity.ID == "" || req.Entity.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "finding_id, entity.id, and entity.type are required",
		})
		return
	}

	resp, err := h.advisor.Advise(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeError maps pipeline errors onto HTTP statuses. Error bodies carry
// no upstream detail beyond what the sanitized error message already
// allows through.
func (h *AdviseHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var unsafeErr *advisor.UnsafeInputError
	switch {
	case errors.As(err, &unsafeErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "request rejected by input sanitization",
			"findings": unsafeErr.Findings,
		})
	case errors.Is(err, upstream.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, advisor.ErrInvalidOutput):
		h.logger.Error("advise produced invalid output", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream produced an invalid response"})
	default:
		h.logger.Error("advise failed", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Header already sent so the status code cannot change.
		slog.Default().Error("writeJSON: encode failed", "error", err)
	}
}
