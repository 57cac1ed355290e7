package api

import (
	"bytes"
	"image/jpeg"
	"net/http"
	"strconv"
)

// StateHandler serves the flow projection.
type StateHandler struct {
	s *Server
}

// NewStateHandler creates a new state handler.
func NewStateHandler(s *Server) *StateHandler {
	return &StateHandler{s: s}
}

// HandleState handles GET /state requests.
func (h *StateHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.s.view(r))
}

// HandleOutcomeImage handles GET /outcome/image requests. It answers 404
// unless results with an image are being shown.
func (h *StateHandler) HandleOutcomeImage(w http.ResponseWriter, r *http.Request) {
	const op = "api.outcome_image"
	snap := h.s.deps.Snapshot()
	if snap.Outcome == nil || snap.Outcome.Image == nil {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, snap.Outcome.Image, &jpeg.Options{Quality: h.s.jpegQuality}); err != nil {
		h.s.writeFlowError(w, r, op, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
