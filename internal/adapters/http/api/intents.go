package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/skincheck/internal/domain/flow"
)

// IntentHandler dispatches argument-less flow events.
type IntentHandler struct {
	s *Server
}

// NewIntentHandler creates a new intent handler.
func NewIntentHandler(s *Server) *IntentHandler {
	return &IntentHandler{s: s}
}

// HandleIntent handles POST /intents/{event} requests. start_analysis
// answers 202 once the analysis is running; the outcome shows up on /state.
func (h *IntentHandler) HandleIntent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_intent"
	name := mux.Vars(r)["event"]
	event, ok := flow.ParseIntent(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_intent", WrapKind(op, ErrNotFound, unknownIntent(name)))
		return
	}

	if err := h.s.deps.Dispatch(r.Context(), event); err != nil {
		h.s.writeFlowError(w, r, op, err)
		return
	}

	status := http.StatusOK
	if event == flow.EventStartAnalysis {
		status = http.StatusAccepted
	}
	writeJSON(w, status, h.s.view(r))
}

type unknownIntent string

func (u unknownIntent) Error() string { return "no intent named " + string(u) }
