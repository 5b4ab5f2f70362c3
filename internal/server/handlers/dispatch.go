package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wingmanhq/dispatch/internal/dispatch"
	apperrors "github.com/wingmanhq/dispatch/internal/errors"
)

// Dispatch serves the completion endpoint.
type Dispatch struct {
	Dispatcher *dispatch.Dispatcher
}

// DispatchHandler routes POST /v1/dispatch/{model}. The body is a
// provider-agnostic completion request; the response carries the serving
// endpoint and latency.
func (h *Dispatch) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	if strings.TrimSpace(model) == "" {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("model is required"))
		return
	}

	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("invalid request body: "+err.Error()))
		return
	}
	if len(req.Messages) == 0 {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("messages are required"))
		return
	}
	for _, msg := range req.Messages {
		if strings.TrimSpace(msg.Role) == "" {
			apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("message role is required"))
			return
		}
	}

	resp, err := h.Dispatcher.Dispatch(r.Context(), model, &req)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
