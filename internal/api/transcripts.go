package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// TranscriptStore is the subset of the audit store the transcripts endpoint reads.
type TranscriptStore interface {
	ListTranscripts(ctx context.Context, deviceID string, limit, offset int) ([]model.AudioTranscript, error)
}

type TranscriptsHandler struct {
	store        TranscriptStore
	defaultLimit int
	maxLimit     int
}

func NewTranscriptsHandler(store TranscriptStore, defaultLimit, maxLimit int) *TranscriptsHandler {
	return &TranscriptsHandler{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// List serves GET /audio/transcripts?limit=N[&device_id=X].
func (h *TranscriptsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r, h.defaultLimit, h.maxLimit)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}
	deviceID, _ := QueryString(r, "device_id")

	transcripts, err := h.store.ListTranscripts(r.Context(), deviceID, p.Limit, p.Offset)
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list transcripts")
		return
	}
	if transcripts == nil {
		transcripts = []model.AudioTranscript{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcripts": transcripts,
		"limit":       p.Limit,
		"offset":      p.Offset,
	})
}

func (h *TranscriptsHandler) Routes(r chi.Router) {
	r.Get("/audio/transcripts", h.List)
}
