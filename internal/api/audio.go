package api

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/audio"
)

// AudioProcessor is the subset of the audio pipeline this handler drives.
type AudioProcessor interface {
	Process(ctx context.Context, params audio.UploadParams, pcm []byte) audio.Result
	NotifyText(ctx context.Context, deviceID, text string) error
}

type AudioHandler struct {
	pipeline    AudioProcessor
	maxBodySize int64
}

func NewAudioHandler(pipeline AudioProcessor, maxBodySize int64) *AudioHandler {
	return &AudioHandler{pipeline: pipeline, maxBodySize: maxBodySize}
}

// Upload serves POST /audio/upload?device_id=X[&manual=true][&level=N][&threshold=N]
// with the raw PCM octet stream as the request body (spec.md §4.7).
func (h *AudioHandler) Upload(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := QueryString(r, "device_id")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "device_id is required")
		return
	}

	params := audio.UploadParams{DeviceID: deviceID}
	if manual, ok := QueryBool(r, "manual"); ok {
		params.Manual = manual
	}
	if level, ok := QueryFloat(r, "level"); ok {
		params.Level = &level
	}
	if threshold, ok := QueryFloat(r, "threshold"); ok {
		params.Threshold = &threshold
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBodySize)
	pcm, err := io.ReadAll(body)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "failed to read PCM body")
		return
	}

	result := h.pipeline.Process(r.Context(), params, pcm)
	WriteJSON(w, http.StatusOK, result)
}

// Notify serves GET /audio/notify?device_id=X&text=... (spec.md §4.9, a
// thin wrapper over the audio pipeline's TTS reply step).
func (h *AudioHandler) Notify(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := QueryString(r, "device_id")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "device_id is required")
		return
	}
	text, ok := QueryString(r, "text")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "text is required")
		return
	}

	if err := h.pipeline.NotifyText(r.Context(), deviceID, text); err != nil {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AudioHandler) Routes(r chi.Router) {
	r.Post("/audio/upload", h.Upload)
	r.Get("/audio/notify", h.Notify)
}
