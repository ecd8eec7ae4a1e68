package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// HistoryStore is the subset of the audit store the history endpoints read.
type HistoryStore interface {
	ListStateSnapshots(ctx context.Context, deviceID string, limit, offset int) ([]model.StateSnapshot, error)
	ListConnectionEvents(ctx context.Context, deviceID string, limit, offset int) ([]model.ConnectionEvent, error)
}

type HistoryHandler struct {
	store        HistoryStore
	defaultLimit int
	maxLimit     int
}

func NewHistoryHandler(store HistoryStore, defaultLimit, maxLimit int) *HistoryHandler {
	return &HistoryHandler{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// StateHistory serves GET /state-history/{device_id}?limit=N.
func (h *HistoryHandler) StateHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")
	p, err := ParsePagination(r, h.defaultLimit, h.maxLimit)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}

	snapshots, err := h.store.ListStateSnapshots(r.Context(), deviceID, p.Limit, p.Offset)
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list state history")
		return
	}
	if snapshots == nil {
		snapshots = []model.StateSnapshot{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"snapshots": snapshots,
		"limit":     p.Limit,
		"offset":    p.Offset,
	})
}

// ConnectionHistory serves GET /device-connection-history/{device_id}?limit=N.
func (h *HistoryHandler) ConnectionHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")
	p, err := ParsePagination(r, h.defaultLimit, h.maxLimit)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}

	events, err := h.store.ListConnectionEvents(r.Context(), deviceID, p.Limit, p.Offset)
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list connection history")
		return
	}
	if events == nil {
		events = []model.ConnectionEvent{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"events":    events,
		"limit":     p.Limit,
		"offset":    p.Offset,
	})
}

func (h *HistoryHandler) Routes(r chi.Router) {
	r.Get("/state-history/{device_id}", h.StateHistory)
	r.Get("/device-connection-history/{device_id}", h.ConnectionHistory)
}
