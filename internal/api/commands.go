package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// CommandDispatcher is the subset of the command router the operator
// command endpoint drives.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, deviceType, commandName string, payload map[string]any) (model.CommandRecord, error)
}

// CommandLogStore is the subset of the audit store command history reads.
type CommandLogStore interface {
	ListCommands(ctx context.Context, status model.CommandStatus, deviceType string, limit, offset int) ([]model.CommandRecord, error)
}

type CommandsHandler struct {
	router       CommandDispatcher
	store        CommandLogStore
	defaultLimit int
	maxLimit     int
}

func NewCommandsHandler(router CommandDispatcher, store CommandLogStore, defaultLimit, maxLimit int) *CommandsHandler {
	return &CommandsHandler{router: router, store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

type dispatchResponse struct {
	CommandID         string              `json:"command_id"`
	Status            model.CommandStatus `json:"status"`
	TargetDeviceCount int                 `json:"target_device_count"`
}

// Dispatch serves POST /command?device_type=X&command_name=Y with a JSON
// payload body (spec.md §4.9's single command surface; per-device-type
// convenience routes, if ever added, would be thin aliases over this).
func (h *CommandsHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	deviceType, ok := QueryString(r, "device_type")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "device_type is required")
		return
	}
	commandName, ok := QueryString(r, "command_name")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "command_name is required")
		return
	}

	var payload map[string]any
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &payload); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid JSON payload body")
			return
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	record, err := h.router.Dispatch(r.Context(), deviceType, commandName, payload)
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to dispatch command")
		return
	}

	WriteJSON(w, http.StatusOK, dispatchResponse{
		CommandID:         record.CommandID,
		Status:            record.Status,
		TargetDeviceCount: record.TargetDeviceCount,
	})
}

// Logs serves GET /command-logs?limit=N[&status=...][&device_type=...].
func (h *CommandsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r, h.defaultLimit, h.maxLimit)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}

	var status model.CommandStatus
	if v, ok := QueryString(r, "status"); ok {
		status = model.CommandStatus(v)
	}
	deviceType, _ := QueryString(r, "device_type")

	records, err := h.store.ListCommands(r.Context(), status, deviceType, p.Limit, p.Offset)
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list command logs")
		return
	}
	if records == nil {
		records = []model.CommandRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"commands": records,
		"limit":    p.Limit,
		"offset":   p.Offset,
	})
}

func (h *CommandsHandler) Routes(r chi.Router) {
	r.Post("/command", h.Dispatch)
	r.Get("/command-logs", h.Logs)
}
