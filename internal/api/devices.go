package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// DevicesSource is the subset of the device registry the read-side API
// reads from directly (devices are live in-memory state, C2, not C1).
type DevicesSource interface {
	List() []model.Device
	ListByType(deviceType string) []model.Device
}

type DevicesHandler struct {
	registry DevicesSource
}

func NewDevicesHandler(registry DevicesSource) *DevicesHandler {
	return &DevicesHandler{registry: registry}
}

// List serves GET /devices, optionally filtered by device_type.
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	var devices []model.Device
	if dt, ok := QueryString(r, "device_type"); ok {
		devices = h.registry.ListByType(dt)
	} else {
		devices = h.registry.List()
	}
	if devices == nil {
		devices = []model.Device{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"total":   len(devices),
		"devices": devices,
	})
}

func (h *DevicesHandler) Routes(r chi.Router) {
	r.Get("/devices", h.List)
}
