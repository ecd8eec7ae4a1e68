package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

type fakeDevicesSource struct {
	all    []model.Device
	byType map[string][]model.Device
}

func (f *fakeDevicesSource) List() []model.Device { return f.all }
func (f *fakeDevicesSource) ListByType(deviceType string) []model.Device {
	return f.byType[deviceType]
}

func TestDevicesListReturnsAll(t *testing.T) {
	source := &fakeDevicesSource{all: []model.Device{{DeviceID: "wheel1"}, {DeviceID: "servo1"}}}
	r := chi.NewRouter()
	NewDevicesHandler(source).Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)
}

func TestDevicesListFiltersByType(t *testing.T) {
	source := &fakeDevicesSource{byType: map[string][]model.Device{"wheel": {{DeviceID: "wheel1"}}}}
	r := chi.NewRouter()
	NewDevicesHandler(source).Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/devices?device_type=wheel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wheel1")
}

func TestDevicesListEmptyIsEmptyArrayNotNull(t *testing.T) {
	source := &fakeDevicesSource{}
	r := chi.NewRouter()
	NewDevicesHandler(source).Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), `"devices":[]`)
}
