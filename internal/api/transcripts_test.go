package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

type fakeTranscriptStore struct {
	transcripts []model.AudioTranscript
}

func (f *fakeTranscriptStore) ListTranscripts(ctx context.Context, deviceID string, limit, offset int) ([]model.AudioTranscript, error) {
	return f.transcripts, nil
}

func TestTranscriptsListReturnsRecords(t *testing.T) {
	store := &fakeTranscriptStore{transcripts: []model.AudioTranscript{{ID: 1, DeviceID: "camcontroller", RawText: "ESP forward"}}}
	r := chi.NewRouter()
	NewTranscriptsHandler(store, 50, 500).Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/audio/transcripts?limit=10", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "camcontroller")
}
