package calls

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/store"
)

type storeReader struct {
	store.TranscriptStore
}

func (s storeReader) Record(ctx context.Context, key string) (model.TranscriptRecord, error) {
	return s.Get(ctx, key)
}

type failingReader struct{}

func (failingReader) Record(context.Context, string) (model.TranscriptRecord, error) {
	return model.TranscriptRecord{}, errors.New("disk on fire")
}

func setupRouter(reader RecordReader) *chi.Mux {
	r := chi.NewRouter()
	New(reader).RegisterRoutes(r)
	return r
}

func TestGetRecord(t *testing.T) {
	records := store.NewMemoryStore()
	ended := time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC)
	want := model.TranscriptRecord{
		ID:              "rec-1",
		SessionKey:      "CA1",
		AgentID:         "reception",
		Status:          model.StatusCompleted,
		StartedAt:       ended.Add(-5 * time.Minute),
		EndedAt:         ended,
		DurationSeconds: 300,
		Transcript:      "USER: Hi\nASSISTANT: Hello",
		Summary:         "Greeting only.",
	}
	require.NoError(t, records.Save(context.Background(), want))

	resp := httptest.NewRecorder()
	setupRouter(storeReader{records}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/calls/CA1/record", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	var got model.TranscriptRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Transcript, got.Transcript)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.EndedAt.Equal(got.EndedAt))
}

func TestGetRecordNotFound(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter(storeReader{store.NewMemoryStore()}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/calls/CA404/record", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetRecordHidesStorageErrors(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter(failingReader{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/calls/CA1/record", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "disk on fire")
}
