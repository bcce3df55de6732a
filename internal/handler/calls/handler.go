// Package calls exposes stored call records over HTTP.
package calls

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	model "github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/store"
	"github.com/znerol74/call/pkg/utils"
)

// RecordReader loads the transcript record of an ended call.
type RecordReader interface {
	Record(ctx context.Context, key string) (model.TranscriptRecord, error)
}

// Handler serves call records.
type Handler struct {
	records RecordReader
}

// New creates a record handler.
func New(records RecordReader) *Handler {
	return &Handler{records: records}
}

// RegisterRoutes mounts the record routes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/calls/{callID}/record", h.handleGetRecord)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	rec, err := h.records.Record(r.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			utils.RespondError(w, http.StatusNotFound, "record not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	utils.RespondJSON(w, http.StatusOK, rec)
}
