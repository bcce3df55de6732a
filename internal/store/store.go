// Package store persists transcript records produced when sessions end.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/znerol74/call/internal/model/conversation"
)

// ErrRecordNotFound is returned when no record exists for a session key.
var ErrRecordNotFound = errors.New("transcript record not found")

// TranscriptStore saves and loads transcript records keyed by session key.
type TranscriptStore interface {
	Save(ctx context.Context, rec conversation.TranscriptRecord) error
	Get(ctx context.Context, sessionKey string) (conversation.TranscriptRecord, error)
	List(ctx context.Context) ([]conversation.TranscriptRecord, error)
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]conversation.TranscriptRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]conversation.TranscriptRecord)}
}

// Save stores rec, replacing any record with the same session key.
func (s *MemoryStore) Save(_ context.Context, rec conversation.TranscriptRecord) error {
	s.mu.Lock()
	s.records[rec.SessionKey] = rec
	s.mu.Unlock()
	return nil
}

// Get returns the record for sessionKey.
func (s *MemoryStore) Get(_ context.Context, sessionKey string) (conversation.TranscriptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sessionKey]
	if !ok {
		return conversation.TranscriptRecord{}, ErrRecordNotFound
	}
	return rec, nil
}

// List returns every record, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]conversation.TranscriptRecord, error) {
	s.mu.RLock()
	out := make([]conversation.TranscriptRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sortByEnd(out)
	return out, nil
}

func sortByEnd(recs []conversation.TranscriptRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].EndedAt.Equal(recs[j].EndedAt) {
			return recs[i].SessionKey < recs[j].SessionKey
		}
		return recs[i].EndedAt.Before(recs[j].EndedAt)
	})
}
