package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/store"
)

func record(key string, ended time.Time) conversation.TranscriptRecord {
	return conversation.TranscriptRecord{
		ID:              "id-" + key,
		SessionKey:      key,
		AgentID:         "reception",
		Status:          conversation.StatusCompleted,
		StartedAt:       ended.Add(-time.Minute),
		EndedAt:         ended,
		DurationSeconds: 60,
		Transcript:      "USER: hello\nASSISTANT: hi",
		Summary:         "A greeting.",
	}
}

func exerciseStore(t *testing.T, s store.TranscriptStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	require.NoError(t, s.Save(ctx, record("CA2", base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, record("CA1", base)))

	got, err := s.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "id-CA1", got.ID)
	assert.True(t, base.Equal(got.EndedAt))
	assert.Equal(t, "USER: hello\nASSISTANT: hi", got.Transcript)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "CA1", all[0].SessionKey)
	assert.Equal(t, "CA2", all[1].SessionKey)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, store.NewMemoryStore())
}

func TestBadgerStoreInMemory(t *testing.T) {
	s, err := store.OpenBadger(store.BadgerConfig{InMemory: true, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := store.OpenBadger(store.BadgerConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, record("CA9", time.Now().UTC())))
	require.NoError(t, s.Close())

	s, err = store.OpenBadger(store.BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "CA9")
	require.NoError(t, err)
	assert.Equal(t, "id-CA9", got.ID)
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := store.OpenBadger(store.BadgerConfig{})
	assert.Error(t, err)
}
