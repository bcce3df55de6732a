package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/znerol74/call/internal/model/conversation"
)

const (
	summaryInstruction = "Summarize the following phone conversation in 2-3 sentences. " +
		"Focus on the key points and outcomes."

	// SummaryUnavailable is recorded when the summary pass fails or is empty.
	SummaryUnavailable = "[summary unavailable]"
	// SummaryEmpty is recorded for sessions without any exchange.
	SummaryEmpty = "[no conversation]"
)

// Finalize ends the session and produces its transcript record. The first
// call computes, summarizes and stores the record. Later calls return the same
// record with ErrAlreadyFinalized and only retry storage if it failed before.
func (s *Session) Finalize(ctx context.Context) (conversation.TranscriptRecord, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.finalize(ctx)
}

// TryFinalize is Finalize without waiting: while a Submit or Finalize is in
// flight it returns false and does nothing.
func (s *Session) TryFinalize(ctx context.Context) (conversation.TranscriptRecord, bool, error) {
	if !s.opMu.TryLock() {
		return conversation.TranscriptRecord{}, false, nil
	}
	defer s.opMu.Unlock()
	rec, err := s.finalize(ctx)
	return rec, true, err
}

func (s *Session) finalize(ctx context.Context) (conversation.TranscriptRecord, error) {
	ctx, span := s.engine.tracer.Start(ctx, "session.finalize", trace.WithAttributes(
		attribute.String("session.key", s.key),
	))
	defer span.End()

	if s.record != nil {
		if !s.Finalized() {
			if err := s.save(ctx, *s.record); err != nil {
				return *s.record, err
			}
		}
		return *s.record, ErrAlreadyFinalized
	}

	s.setStatus(conversation.StatusCompleted)
	endedAt := s.engine.now()
	turns := s.Turns()

	rec := conversation.TranscriptRecord{
		ID:              s.engine.newID(),
		SessionKey:      s.key,
		AgentID:         s.agent.ID,
		CallerNumber:    s.callerNumber,
		Status:          s.Status(),
		StartedAt:       s.startedAt,
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(s.startedAt).Seconds(),
		Transcript:      RenderTranscript(turns),
	}
	rec.Summary, rec.SummaryFailed = s.summarize(ctx, turns)
	if rec.SummaryFailed {
		span.SetAttributes(attribute.Bool("summary.failed", true))
	}

	s.record = &rec
	s.engine.metrics.SessionEnded(string(rec.Status))
	s.logger.Info("session finalized",
		zap.String("status", string(rec.Status)),
		zap.Float64("duration_seconds", rec.DurationSeconds),
		zap.Bool("summary_failed", rec.SummaryFailed),
	)

	if err := s.save(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return rec, err
	}
	return rec, nil
}

func (s *Session) save(ctx context.Context, rec conversation.TranscriptRecord) error {
	if s.engine.sink != nil {
		if err := s.engine.sink.Save(ctx, rec); err != nil {
			s.logger.Error("saving transcript failed", zap.Error(err))
			return fmt.Errorf("save transcript: %w", err)
		}
	}
	s.mu.Lock()
	s.finalized = true
	s.mu.Unlock()
	return nil
}

// RenderTranscript formats every turn after the system turn as
// "ROLE: content", one per line.
func RenderTranscript(turns []conversation.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range history(turns) {
		lines = append(lines, strings.ToUpper(string(t.Role))+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

func history(turns []conversation.Turn) []conversation.Turn {
	if len(turns) > 0 && turns[0].Role == conversation.RoleSystem {
		return turns[1:]
	}
	return turns
}

// summarize requests a summary without tools. It never fails; failures are
// reported through the second return value.
func (s *Session) summarize(ctx context.Context, turns []conversation.Turn) (string, bool) {
	hist := history(turns)
	if len(hist) == 0 {
		return SummaryEmpty, false
	}

	payload, err := json.MarshalIndent(hist, "", "  ")
	if err != nil {
		s.logger.Warn("encoding history for summary failed", zap.Error(err))
		s.engine.metrics.SummaryFailed()
		return SummaryUnavailable, true
	}
	prompt := []conversation.Turn{
		conversation.SystemTurn(summaryInstruction),
		conversation.UserTurn("Conversation:\n" + string(payload)),
	}

	start := time.Now()
	pass, err := s.engine.stream(ctx, prompt, nil)
	s.engine.metrics.ObserveGeneration("summary", time.Since(start))
	summary := strings.TrimSpace(pass.Text)
	if err != nil || summary == "" {
		s.logger.Warn("summary unavailable", zap.Error(err))
		s.engine.metrics.SummaryFailed()
		return SummaryUnavailable, true
	}
	return summary, false
}
