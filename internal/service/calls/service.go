// Package calls is the boundary between transports (telephony webhooks, the
// test websocket) and the orchestration engine.
package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/znerol74/call/internal/model/agent"
	model "github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/service/conversation"
	"github.com/znerol74/call/internal/service/registry"
	"github.com/znerol74/call/internal/store"
)

// Utterances spoken instead of raw errors.
const (
	UtteranceNoAgent        = "Sorry, no agent is configured for this number."
	UtteranceRepeat         = "Sorry, I didn't catch that. Could you please repeat?"
	UtteranceTechnicalIssue = "Sorry, there was a technical problem. Please call again later."
	UtteranceGenericApology = "Sorry, something went wrong on our side. Please try again later."
)

const (
	defaultFinalizeTimeout = 30 * time.Second
	testSessionKeyPrefix   = "test"
)

var (
	// ErrNoAgent is returned when no agent answers the called number.
	ErrNoAgent = errors.New("no agent configured")
	// ErrSessionNotFound is returned for calls without a live session.
	ErrSessionNotFound = registry.ErrSessionNotFound
)

// CallStart describes an inbound call.
type CallStart struct {
	CallID string
	From   string
	To     string
}

// Reply is the agent's answer to one caller utterance.
type Reply struct {
	Text string
	// Hangup is set once the conversation cannot continue, either because a
	// tool ended or transferred the call or because the session is terminal.
	Hangup bool
}

// Service creates, drives and ends sessions on behalf of transports.
type Service struct {
	agents          agent.Store
	registry        *registry.Registry
	records         store.TranscriptStore
	finalizeTimeout time.Duration
	logger          *zap.Logger
}

// NewService wires a Service.
func NewService(agents agent.Store, reg *registry.Registry, records store.TranscriptStore, finalizeTimeout time.Duration, logger *zap.Logger) *Service {
	if finalizeTimeout <= 0 {
		finalizeTimeout = defaultFinalizeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		agents:          agents,
		registry:        reg,
		records:         records,
		finalizeTimeout: finalizeTimeout,
		logger:          logger.With(zap.String("component", "calls")),
	}
}

// CreateSession starts orchestrating an inbound call and returns the greeting.
// A retried webhook for a live call fails with registry.ErrDuplicateSession.
func (s *Service) CreateSession(_ context.Context, start CallStart) (string, error) {
	desc, ok := s.agents.FindByPhoneNumber(start.To)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoAgent, start.To)
	}

	if _, err := s.registry.Create(start.CallID, desc, conversation.SessionOptions{
		CallID:       start.CallID,
		CallerNumber: start.From,
	}); err != nil {
		return "", err
	}

	s.logger.Info("call session created",
		zap.String("call_id", start.CallID),
		zap.String("agent", desc.ID),
	)
	return desc.Greeting, nil
}

// OpenTestSession starts an interactive session with agentID for an
// authenticated subject. It returns the session key and the greeting.
func (s *Service) OpenTestSession(_ context.Context, agentID, subject string) (string, string, error) {
	desc, ok := s.agents.FindByID(agentID)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNoAgent, agentID)
	}

	key := fmt.Sprintf("%s_%s_%s_%s", testSessionKeyPrefix, subject, agentID, uuid.NewString())
	if _, err := s.registry.Create(key, desc, conversation.SessionOptions{}); err != nil {
		return "", "", err
	}
	s.logger.Info("test session created", zap.String("session", key), zap.String("agent", desc.ID))
	return key, desc.Greeting, nil
}

// Submit forwards the caller's text to the session under key.
func (s *Service) Submit(ctx context.Context, key, text string) (Reply, error) {
	session, err := s.registry.Get(key)
	if err != nil {
		return Reply{}, err
	}

	out, err := session.Submit(ctx, text)
	if err != nil {
		return Reply{}, err
	}

	hangup := session.EndRequested() || session.Status() != model.StatusActive
	return Reply{Text: out, Hangup: hangup}, nil
}

// EndSession finalizes and evicts the session under key. Ending an already
// ended call returns its record without error. A session whose record could
// not be stored is kept for another attempt. Finalization is detached from
// ctx so a dropped request cannot lose the transcript.
func (s *Service) EndSession(ctx context.Context, key string) (model.TranscriptRecord, error) {
	session, err := s.registry.Get(key)
	if errors.Is(err, registry.ErrSessionNotFound) {
		if rec, recErr := s.Record(ctx, key); recErr == nil {
			return rec, nil
		}
		return model.TranscriptRecord{}, err
	}
	if err != nil {
		return model.TranscriptRecord{}, err
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.finalizeTimeout)
	defer cancel()

	rec, err := session.Finalize(fctx)
	if err != nil && !errors.Is(err, conversation.ErrAlreadyFinalized) {
		// The session stays registered so a later EndSession or sweep
		// retries storing the record.
		s.logger.Error("finalize failed", zap.String("session", key), zap.Error(err))
		return rec, err
	}

	if rmErr := s.registry.Remove(key); rmErr != nil && !errors.Is(rmErr, registry.ErrSessionNotFound) {
		s.logger.Warn("remove after finalize failed", zap.String("session", key), zap.Error(rmErr))
	}

	if errors.Is(err, conversation.ErrAlreadyFinalized) {
		return rec, nil
	}
	return rec, err
}

// Record returns the stored transcript of an ended session.
func (s *Service) Record(ctx context.Context, key string) (model.TranscriptRecord, error) {
	if s.records == nil {
		return model.TranscriptRecord{}, store.ErrRecordNotFound
	}
	return s.records.Get(ctx, key)
}

// Agents lists the configured agents.
func (s *Service) Agents() []agent.Descriptor {
	return s.agents.List()
}
