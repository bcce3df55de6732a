package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/znerol74/call/internal/model/agent"
	"github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/service/llm"
	"github.com/znerol74/call/internal/service/tools"
)

// Session is the live state of one call. Submit and Finalize are serialized;
// the accessors may be called at any time.
type Session struct {
	engine       *Engine
	key          string
	agent        agent.Descriptor
	callerNumber string
	executor     *tools.Executor
	specs        []llm.ToolSpec
	startedAt    time.Time
	logger       *zap.Logger

	// opMu is held for the whole of Submit and Finalize.
	opMu   sync.Mutex
	record *conversation.TranscriptRecord

	// mu guards the fields below for readers outside the operation.
	mu           sync.RWMutex
	turns        []conversation.Turn
	status       conversation.Status
	lastActivity time.Time
	endRequested bool
	finalized    bool
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// Agent returns the session's agent descriptor.
func (s *Session) Agent() agent.Descriptor { return s.agent.Clone() }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Status returns the current lifecycle status.
func (s *Session) Status() conversation.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastActivity returns the time of the last turn or status change.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// EndRequested reports whether a call-termination tool succeeded.
func (s *Session) EndRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endRequested
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []conversation.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]conversation.Turn(nil), s.turns...)
}

// Finalized reports whether Finalize has produced and stored the record. It
// does not wait for an operation in flight.
func (s *Session) Finalized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalized
}

func (s *Session) appendTurn(t conversation.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.lastActivity = s.engine.now()
	s.mu.Unlock()
	s.engine.metrics.TurnAppended(string(t.Role))
}

func (s *Session) setStatus(st conversation.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = st
	s.lastActivity = s.engine.now()
}

// Submit appends the caller's text, runs generation and returns the trimmed
// assistant reply. Tool calls emitted by the first pass are resolved in order
// and followed by exactly one continuation pass.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, span := s.engine.tracer.Start(ctx, "session.submit", trace.WithAttributes(
		attribute.String("session.key", s.key),
		attribute.String("agent.id", s.agent.ID),
	))
	defer span.End()

	if st := s.Status(); st.Terminal() {
		return "", fmt.Errorf("%w: %s", ErrSessionTerminal, st)
	}

	s.appendTurn(conversation.UserTurn(text))
	s.setStatus(conversation.StatusActive)

	pass, err := s.generate(ctx, "reply", s.specs)
	if err != nil {
		return "", s.fail(span, err)
	}

	response := pass.Text
	var transferred bool
	if len(pass.ToolCalls) > 0 {
		span.SetAttributes(attribute.Int("tool.calls", len(pass.ToolCalls)))
		s.setStatus(conversation.StatusAwaitingToolResult)
		transferred = s.resolveTools(ctx, pass.Text, pass.ToolCalls)
		s.setStatus(conversation.StatusActive)

		cont, err := s.generate(ctx, "continuation", s.specs)
		if err != nil {
			return "", s.fail(span, err)
		}
		if len(cont.ToolCalls) > 0 {
			s.logger.Warn("ignoring tool calls in continuation", zap.Int("count", len(cont.ToolCalls)))
		}
		response = pass.Text + " " + cont.Text
	}

	s.appendTurn(conversation.AssistantTurn(response))
	if transferred {
		s.setStatus(conversation.StatusTransferred)
	}
	return strings.TrimSpace(response), nil
}

func (s *Session) generate(ctx context.Context, purpose string, specs []llm.ToolSpec) (llm.Pass, error) {
	ctx, span := s.engine.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.Int("turns", len(s.turns)),
	))
	defer span.End()

	start := time.Now()
	pass, err := s.engine.stream(ctx, s.Turns(), specs)
	s.engine.metrics.ObserveGeneration(purpose, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return llm.Pass{}, err
	}
	return pass, nil
}

func (e *Engine) stream(ctx context.Context, turns []conversation.Turn, specs []llm.ToolSpec) (llm.Pass, error) {
	stream, err := e.generator.Stream(ctx, turns, specs)
	if err != nil {
		return llm.Pass{}, err
	}
	return llm.Collect(stream)
}

// resolveTools invokes each call in order and appends its result. preamble is
// kept on the first result so the continuation sees what was already said.
// It reports whether a transfer succeeded.
func (s *Session) resolveTools(ctx context.Context, preamble string, calls []llm.ToolCall) bool {
	var transferred bool
	for i, call := range calls {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d_%d", len(s.turns), i)
		}

		toolCtx, span := s.engine.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
			attribute.String("tool.name", call.Name),
		))
		res := s.executor.Invoke(toolCtx, call.Name, call.Arguments)
		if res.Failed() {
			span.SetStatus(codes.Error, res.Text)
		}
		span.End()

		s.engine.metrics.ToolInvoked(res.Kind.String(), !res.Failed())
		turn := conversation.ToolTurn(call.Name, id, call.Arguments, res.Text)
		if i == 0 {
			turn.Preamble = preamble
		}
		s.appendTurn(turn)

		switch res.Outcome {
		case tools.OutcomeTransferred:
			transferred = true
		case tools.OutcomeEnded:
			s.mu.Lock()
			s.endRequested = true
			s.mu.Unlock()
		}
	}
	return transferred
}

func (s *Session) fail(span trace.Span, err error) error {
	s.setStatus(conversation.StatusFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, "generation unavailable")
	s.logger.Error("generation failed, session marked failed", zap.Error(err))
	return fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
}
