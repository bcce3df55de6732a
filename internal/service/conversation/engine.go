// Package conversation runs the per-call state machine: it sequences turns,
// drives generation passes, resolves tool calls mid-response and produces the
// transcript record when the call ends.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/znerol74/call/internal/model/agent"
	"github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/observability"
	"github.com/znerol74/call/internal/service/llm"
	"github.com/znerol74/call/internal/service/tools"
)

var (
	// ErrGenerationUnavailable wraps any backend failure during Submit. The
	// session is failed when it is returned.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrAlreadyFinalized accompanies the cached record on repeat Finalize
	// calls.
	ErrAlreadyFinalized = errors.New("session already finalized")
	// ErrSessionTerminal is returned by Submit once the session has ended.
	ErrSessionTerminal = errors.New("session is terminal")
)

// RecordSink receives transcript records. store.TranscriptStore satisfies it.
type RecordSink interface {
	Save(ctx context.Context, rec conversation.TranscriptRecord) error
}

// Engine holds the collaborators shared by every session.
type Engine struct {
	generator llm.Generator
	tools     *tools.Factory
	sink      RecordSink
	metrics   *observability.Metrics
	tracer    trace.Tracer
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecordSink persists finalized records to sink.
func WithRecordSink(sink RecordSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithMetrics records session activity on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an Engine around gen and the tool factory.
func NewEngine(gen llm.Generator, toolFactory *tools.Factory, opts ...Option) *Engine {
	e := &Engine{
		generator: gen,
		tools:     toolFactory,
		tracer:    otel.Tracer(observability.TracerName),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tools == nil {
		e.tools = tools.NewFactory(nil, tools.FactoryConfig{}, e.logger)
	}
	e.logger = e.logger.With(zap.String("component", "conversation"))
	return e
}

// Metrics returns the engine's metrics, possibly nil.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// SessionOptions carries per-call data that is not part of the agent.
type SessionOptions struct {
	// CallID is the telephony call the call-control tools act on.
	CallID       string
	CallerNumber string
}

// NewSession constructs a created session for desc with its system turn in
// place. The descriptor is copied.
func (e *Engine) NewSession(key string, desc agent.Descriptor, opts SessionOptions) *Session {
	desc = desc.Clone()
	executor := e.tools.New(desc.Tools, opts.CallID)

	var specs []llm.ToolSpec
	if executor.Catalog().Len() > 0 {
		specs = executor.Catalog().Describe()
	}

	now := e.now()
	s := &Session{
		engine:       e,
		key:          key,
		agent:        desc,
		callerNumber: opts.CallerNumber,
		executor:     executor,
		specs:        specs,
		startedAt:    now,
		status:       conversation.StatusCreated,
		lastActivity: now,
		logger: e.logger.With(
			zap.String("session", key),
			zap.String("agent", desc.ID),
		),
	}
	s.turns = []conversation.Turn{conversation.SystemTurn(desc.SystemPrompt)}
	e.metrics.TurnAppended(string(conversation.RoleSystem))
	return s
}
