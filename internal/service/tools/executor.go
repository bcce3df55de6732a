package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/znerol74/call/internal/model/agent"
)

var (
	// ErrUnknownTool marks a call to a name outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrMalformedArguments marks arguments that are not a JSON object.
	ErrMalformedArguments = errors.New("malformed tool arguments")
	// ErrToolExecution marks a built-in that failed validation or its
	// outbound request.
	ErrToolExecution = errors.New("tool execution failed")
)

// CallControl acts on the live call through the telephony provider.
type CallControl interface {
	TransferCall(ctx context.Context, callID, number string) error
	EndCall(ctx context.Context, callID string) error
}

// Result is the outcome of one invocation. Text is always set and is what the
// conversation records; Err classifies failures for logs and metrics.
type Result struct {
	Kind    Kind
	Text    string
	Outcome Outcome
	Err     error
}

// Failed reports whether the invocation did not succeed.
func (r Result) Failed() bool { return r.Err != nil }

// FactoryConfig tunes the executors produced by a Factory.
type FactoryConfig struct {
	HTTPTimeout time.Duration
	// RatePerSecond limits outbound api_call requests per session.
	RatePerSecond float64
	Burst         int
}

// Factory builds per-session executors sharing outbound clients.
type Factory struct {
	control    CallControl
	httpClient *http.Client
	cfg        FactoryConfig
	logger     *zap.Logger
}

// NewFactory returns a Factory. control may be nil when no telephony provider
// is configured; call-control tools then report that no call is active.
func NewFactory(control CallControl, cfg FactoryConfig, logger *zap.Logger) *Factory {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		control:    control,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "tools")),
	}
}

// WithHTTPClient replaces the client used by api_call.
func (f *Factory) WithHTTPClient(client *http.Client) *Factory {
	f.httpClient = client
	return f
}

// New returns an executor for one session. callID is the telephony call the
// call-control tools act on; it is empty for test sessions.
func (f *Factory) New(defs []agent.ToolDefinition, callID string) *Executor {
	return &Executor{
		catalog:    NewCatalog(defs),
		callID:     callID,
		control:    f.control,
		httpClient: f.httpClient,
		limiter:    rate.NewLimiter(rate.Limit(f.cfg.RatePerSecond), f.cfg.Burst),
		logger:     f.logger.With(zap.String("call_id", callID)),
	}
}

// Executor resolves tool calls for one session.
type Executor struct {
	catalog    Catalog
	callID     string
	control    CallControl
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Catalog returns the session's tool catalog.
func (e *Executor) Catalog() Catalog { return e.catalog }

// Invoke looks up name, parses rawArguments and runs the built-in.
func (e *Executor) Invoke(ctx context.Context, name, rawArguments string) Result {
	if _, ok := e.catalog.Lookup(name); !ok {
		return Result{
			Kind: KindOf(name),
			Text: fmt.Sprintf("Error: Tool '%s' not found", name),
			Err:  fmt.Errorf("%w: %s", ErrUnknownTool, name),
		}
	}

	kind := KindOf(name)
	args, err := parseArguments(rawArguments)
	if err != nil {
		return Result{
			Kind: kind,
			Text: fmt.Sprintf("Error: invalid arguments for tool '%s': %v", name, err),
			Err:  fmt.Errorf("%w: %w", ErrMalformedArguments, err),
		}
	}

	var res Result
	switch kind {
	case KindTransferCall:
		res = e.transferCall(ctx, args)
	case KindEndCall:
		res = e.endCall(ctx)
	case KindAPICall:
		res = e.apiCall(ctx, args)
	case KindWeather:
		res = weather(args)
	case KindUnimplemented:
		res = failure(fmt.Sprintf("Error: Tool '%s' execution not implemented", name), nil)
	}
	res.Kind = kind

	if res.Err != nil {
		e.logger.Warn("tool failed", zap.String("tool", name), zap.Error(res.Err))
	} else {
		e.logger.Debug("tool succeeded", zap.String("tool", name))
	}
	return res
}

func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func failure(text string, cause error) Result {
	err := ErrToolExecution
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrToolExecution, cause)
	}
	return Result{Text: text, Err: err}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}
