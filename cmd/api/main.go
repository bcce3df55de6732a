package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/znerol74/call/internal/auth"
	"github.com/znerol74/call/internal/config"
	"github.com/znerol74/call/internal/handler"
	"github.com/znerol74/call/internal/handler/voice"
	"github.com/znerol74/call/internal/model/agent"
	"github.com/znerol74/call/internal/observability"
	"github.com/znerol74/call/internal/service/calls"
	"github.com/znerol74/call/internal/service/conversation"
	"github.com/znerol74/call/internal/service/llm"
	"github.com/znerol74/call/internal/service/registry"
	"github.com/znerol74/call/internal/service/telephony"
	"github.com/znerol74/call/internal/service/tools"
	"github.com/znerol74/call/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var traceOut io.Writer
	if cfg.Observability.TraceStdout {
		traceOut = os.Stdout
	}
	shutdownTracing, err := observability.SetupTracing(traceOut)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("trace shutdown failed", zap.Error(err))
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promRegistry)

	records, closeRecords, err := openRecords(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeRecords()

	agents, err := loadAgents(cfg.Agents, logger)
	if err != nil {
		return err
	}

	generator := newGenerator(ctx, cfg.LLM, logger)

	if !cfg.Twilio.Enabled() {
		logger.Warn("twilio credentials not configured, transfer_call and end_call will report errors")
	}
	callControl := telephony.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, logger)

	toolFactory := tools.NewFactory(callControl, tools.FactoryConfig{
		HTTPTimeout:   cfg.Tools.HTTPTimeout,
		RatePerSecond: cfg.Tools.Rate,
		Burst:         cfg.Tools.Burst,
	}, logger)

	engine := conversation.NewEngine(generator, toolFactory,
		conversation.WithRecordSink(records),
		conversation.WithMetrics(metrics),
		conversation.WithTracer(otel.Tracer(observability.TracerName)),
		conversation.WithLogger(logger),
	)
	sessions := registry.New(engine)
	sweeper := registry.NewSweeper(sessions, cfg.Session.IdleTimeout, cfg.Session.SweepInterval, cfg.Session.FinalizeTimeout, logger)
	callService := calls.NewService(agents, sessions, records, cfg.Session.FinalizeTimeout, logger)

	deps := handler.Dependencies{
		Agents: agents,
		Calls:  callService,
		Voice: voice.Config{
			PublicBaseURL: cfg.Server.PublicBaseURL,
			Language:      cfg.Twilio.Language,
		},
		Gatherer: promRegistry,
		Logger:   logger,
	}
	if cfg.Twilio.ValidateSignature {
		deps.Voice.Validator = telephony.NewSignatureValidator(cfg.Twilio.AuthToken)
	}
	if cfg.Auth.JWTSecret != "" {
		deps.Verifier = auth.NewVerifier(cfg.Auth.JWTSecret)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("call backend listening", zap.String("addr", srv.Addr))
		return runServer(gctx, srv)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	if cfg.Agents.File != "" {
		g.Go(func() error {
			return agent.Watch(gctx, cfg.Agents.File, agents, logger)
		})
	}

	err = g.Wait()
	drainSessions(sessions, callService, logger)
	return err
}

func openRecords(cfg config.StorageConfig, logger *zap.Logger) (store.TranscriptStore, func(), error) {
	if cfg.TranscriptDBPath == "" {
		logger.Info("transcript records kept in memory")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := store.OpenBadger(store.BadgerConfig{Path: cfg.TranscriptDBPath, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("transcript records stored on disk", zap.String("path", cfg.TranscriptDBPath))
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("close transcript store failed", zap.Error(err))
		}
	}, nil
}

func loadAgents(cfg config.AgentsConfig, logger *zap.Logger) (*agent.MemoryStore, error) {
	if cfg.File == "" {
		logger.Info("no agents file configured, using built-in agent")
		return agent.NewMemoryStore(agent.Seed()), nil
	}

	items, err := agent.LoadFile(cfg.File)
	if err != nil {
		return nil, err
	}
	logger.Info("agents loaded", zap.String("path", cfg.File), zap.Int("count", len(items)))
	return agent.NewMemoryStore(items), nil
}

// newGenerator picks the configured backend. Without credentials the service
// still answers calls, apologizing for every utterance.
func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) llm.Generator {
	if !cfg.Enabled() {
		logger.Warn("llm credentials not configured, replies will fail", zap.String("provider", cfg.Provider))
		return llm.Unavailable()
	}

	switch cfg.Provider {
	case config.ProviderAzure:
		logger.Info("using azure openai", zap.String("deployment", cfg.Azure.Deployment))
		return llm.NewAzureGenerator(llm.AzureConfig{
			Endpoint:    cfg.Azure.Endpoint,
			APIKey:      cfg.Azure.APIKey,
			Deployment:  cfg.Azure.Deployment,
			APIVersion:  cfg.Azure.APIVersion,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	default:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			logger.Error("failed to initialize ark chat model", zap.Error(err))
			return llm.Unavailable()
		}
		logger.Info("using ark", zap.String("model", cfg.Ark.Model))
		return llm.NewArkGenerator(chatModel, cfg.Temperature, cfg.MaxTokens)
	}
}

// drainSessions finalizes calls still live at shutdown so their transcripts
// are stored.
func drainSessions(sessions *registry.Registry, svc *calls.Service, logger *zap.Logger) {
	live := sessions.Snapshot()
	if len(live) == 0 {
		return
	}
	logger.Info("finalizing live sessions", zap.Int("count", len(live)))
	for _, s := range live {
		if _, err := svc.EndSession(context.Background(), s.Key()); err != nil {
			logger.Warn("finalize on shutdown failed", zap.String("session", s.Key()), zap.Error(err))
		}
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
