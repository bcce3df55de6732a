package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/znerol74/call/internal/handler/agent"
	"github.com/znerol74/call/internal/handler/calls"
	"github.com/znerol74/call/internal/handler/testcall"
	"github.com/znerol74/call/internal/handler/voice"
	middlewarePkg "github.com/znerol74/call/internal/middleware"
	agentModel "github.com/znerol74/call/internal/model/agent"
	callService "github.com/znerol74/call/internal/service/calls"
	"github.com/znerol74/call/pkg/utils"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Agents agentModel.Store
	Calls  *callService.Service
	Voice  voice.Config
	// Verifier authenticates the test websocket. Nil disables the endpoint.
	Verifier testcall.TokenVerifier
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	agentHandler := agent.New(deps.Agents)
	recordHandler := calls.New(deps.Calls)
	voiceHandler := voice.New(deps.Calls, deps.Voice, logger)

	r.Route("/api/v1", func(api chi.Router) {
		agentHandler.RegisterRoutes(api)
		recordHandler.RegisterRoutes(api)
		voiceHandler.RegisterRoutes(api)

		if deps.Verifier != nil {
			testcall.NewWebSocketHandler(deps.Calls, deps.Verifier, logger).RegisterRoutes(api)
		} else {
			logger.Info("test websocket disabled: no token secret configured")
		}
	})

	return r
}
