// Package voice serves the telephony provider's voice webhooks.
package voice

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	model "github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/service/calls"
	"github.com/znerol74/call/internal/service/registry"
	"github.com/znerol74/call/internal/service/telephony"
	"github.com/znerol74/call/pkg/utils"
)

// ProcessSpeechPath receives the caller's recognized speech.
const ProcessSpeechPath = "/api/v1/twilio/process-speech"

// CallService is the slice of calls.Service driven by webhooks.
type CallService interface {
	CreateSession(ctx context.Context, start calls.CallStart) (string, error)
	Submit(ctx context.Context, key, text string) (calls.Reply, error)
	EndSession(ctx context.Context, key string) (model.TranscriptRecord, error)
}

// Config tunes the webhook handler.
type Config struct {
	// PublicBaseURL is the externally reachable origin. It prefixes action
	// URLs and is used to verify signatures. Empty keeps action URLs relative.
	PublicBaseURL string
	Language      string
	// Validator rejects unsigned requests when set.
	Validator *telephony.SignatureValidator
}

// Handler answers voice webhooks with TwiML.
type Handler struct {
	calls     CallService
	renderer  telephony.Renderer
	baseURL   string
	validator *telephony.SignatureValidator
	logger    *zap.Logger
}

// New creates a webhook handler.
func New(svc CallService, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Handler{
		calls: svc,
		renderer: telephony.Renderer{
			ActionURL: base + ProcessSpeechPath,
			Language:  cfg.Language,
		},
		baseURL:   base,
		validator: cfg.Validator,
		logger:    logger.With(zap.String("component", "voice")),
	}
}

// RegisterRoutes mounts the webhooks under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/twilio", func(tw chi.Router) {
		tw.Use(h.verify)
		tw.Post("/incoming-call", h.handleIncomingCall)
		tw.Post("/process-speech", h.handleProcessSpeech)
		tw.Post("/call-status", h.handleCallStatus)
	})
}

// verify parses the form and, when a validator is configured, rejects
// requests whose signature does not match.
func (h *Handler) verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		if h.validator != nil && !h.validator.Valid(r, h.baseURL+r.URL.RequestURI()) {
			h.logger.Warn("rejected unsigned webhook", zap.String("path", r.URL.Path))
			utils.RespondError(w, http.StatusForbidden, "invalid signature")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	start := calls.CallStart{
		CallID: r.PostForm.Get("CallSid"),
		From:   r.PostForm.Get("From"),
		To:     r.PostForm.Get("To"),
	}
	if start.CallID == "" || start.To == "" {
		utils.RespondError(w, http.StatusBadRequest, "CallSid and To are required")
		return
	}

	greeting, err := h.calls.CreateSession(r.Context(), start)
	switch {
	case err == nil:
		h.gather(w, greeting)
	case errors.Is(err, calls.ErrNoAgent):
		h.logger.Info("no agent for number", zap.String("to", start.To), zap.String("call_id", start.CallID))
		h.say(w, calls.UtteranceNoAgent)
	case errors.Is(err, registry.ErrDuplicateSession):
		// Retried webhook for a call that is already live.
		h.gather(w, calls.UtteranceRepeat)
	default:
		h.logger.Error("create session failed", zap.String("call_id", start.CallID), zap.Error(err))
		h.say(w, calls.UtteranceTechnicalIssue)
	}
}

func (h *Handler) handleProcessSpeech(w http.ResponseWriter, r *http.Request) {
	callID := r.PostForm.Get("CallSid")
	if callID == "" {
		utils.RespondError(w, http.StatusBadRequest, "CallSid is required")
		return
	}

	text := strings.TrimSpace(r.PostForm.Get("SpeechResult"))
	if text == "" {
		text = strings.TrimSpace(r.PostForm.Get("UnstableSpeechResult"))
	}
	if text == "" {
		h.gather(w, calls.UtteranceRepeat)
		return
	}

	reply, err := h.calls.Submit(r.Context(), callID, text)
	switch {
	case err == nil:
	case errors.Is(err, calls.ErrSessionNotFound):
		h.logger.Warn("speech for unknown call", zap.String("call_id", callID))
		h.say(w, calls.UtteranceTechnicalIssue)
		return
	default:
		h.logger.Error("submit failed", zap.String("call_id", callID), zap.Error(err))
		h.say(w, calls.UtteranceGenericApology)
		return
	}

	if reply.Hangup {
		h.say(w, reply.Text)
		return
	}
	h.gather(w, reply.Text)
}

// endingStatuses are the call states after which no more speech arrives.
var endingStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"busy":      true,
	"no-answer": true,
	"canceled":  true,
}

func (h *Handler) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	callID := r.PostForm.Get("CallSid")
	status := r.PostForm.Get("CallStatus")
	if callID == "" || status == "" {
		utils.RespondError(w, http.StatusBadRequest, "CallSid and CallStatus are required")
		return
	}

	if endingStatuses[status] {
		if _, err := h.calls.EndSession(r.Context(), callID); err != nil {
			if errors.Is(err, calls.ErrSessionNotFound) {
				h.logger.Debug("status for unknown call", zap.String("call_id", callID), zap.String("status", status))
			} else {
				h.logger.Error("end session failed", zap.String("call_id", callID), zap.Error(err))
			}
		} else {
			h.logger.Info("call ended", zap.String("call_id", callID), zap.String("status", status))
		}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) gather(w http.ResponseWriter, text string) {
	doc, err := h.renderer.Gather(text)
	h.respond(w, doc, err)
}

func (h *Handler) say(w http.ResponseWriter, text string) {
	doc, err := h.renderer.Say(text)
	h.respond(w, doc, err)
}

func (h *Handler) respond(w http.ResponseWriter, doc string, err error) {
	if err != nil {
		h.logger.Error("render twiml failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	utils.RespondXML(w, http.StatusOK, doc)
}
