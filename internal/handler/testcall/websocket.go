// Package testcall serves the interactive websocket used to try out an agent
// without placing a phone call.
package testcall

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	model "github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/service/calls"
)

const (
	defaultAuthTimeout = 10 * time.Second
	readTimeout        = 60 * time.Second
	pingInterval       = 54 * time.Second
	writeTimeout       = 5 * time.Second
)

// Messages pushed to the client.
const (
	MessageGreeting = "greeting"
	MessageText     = "text"
	MessageAudio    = "audio"
	MessageError    = "error"
	MessageEnd      = "end"
)

// SessionService is the slice of calls.Service used by test sessions.
type SessionService interface {
	OpenTestSession(ctx context.Context, agentID, subject string) (string, string, error)
	Submit(ctx context.Context, key, text string) (calls.Reply, error)
	EndSession(ctx context.Context, key string) (model.TranscriptRecord, error)
}

// TokenVerifier resolves an access token to its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type authMessage struct {
	Token string `json:"token"`
}

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// WebSocketHandler runs one conversation per connection.
type WebSocketHandler struct {
	sessions    SessionService
	verifier    TokenVerifier
	upgrader    websocket.Upgrader
	authTimeout time.Duration
	logger      *zap.Logger
}

// NewWebSocketHandler creates the handler.
func NewWebSocketHandler(sessions SessionService, verifier TokenVerifier, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		sessions: sessions,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		authTimeout: defaultAuthTimeout,
		logger:      logger.With(zap.String("component", "testcall")),
	}
}

// RegisterRoutes mounts the websocket under r.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/testing/ws/{agentID}", h.handleWebSocket)
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	subject, ok := h.authenticate(conn)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	key, greeting, err := h.sessions.OpenTestSession(ctx, agentID, subject)
	if err != nil {
		if errors.Is(err, calls.ErrNoAgent) {
			h.reject(conn, "Agent not found")
		} else {
			h.logger.Error("open test session failed", zap.String("agent", agentID), zap.Error(err))
			h.reject(conn, "Session unavailable")
		}
		return
	}
	logger := h.logger.With(zap.String("session", key))
	logger.Info("test session opened", zap.String("subject", subject))

	defer func() {
		rec, err := h.sessions.EndSession(ctx, key)
		if err != nil {
			logger.Error("finalize test session failed", zap.Error(err))
			return
		}
		logger.Info("test session ended", zap.String("status", string(rec.Status)))
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	go h.pingLoop(ctx, conn)

	if !h.send(conn, MessageGreeting, greeting) {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(conn, MessageError, "Invalid message")
			continue
		}

		if !h.handleMessage(ctx, conn, key, msg, logger) {
			return
		}
	}
}

// handleMessage answers one client message. It returns false once the
// conversation is over.
func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, key string, msg inboundMessage, logger *zap.Logger) bool {
	switch msg.Type {
	case MessageText:
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			return h.send(conn, MessageError, "Message content is required")
		}

		reply, err := h.sessions.Submit(ctx, key, text)
		if err != nil {
			logger.Error("submit failed", zap.Error(err))
			h.send(conn, MessageError, calls.UtteranceGenericApology)
			h.close(conn, websocket.CloseInternalServerErr, "conversation failed")
			return false
		}
		if !h.send(conn, MessageText, reply.Text) {
			return false
		}
		if reply.Hangup {
			h.send(conn, MessageEnd, "")
			h.close(conn, websocket.CloseNormalClosure, "call ended")
			return false
		}
		return true
	case MessageAudio:
		return h.send(conn, MessageError, "Audio input not yet implemented")
	default:
		return h.send(conn, MessageError, "Unsupported message type")
	}
}

// authenticate expects {"token": "..."} as the first message. Failures are
// reported to the client before the connection is closed.
func (h *WebSocketHandler) authenticate(conn *websocket.Conn) (string, bool) {
	conn.SetReadDeadline(time.Now().Add(h.authTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		h.logger.Debug("no auth message", zap.Error(err))
		return "", false
	}

	var msg authMessage
	if err := json.Unmarshal(data, &msg); err != nil || strings.TrimSpace(msg.Token) == "" {
		h.reject(conn, "Authentication required")
		return "", false
	}

	subject, err := h.verifier.Verify(msg.Token)
	if err != nil {
		h.logger.Info("rejected test token", zap.Error(err))
		h.reject(conn, "Invalid token")
		return "", false
	}
	return subject, true
}

func (h *WebSocketHandler) reject(conn *websocket.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]string{"error": reason}); err != nil {
		h.logger.Debug("write rejection failed", zap.Error(err))
	}
	h.close(conn, websocket.ClosePolicyViolation, reason)
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msgType, content string) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(outgoingMessage{Type: msgType, Content: content}); err != nil {
		h.logger.Debug("write failed", zap.String("type", msgType), zap.Error(err))
		return false
	}
	return true
}

func (h *WebSocketHandler) close(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil {
		h.logger.Debug("write close failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
