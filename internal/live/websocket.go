// Package live serves pipeline sessions over WebSocket.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/estatepost/internal/identity"
	"github.com/ashureev/estatepost/internal/session"
	"github.com/ashureev/estatepost/internal/workflow"
)

const (
	defaultWriteTimeout = 10 * time.Second
	readLimit           = 64 << 10
)

// WebSocketHandler accepts live connections and binds each to a session.
type WebSocketHandler struct {
	registry       *session.Registry
	allowedOrigins []string
	isDev          bool
	writeTimeout   time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(registry *session.Registry, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		registry:       registry,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		writeTimeout:   defaultWriteTimeout,
	}
}

// RegisterRoutes registers the WebSocket endpoints. /ws assigns a fresh
// client id.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.ServeHTTP)
	r.Get("/ws/{clientID}", h.ServeHTTP)
}

// connSink writes events as JSON text frames, one at a time.
type connSink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (s *connSink) Emit(ctx context.Context, ev workflow.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, ev)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		clientID = identity.NewClientID()
	}
	if !identity.ValidID(clientID) {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}
	log := slog.Default().With("client_id", clientID)
	log.Info("WebSocket connection request", "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sink := &connSink{conn: ws, timeout: h.writeTimeout}
	sess, release, err := h.registry.Open(ctx, clientID, sink)
	if err != nil {
		log.Error("Failed to open session", "error", err)
		return
	}
	defer release()

	h.readLoop(ctx, ws, sess, sink, log)
	log.Info("Live session ended")
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 || slices.Contains(h.allowedOrigins, "*") {
		return true
	}
	if slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

// readLoop forwards client frames to the session until the connection
// closes or a frame fails to parse.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sess *session.Session, sink *connSink, log *slog.Logger) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				log.Debug("WebSocket closed by client")
			} else {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg session.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("Malformed frame", "error", err)
			h.endSession(ctx, sink, "Invalid message format", log)
			return
		}

		if err := sess.Submit(msg); err != nil {
			log.Warn("Message rejected", "type", msg.Type, "error", err)
			if errors.Is(err, session.ErrClosed) {
				h.endSession(ctx, sink, submitMessage(err), log)
				return
			}
			h.emit(ctx, sink, workflow.ErrorEvent(submitMessage(err)), log)
		}
	}
}

func (h *WebSocketHandler) emit(ctx context.Context, sink *connSink, ev workflow.Event, log *slog.Logger) {
	if err := sink.Emit(ctx, ev); err != nil {
		log.Debug("Failed to send event", "type", ev.Type, "error", err)
	}
}

// endSession reports an error that terminates the session, followed by the
// final notification.
func (h *WebSocketHandler) endSession(ctx context.Context, sink *connSink, msg string, log *slog.Logger) {
	h.emit(ctx, sink, workflow.ErrorEvent(msg), log)
	h.emit(ctx, sink, workflow.FinalEvent(msg), log)
}

func submitMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrInboxFull):
		return "Too many pending messages, please wait for the current run."
	case errors.Is(err, session.ErrEmptyInput):
		return "user_input is required"
	case errors.Is(err, session.ErrUnknownMessage):
		return "Unknown message type"
	case errors.Is(err, session.ErrClosed):
		return "Session closed"
	}
	return err.Error()
}
