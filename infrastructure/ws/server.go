// Package ws is the WebSocket adapter of the relay. It authenticates
// connections, decodes inbound frames into typed events and drains each
// session outbox onto its socket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"study-relay/auth"
	"study-relay/contract"
	"study-relay/domain"
	"study-relay/runtime"
	"study-relay/sink"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = time.Second

type ServerConfig struct {
	OutboxSize      int
	MaxFrameBytes   int64
	FramesPerSecond float64
	PingInterval    time.Duration
}

type Server struct {
	log      *slog.Logger
	handler  contract.EventHandler
	hub      *Hub
	verifier *auth.Verifier
	config   ServerConfig
	upgrader websocket.Upgrader
}

func NewServer(log *slog.Logger, handler contract.EventHandler, hub *Hub, verifier *auth.Verifier, config ServerConfig) *Server {
	return &Server{
		log:      log,
		handler:  handler,
		hub:      hub,
		verifier: verifier,
		config:   config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP blocks for the lifetime of the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.Authenticate(r)
	if err != nil {
		s.log.Debug("Connection refused", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	identity := domain.Identity{UserID: userID, SessionID: domain.SessionID(uuid.NewString())}
	outbox := sink.NewSessionSink(identity.SessionID, s.config.OutboxSize)
	s.hub.Register(outbox)
	s.log.Debug("Session opened", "user_id", identity.UserID, "session_id", identity.SessionID)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	closeSession := func() {
		once.Do(func() {
			outbox.Close()
			s.hub.Unregister(identity.SessionID)
			if _, err := s.handler.Handle(ctx, identity, domain.Disconnect{}); err != nil {
				s.log.Debug("Disconnect failed", "session_id", identity.SessionID, "error", err)
			}
			cancel()
			_ = conn.Close()
			s.log.Debug("Session closed", "user_id", identity.UserID, "session_id", identity.SessionID)
		})
	}

	go func() {
		defer closeSession()
		s.writePump(conn, outbox)
	}()

	defer closeSession()
	s.readLoop(ctx, conn, identity, outbox)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, identity domain.Identity, outbox *sink.SessionSink) {
	pongWait := 2 * s.config.PingInterval
	conn.SetReadLimit(s.config.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(s.config.FramesPerSecond), int(s.config.FramesPerSecond)+1)

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Read failed", "session_id", identity.SessionID, "error", err)
			}
			return
		}
		if !limiter.Allow() {
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		var reply domain.Frame
		event, err := DecodeInbound(raw)
		if err == nil {
			reply, err = s.handler.Handle(ctx, identity, event)
		}
		if err != nil {
			s.log.Debug("Frame rejected", "session_id", identity.SessionID, "error", err)
			reply = runtime.ErrorFrame(err)
		}
		if reply.Event == "" {
			continue
		}
		if err := outbox.TrySend(reply); err != nil {
			return
		}
	}
}

// writePump is the only writer of data frames on the connection.
func (s *Server) writePump(conn *websocket.Conn, outbox *sink.SessionSink) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-outbox.Done():
			writeClose(conn, websocket.CloseGoingAway, "session closed")
			return
		case frame := <-outbox.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
