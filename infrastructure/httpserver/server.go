// Package httpserver exposes the relay over plain HTTP: probes, ICE
// configuration, room history and search, lifecycle updates pushed by the
// group platform, and the websocket endpoint.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"study-relay/auth"
	"study-relay/domain"
	"study-relay/errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

const defaultSearchLimit = 20

// Relay is what the HTTP surface needs from the orchestrator.
type Relay interface {
	History(roomID domain.RoomID, cursor *string) ([]domain.ChatMessage, *string, error)
	Search(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.SearchHit, error)
	Participants(roomID domain.RoomID) []domain.Participant
	UpdateGroupState(ctx context.Context, roomID domain.RoomID, state domain.GroupState) error
	Stats() domain.RelayStats
}

type Server struct {
	log        *slog.Logger
	relay      Relay
	websocket  http.Handler
	verifier   *auth.Verifier
	iceServers []webrtc.ICEServer

	ready atomic.Bool
	mux   *http.ServeMux
	srv   *http.Server
}

func New(log *slog.Logger, addr string, relay Relay, websocket http.Handler, verifier *auth.Verifier, iceServers []webrtc.ICEServer) *Server {
	s := &Server{
		log:        log,
		relay:      relay,
		websocket:  websocket,
		verifier:   verifier,
		iceServers: iceServers,
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()

	s.srv = &http.Server{
		Addr: addr,
		Handler: chain(s.mux,
			recoverMiddleware(log),
			requestIDMiddleware(),
			requestLoggerMiddleware(log),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Serve(l net.Listener) error {
	s.ready.Store(true)
	s.log.Info("Starting HTTP server", "address", l.Addr().String())
	return s.srv.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	s.mux.HandleFunc("GET /readyz", s.readyz)
	s.mux.HandleFunc("GET /webrtc/ice", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"iceServers": s.iceServers})
	})
	// Room data is only served to authenticated users
	s.mux.Handle("GET /rooms/{roomId}/messages", s.authenticated(s.messages))
	s.mux.Handle("GET /rooms/{roomId}/search", s.authenticated(s.search))
	s.mux.Handle("GET /rooms/{roomId}/participants", s.authenticated(s.participants))
	s.mux.Handle("PUT /rooms/{roomId}/state", s.authenticated(s.updateState))
	s.mux.Handle("GET /ws", s.websocket)
}

func (s *Server) authenticated(handler http.HandlerFunc) http.Handler {
	return auth.Middleware(s.log, s.verifier, handler)
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ready": true, "stats": s.relay.Stats()})
}

type historyMessage struct {
	MessageID uuid.UUID `json:"messageId"`
	domain.WireChatMessage
}

type historyPage struct {
	Messages []historyMessage `json:"messages"`
	Cursor   *string          `json:"cursor,omitempty"`
}

func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	roomID, ok := s.roomID(w, r)
	if !ok {
		return
	}
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := s.relay.History(roomID, cursor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, historyPage{
		Messages: lo.Map(messages, func(m domain.ChatMessage, _ int) historyMessage {
			return historyMessage{MessageID: m.ID, WireChatMessage: m.Wire()}
		}),
		Cursor: next,
	})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	roomID, ok := s.roomID(w, r)
	if !ok {
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteJSON(w, http.StatusBadRequest, domain.Rejection{Code: "ValidationFailed", Message: "invalid limit"})
			return
		}
		limit = parsed
	}

	hits, err := s.relay.Search(r.Context(), roomID, r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (s *Server) participants(w http.ResponseWriter, r *http.Request) {
	roomID, ok := s.roomID(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"participants": s.relay.Participants(roomID)})
}

type stateUpdate struct {
	State string `json:"state"`
}

func (s *Server) updateState(w http.ResponseWriter, r *http.Request) {
	roomID, ok := s.roomID(w, r)
	if !ok {
		return
	}
	var body stateUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteJSON(w, http.StatusBadRequest, domain.Rejection{Code: "ValidationFailed", Message: "malformed body"})
		return
	}
	state, err := domain.ParseGroupState(body.State)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, domain.Rejection{Code: "ValidationFailed", Message: err.Error()})
		return
	}

	if err := s.relay.UpdateGroupState(r.Context(), roomID, state); err != nil {
		s.writeError(w, err)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	s.log.Info("Group state updated", "room_id", roomID, "state", state, "by", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) roomID(w http.ResponseWriter, r *http.Request) (domain.RoomID, bool) {
	roomID, err := domain.ParseRoomID(r.PathValue("roomId"))
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, domain.Rejection{Code: "ValidationFailed", Message: err.Error()})
		return 0, false
	}
	return roomID, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case "ValidationFailed":
		status = http.StatusBadRequest
	case "NotFound":
		status = http.StatusNotFound
	case "Unauthorized":
		status = http.StatusUnauthorized
	case "StorageFailure":
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	WriteJSON(w, status, domain.Rejection{Code: code, Message: err.Error()})
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
