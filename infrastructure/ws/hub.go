package ws

import (
	"context"
	stderrors "errors"
	"log/slog"
	"study-relay/domain"
	"study-relay/errors"
	"study-relay/sink"
	"sync"
)

// Hub maps live session ids to their outboxes.
type Hub struct {
	log   *slog.Logger
	mu    sync.RWMutex
	sinks map[domain.SessionID]*sink.SessionSink
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, sinks: make(map[domain.SessionID]*sink.SessionSink)}
}

func (h *Hub) Register(s *sink.SessionSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[s.ID()] = s
}

func (h *Hub) Unregister(sessionID domain.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sinks, sessionID)
}

// Send never blocks, so it has no use for the broadcast deadline carried by
// ctx. A saturated outbox is closed so that its connection goes away with it.
func (h *Hub) Send(_ context.Context, sessionID domain.SessionID, frame domain.Frame) error {
	h.mu.RLock()
	s, ok := h.sinks[sessionID]
	h.mu.RUnlock()
	if !ok {
		return errors.ErrSessionClosed
	}

	err := s.TrySend(frame)
	if stderrors.Is(err, errors.ErrBackpressure) {
		h.log.Warn("Outbox full, dropping session", "session_id", sessionID, "event", frame.Event)
		s.Close()
	}
	return err
}

func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}
