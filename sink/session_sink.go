package sink

import (
	"study-relay/domain"
	"study-relay/errors"
	"sync"
)

// SessionSink is the bounded outbox of one transport session.
// Producers never block on it: a full outbox means the client is too slow
// and the session is dropped.
type SessionSink struct {
	id     domain.SessionID
	out    chan domain.Frame
	closed chan struct{}
	once   sync.Once
}

func NewSessionSink(id domain.SessionID, size int) *SessionSink {
	if size <= 0 {
		size = 1
	}
	return &SessionSink{
		id:     id,
		out:    make(chan domain.Frame, size),
		closed: make(chan struct{}),
	}
}

func (s *SessionSink) ID() domain.SessionID {
	return s.id
}

// TrySend enqueues the frame without waiting.
func (s *SessionSink) TrySend(frame domain.Frame) error {
	select {
	case <-s.closed:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case s.out <- frame:
		return nil
	default:
		return errors.ErrBackpressure
	}
}

// Frames is drained by the write pump of the session.
func (s *SessionSink) Frames() <-chan domain.Frame {
	return s.out
}

func (s *SessionSink) Done() <-chan struct{} {
	return s.closed
}

// Close is idempotent. Frames still queued are abandoned.
func (s *SessionSink) Close() {
	s.once.Do(func() { close(s.closed) })
}
