package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
	"study-relay/errors"
	"sync/atomic"

	"github.com/samber/lo"
)

// Router relays WebRTC signaling between two participants of the same room.
// Payloads are forwarded untouched and nothing is buffered: a signal for an
// absent receiver is dropped and reported to the sender.
type Router struct {
	log      *slog.Logger
	registry contract.IRegistry
	sender   contract.SessionSender
	evictor  contract.Evictor

	relayed atomic.Uint64
	dropped atomic.Uint64
}

func NewRouter(log *slog.Logger, registry contract.IRegistry, sender contract.SessionSender, evictor contract.Evictor) *Router {
	return &Router{log: log, registry: registry, sender: sender, evictor: evictor}
}

func (r *Router) Route(ctx context.Context, msg domain.SignalMessage) error {
	if err := msg.Envelope.Validate(); err != nil {
		return err
	}
	sender, ok := r.registry.Lookup(msg.SenderSession)
	if !ok || sender.RoomID != msg.RoomID {
		return fmt.Errorf("%w: session %s in room %d", errors.ErrSenderNotParticipant, msg.SenderSession, msg.RoomID)
	}
	// The receiver learns who signals from the authenticated binding, never from the client.
	envelope := msg.Envelope
	envelope.SenderID = sender.UserID

	sessions := r.registry.FindSession(msg.RoomID, envelope.ReceiverID)
	if len(sessions) == 0 {
		r.dropped.Add(1)
		if r.registry.IsOnline(envelope.ReceiverID) {
			return fmt.Errorf("%w: %s", errors.ErrReceiverNotInRoom, envelope.ReceiverID)
		}
		return fmt.Errorf("%w: %s", errors.ErrReceiverNotFound, envelope.ReceiverID)
	}
	targets := lo.Without(sessions, msg.SenderSession)
	if len(targets) == 0 {
		r.dropped.Add(1)
		return fmt.Errorf("%w: no other session of %s", errors.ErrReceiverNotFound, envelope.ReceiverID)
	}

	frame := domain.Frame{Event: domain.FrameSignal, Data: envelope}
	delivered := 0
	for _, sessionID := range targets {
		if err := r.sender.Send(ctx, sessionID, frame); err != nil {
			r.log.Warn("Signal push failed, evicting session",
				"room_id", msg.RoomID, "session_id", sessionID, "type", envelope.Type, "error", err)
			r.evictor.Evict(sessionID, err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		r.dropped.Add(1)
		return fmt.Errorf("%w: every session of %s failed", errors.ErrReceiverNotFound, envelope.ReceiverID)
	}
	r.relayed.Add(1)
	r.log.Debug("Signal relayed",
		"room_id", msg.RoomID, "type", envelope.Type, "from", envelope.SenderID, "to", envelope.ReceiverID, "sessions", delivered)
	return nil
}

// RouterStats counts relayed and dropped signals since start.
type RouterStats struct {
	Relayed uint64
	Dropped uint64
}

func (r *Router) Stats() RouterStats {
	return RouterStats{Relayed: r.relayed.Load(), Dropped: r.dropped.Load()}
}
