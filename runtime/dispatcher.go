package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
	"study-relay/errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var _ contract.Broadcaster = (*Dispatcher)(nil)

// Dispatcher persists chat messages and fans them out to every participant of
// the room. The sender's read loop calls Dispatch sequentially, so per-sender
// order is the order of the outbox enqueues.
type Dispatcher struct {
	log             *slog.Logger
	registry        contract.IRegistry
	gate            contract.LifecycleGate
	store           contract.ChatStore
	sender          contract.SessionSender
	evictor         contract.Evictor
	filter          contract.ContentFilter
	indexQueue      chan<- domain.ChatMessage
	deliveryTimeout time.Duration
	now             func() time.Time

	dispatched   atomic.Uint64
	failedPushes atomic.Uint64
	skipped      atomic.Uint64
}

type DispatcherOption func(*Dispatcher)

// WithContentFilter censors message content before it is persisted.
func WithContentFilter(filter contract.ContentFilter) DispatcherOption {
	return func(d *Dispatcher) { d.filter = filter }
}

// WithIndexQueue offers every dispatched message to the search indexer.
func WithIndexQueue(queue chan<- domain.ChatMessage) DispatcherOption {
	return func(d *Dispatcher) { d.indexQueue = queue }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(
	log *slog.Logger,
	registry contract.IRegistry,
	gate contract.LifecycleGate,
	store contract.ChatStore,
	sender contract.SessionSender,
	evictor contract.Evictor,
	deliveryTimeout time.Duration,
	opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:             log,
		registry:        registry,
		gate:            gate,
		store:           store,
		sender:          sender,
		evictor:         evictor,
		deliveryTimeout: deliveryTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch validates, persists then broadcasts a chat message.
// Nothing is pushed to anyone unless the message was stored.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd domain.PostMessageCommand) (domain.DeliveryReceipt, error) {
	if err := cmd.Validate(); err != nil {
		return domain.DeliveryReceipt{}, err
	}
	if !d.isParticipant(cmd) {
		return domain.DeliveryReceipt{}, fmt.Errorf("%w: user %s in room %d", errors.ErrSenderNotParticipant, cmd.SenderID, cmd.RoomID)
	}
	if !d.gate.Allows(ctx, cmd.RoomID, domain.ActionMessage) {
		return domain.DeliveryReceipt{}, fmt.Errorf("%w: room %d does not accept messages", errors.ErrRoomClosed, cmd.RoomID)
	}

	content := cmd.Content
	if d.filter != nil {
		content = d.filter.Censor(content)
	}
	msg := domain.ChatMessage{
		ID:        uuid.New(),
		RoomID:    cmd.RoomID,
		SenderID:  cmd.SenderID,
		Content:   content,
		Type:      cmd.Type,
		Timestamp: d.now().UTC(),
	}
	if err := d.store.Append(ctx, msg); err != nil {
		d.log.Error("Unable to persist message", "room_id", msg.RoomID, "message_id", msg.ID, "error", err)
		return domain.DeliveryReceipt{}, fmt.Errorf("%w: %w", errors.ErrStorageFailure, err)
	}

	result := d.Broadcast(ctx, msg.RoomID, domain.Frame{Event: domain.FrameChat, Data: msg.Wire()})
	d.dispatched.Add(1)
	d.offerIndex(msg)

	return domain.DeliveryReceipt{
		MessageID:  msg.ID,
		RoomID:     msg.RoomID,
		Timestamp:  msg.Timestamp,
		Recipients: result.Recipients,
		Delivered:  result.Delivered,
		Failed:     result.Failed,
	}, nil
}

func (d *Dispatcher) isParticipant(cmd domain.PostMessageCommand) bool {
	if cmd.SenderSession == "" {
		return len(d.registry.FindSession(cmd.RoomID, cmd.SenderID)) > 0
	}
	p, ok := d.registry.Lookup(cmd.SenderSession)
	return ok && p.RoomID == cmd.RoomID && p.UserID == cmd.SenderID
}

// Broadcast pushes a frame to a snapshot of the room taken now. Participants
// joining afterwards do not receive it. A failed push only affects its own
// session, which is evicted.
func (d *Dispatcher) Broadcast(ctx context.Context, roomID domain.RoomID, frame domain.Frame) domain.BroadcastResult {
	participants := d.registry.ListParticipants(roomID)
	result := domain.BroadcastResult{Recipients: len(participants)}
	if len(participants) == 0 {
		return result
	}

	// The deadline bounds senders that may block. The websocket hub enqueues
	// without waiting and never reaches it.
	if d.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.deliveryTimeout)
		defer cancel()
	}
	for _, p := range participants {
		if err := d.sender.Send(ctx, p.SessionID, frame); err != nil {
			d.failedPushes.Add(1)
			d.log.Warn("Push failed, evicting session",
				"room_id", roomID, "session_id", p.SessionID, "event", frame.Event, "error", err)
			result.Failed = append(result.Failed, p.SessionID)
			d.evictor.Evict(p.SessionID, err)
			continue
		}
		result.Delivered++
	}
	return result
}

// offerIndex never delays the sender, search is best effort.
func (d *Dispatcher) offerIndex(msg domain.ChatMessage) {
	if d.indexQueue == nil {
		return
	}
	select {
	case d.indexQueue <- msg:
	default:
		d.skipped.Add(1)
		d.log.Debug("Index queue full, message not indexed", "message_id", msg.ID)
	}
}

// DispatcherStats counts messages and pushes since start.
type DispatcherStats struct {
	Dispatched   uint64
	FailedPushes uint64
	NotIndexed   uint64
}

func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Dispatched:   d.dispatched.Load(),
		FailedPushes: d.failedPushes.Load(),
		NotIndexed:   d.skipped.Load(),
	}
}
