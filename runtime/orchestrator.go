// Package runtime keeps room presence consistent and relays chat and signaling
// traffic between the sessions of a room.
// It holds no transport code: the transport hands typed inbound events to the
// Orchestrator and pushes the frames it gets back.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
	"study-relay/errors"
	"study-relay/runtime/workers"
	"time"
)

// Config sizes the internal channels and the periodic tasks.
// DeliveryTimeout is the deadline of one broadcast handed to the SessionSender;
// it only matters for senders that can block.
type Config struct {
	BufferSize      int
	DeliveryTimeout time.Duration
	StatsInterval   time.Duration
}

// Dependencies are the collaborators of the relay. Indexer, Searcher, States
// and Filter are optional.
type Dependencies struct {
	Gate     contract.LifecycleGate
	Store    contract.ChatStore
	History  contract.MessageHistory
	Indexer  contract.MessageIndexer
	Searcher contract.MessageSearcher
	States   contract.GroupStateWriter
	Sender   contract.SessionSender
	Filter   contract.ContentFilter
}

type invalidator interface {
	Invalidate(roomID domain.RoomID)
}

type Orchestrator struct {
	log        *slog.Logger
	supervisor contract.ISupervisor
	deps       Dependencies
	config     Config

	registry   *Registry
	presence   *PresenceCoordinator
	dispatcher *Dispatcher
	router     *Router

	presenceEvents chan domain.PresenceEvent
	evictions      chan domain.Eviction
	indexQueue     chan domain.ChatMessage
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, deps Dependencies, config Config) *Orchestrator {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	o := &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		deps:           deps,
		config:         config,
		presenceEvents: make(chan domain.PresenceEvent, config.BufferSize),
		evictions:      make(chan domain.Eviction, config.BufferSize),
	}
	o.registry = NewRegistry(log, o.presenceEvents)
	o.presence = NewPresenceCoordinator(log, o.registry, deps.Gate, o.evictions)

	var opts []DispatcherOption
	if deps.Filter != nil {
		opts = append(opts, WithContentFilter(deps.Filter))
	}
	if deps.Indexer != nil {
		o.indexQueue = make(chan domain.ChatMessage, config.BufferSize)
		opts = append(opts, WithIndexQueue(o.indexQueue))
	}
	o.dispatcher = NewDispatcher(log, o.registry, deps.Gate, deps.Store, deps.Sender, o.presence, config.DeliveryTimeout, opts...)
	o.router = NewRouter(log, o.registry, deps.Sender, o.presence)
	return o
}

// Handle processes one inbound event of an authenticated session.
// The returned frame, when its event is set, goes back to that session only.
func (o *Orchestrator) Handle(ctx context.Context, identity domain.Identity, event domain.InboundEvent) (domain.Frame, error) {
	switch evt := event.(type) {
	case domain.JoinRequest:
		joined, err := o.presence.Join(ctx, identity, evt)
		if err != nil {
			return domain.Frame{}, err
		}
		return domain.Frame{Event: domain.FrameJoined, Data: domain.JoinedAck{
			RoomID:       evt.RoomID,
			Participants: o.registry.ListParticipants(evt.RoomID),
			Rejoined:     !joined,
		}}, nil

	case domain.SendMessagePayload:
		receipt, err := o.dispatcher.Dispatch(ctx, domain.PostMessageCommand{
			RoomID:        evt.RoomID,
			SenderID:      identity.UserID,
			SenderSession: identity.SessionID,
			Content:       evt.Content,
			Type:          evt.Type,
		})
		if err != nil {
			return domain.Frame{}, err
		}
		return domain.Frame{Event: domain.FrameReceipt, Data: receipt}, nil

	case domain.SignalRequest:
		// Signaling happens in the room the session joined
		p, ok := o.registry.Lookup(identity.SessionID)
		if !ok {
			return domain.Frame{}, fmt.Errorf("%w: session %s joined no room", errors.ErrSenderNotParticipant, identity.SessionID)
		}
		err := o.router.Route(ctx, domain.SignalMessage{RoomID: p.RoomID, SenderSession: identity.SessionID, Envelope: evt.Envelope})
		return domain.Frame{}, err

	case domain.LeaveRequest:
		p, err := o.presence.Leave(ctx, identity.SessionID)
		if err != nil {
			return domain.Frame{}, err
		}
		return domain.Frame{Event: domain.FrameLeft, Data: domain.LeftAck{RoomID: p.RoomID}}, nil

	case domain.Disconnect:
		o.presence.Disconnect(identity.SessionID)
		return domain.Frame{}, nil

	default:
		return domain.Frame{}, fmt.Errorf("%w: %T", errors.ErrUnknownFrame, event)
	}
}

// ErrorFrame is the rejection sent back to the session whose event failed.
func ErrorFrame(err error) domain.Frame {
	return domain.Frame{Event: domain.FrameError, Data: domain.Rejection{Code: errors.Code(err), Message: err.Error()}}
}

// Start registers the relay workers and blocks until the supervisor stops.
func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Add(
		workers.NewPresenceWorker(o.log, o.presenceEvents, o.dispatcher),
		workers.NewEvictionWorker(o.log, o.evictions, o.presence),
	)
	if o.indexQueue != nil {
		o.supervisor.Add(workers.NewIndexWorker(o.log, o.indexQueue, o.deps.Indexer))
	}
	if o.config.StatsInterval > 0 {
		o.supervisor.Add(workers.NewStatsWorker(o.log, o.config.StatsInterval, o.Stats, []workers.NamedChannel{
			{Name: "presence", Channel: o.presenceEvents},
			{Name: "evictions", Channel: o.evictions},
			{Name: "index", Channel: o.indexQueue},
		}))
	}

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// History pages through the persisted messages of a room, newest first.
func (o *Orchestrator) History(roomID domain.RoomID, cursor *string) ([]domain.ChatMessage, *string, error) {
	if o.deps.History == nil {
		return nil, nil, fmt.Errorf("%w: no message history configured", errors.ErrStorageFailure)
	}
	messages, next, err := o.deps.History.GetMessages(roomID, cursor)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errors.ErrStorageFailure, err)
	}
	return messages, next, nil
}

func (o *Orchestrator) Search(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", errors.ErrValidationFailed)
	}
	if o.deps.Searcher == nil {
		return nil, fmt.Errorf("%w: no search index configured", errors.ErrStorageFailure)
	}
	hits, err := o.deps.Searcher.Search(ctx, roomID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageFailure, err)
	}
	return hits, nil
}

func (o *Orchestrator) Participants(roomID domain.RoomID) []domain.Participant {
	return o.registry.ListParticipants(roomID)
}

// UpdateGroupState records a lifecycle transition of the group platform and
// makes the gate forget its snapshot of the room.
func (o *Orchestrator) UpdateGroupState(ctx context.Context, roomID domain.RoomID, state domain.GroupState) error {
	if o.deps.States == nil {
		return fmt.Errorf("%w: group states are read only", errors.ErrStorageFailure)
	}
	if err := o.deps.States.SetState(ctx, roomID, state); err != nil {
		return err
	}
	if inv, ok := o.deps.Gate.(invalidator); ok {
		inv.Invalidate(roomID)
	}
	return nil
}

func (o *Orchestrator) Stats() domain.RelayStats {
	registry := o.registry.Stats()
	dispatcher := o.dispatcher.Stats()
	router := o.router.Stats()
	return domain.RelayStats{
		Rooms:           registry.Rooms,
		Sessions:        registry.Sessions,
		DroppedPresence: registry.DroppedPresence,
		Dispatched:      dispatcher.Dispatched,
		FailedPushes:    dispatcher.FailedPushes,
		NotIndexed:      dispatcher.NotIndexed,
		SignalsRelayed:  router.Relayed,
		SignalsDropped:  router.Dropped,
		Disconnects:     o.presence.Cleanups(),
	}
}
