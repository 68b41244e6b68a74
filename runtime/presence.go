package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
	"study-relay/errors"
	"sync/atomic"
)

var (
	_ contract.Evictor        = (*PresenceCoordinator)(nil)
	_ contract.SessionCleaner = (*PresenceCoordinator)(nil)
)

// PresenceCoordinator turns join, leave and connection closure into registry
// mutations. Presence broadcasts are derived from the registry events by
// workers.PresenceWorker.
type PresenceCoordinator struct {
	log       *slog.Logger
	registry  contract.IRegistry
	gate      contract.LifecycleGate
	evictions chan<- domain.Eviction
	cleanups  atomic.Uint64
}

func NewPresenceCoordinator(
	log *slog.Logger,
	registry contract.IRegistry,
	gate contract.LifecycleGate,
	evictions chan<- domain.Eviction) *PresenceCoordinator {
	return &PresenceCoordinator{
		log:       log,
		registry:  registry,
		gate:      gate,
		evictions: evictions,
	}
}

// Join admits the session into the room if the group is open.
// joined is false when the same session already joined that room.
func (c *PresenceCoordinator) Join(ctx context.Context, identity domain.Identity, request domain.JoinRequest) (bool, error) {
	if err := request.Validate(); err != nil {
		return false, err
	}
	if !c.gate.Allows(ctx, request.RoomID, domain.ActionJoin) {
		return false, fmt.Errorf("%w: room %d does not accept joins", errors.ErrRoomClosed, request.RoomID)
	}
	joined, err := c.registry.Join(domain.Participant{
		RoomID:    request.RoomID,
		UserID:    identity.UserID,
		Nickname:  request.Nickname,
		SessionID: identity.SessionID,
	})
	if err != nil {
		return false, err
	}
	if joined {
		c.log.Info("Participant joined", "room_id", request.RoomID, "user_id", identity.UserID, "session_id", identity.SessionID)
	}
	return joined, nil
}

// Leave is an explicit leave requested by the session itself.
func (c *PresenceCoordinator) Leave(_ context.Context, sessionID domain.SessionID) (domain.Participant, error) {
	participant, err := c.registry.Leave(sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	c.log.Info("Participant left", "room_id", participant.RoomID, "user_id", participant.UserID, "session_id", sessionID)
	return participant, nil
}

// Disconnect cleans up after a closed transport session. It runs at most once
// per binding: a session already removed by an explicit leave, an eviction or
// an earlier callback is ignored.
func (c *PresenceCoordinator) Disconnect(sessionID domain.SessionID) {
	participant, err := c.registry.Leave(sessionID)
	switch {
	case err == nil:
		c.cleanups.Add(1)
		c.log.Info("Session disconnected", "room_id", participant.RoomID, "user_id", participant.UserID, "session_id", sessionID)
	case stderrors.Is(err, errors.ErrSessionNotFound):
		c.log.Debug("Session already cleaned up", "session_id", sessionID)
	default:
		c.log.Error("Unable to clean up session", "session_id", sessionID, "error", err)
	}
}

// Evict schedules the removal of a session. It never blocks the caller: when the
// queue is full the cleanup runs inline.
func (c *PresenceCoordinator) Evict(sessionID domain.SessionID, reason error) {
	select {
	case c.evictions <- domain.Eviction{SessionID: sessionID, Reason: reason}:
	default:
		c.log.Warn("Eviction queue full, cleaning up inline", "session_id", sessionID)
		c.Disconnect(sessionID)
	}
}

// Cleanups is the number of sessions removed by Disconnect.
func (c *PresenceCoordinator) Cleanups() uint64 {
	return c.cleanups.Load()
}
