package runtime

import (
	"fmt"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
	"study-relay/errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

// roomTable holds the membership of one room in join order.
// A pruned table has been removed from the arena and must not be mutated anymore.
type roomTable struct {
	mu           sync.RWMutex
	id           domain.RoomID
	participants []domain.Participant
	pruned       bool
}

type binding struct {
	room domain.RoomID
	user domain.UserID
}

// RegistryStats is a point-in-time view of the registry size.
type RegistryStats struct {
	Rooms           int
	Sessions        int
	DroppedPresence uint64
}

// Registry is the authoritative in-memory map of who is connected to which room.
//
// Membership is an arena of per-room tables, each with its own lock, so joins and
// leaves on different rooms never contend. A session index guarantees that a
// session is bound to at most one (room, user) pair.
// Lock order is table -> index -> arena; no I/O happens while any of them is held.
type Registry struct {
	log *slog.Logger

	arenaMu sync.RWMutex
	rooms   map[domain.RoomID]*roomTable

	indexMu  sync.RWMutex
	sessions map[domain.SessionID]binding
	online   map[domain.UserID]int

	events  chan<- domain.PresenceEvent
	dropped atomic.Uint64
}

// NewRegistry builds an empty registry. Presence events of successful joins and
// leaves are published on events, which may be nil.
func NewRegistry(log *slog.Logger, events chan<- domain.PresenceEvent) *Registry {
	return &Registry{
		log:      log,
		rooms:    make(map[domain.RoomID]*roomTable),
		sessions: make(map[domain.SessionID]binding),
		online:   make(map[domain.UserID]int),
		events:   events,
	}
}

// Join binds a session to a room. Resubmitting the same session for the same
// (room, user) is a no-op and reports joined=false.
func (r *Registry) Join(p domain.Participant) (bool, error) {
	if p.SessionID == "" || p.UserID == "" || p.RoomID <= 0 {
		return false, fmt.Errorf("%w: room, user and session are required", errors.ErrValidationFailed)
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}

	for {
		t := r.table(p.RoomID)
		t.mu.Lock()
		if t.pruned {
			// Lost a race against the last leave of this room, take the fresh table.
			t.mu.Unlock()
			continue
		}
		joined, err := r.bindLocked(t, p)
		if joined {
			r.publish(domain.PresenceEvent{RoomID: p.RoomID, UserID: p.UserID, Kind: domain.PresenceJoined})
		}
		r.pruneLocked(t)
		t.mu.Unlock()
		return joined, err
	}
}

func (r *Registry) bindLocked(t *roomTable, p domain.Participant) (bool, error) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	if b, ok := r.sessions[p.SessionID]; ok {
		if b.room == p.RoomID && b.user == p.UserID {
			return false, nil
		}
		return false, fmt.Errorf("%w: session %s is bound to room %d", errors.ErrDuplicateSession, p.SessionID, b.room)
	}
	r.sessions[p.SessionID] = binding{room: p.RoomID, user: p.UserID}
	r.online[p.UserID]++
	t.participants = append(t.participants, p)
	return true, nil
}

// Leave removes the participant bound to the session and prunes its room when empty.
func (r *Registry) Leave(sessionID domain.SessionID) (domain.Participant, error) {
	for {
		r.indexMu.RLock()
		b, ok := r.sessions[sessionID]
		r.indexMu.RUnlock()
		if !ok {
			return domain.Participant{}, fmt.Errorf("%w: %s", errors.ErrSessionNotFound, sessionID)
		}

		r.arenaMu.RLock()
		t := r.rooms[b.room]
		r.arenaMu.RUnlock()
		if t == nil {
			continue
		}

		t.mu.Lock()
		participant, state := r.unbindLocked(t, sessionID, b)
		switch state {
		case unbindDone:
			r.publish(domain.PresenceEvent{RoomID: participant.RoomID, UserID: participant.UserID, Kind: domain.PresenceLeft})
			r.pruneLocked(t)
			t.mu.Unlock()
			return participant, nil
		case unbindRetry:
			t.mu.Unlock()
			continue
		default:
			t.mu.Unlock()
			return domain.Participant{}, fmt.Errorf("%w: %s", errors.ErrSessionNotFound, sessionID)
		}
	}
}

type unbindState int

const (
	unbindDone unbindState = iota
	unbindRetry
	unbindGone
)

func (r *Registry) unbindLocked(t *roomTable, sessionID domain.SessionID, expected binding) (domain.Participant, unbindState) {
	r.indexMu.Lock()
	current, ok := r.sessions[sessionID]
	switch {
	case !ok:
		r.indexMu.Unlock()
		return domain.Participant{}, unbindGone
	case current != expected:
		// The session left and joined another room in between.
		r.indexMu.Unlock()
		return domain.Participant{}, unbindRetry
	}
	delete(r.sessions, sessionID)
	if r.online[current.user]--; r.online[current.user] <= 0 {
		delete(r.online, current.user)
	}
	r.indexMu.Unlock()

	_, idx, found := lo.FindIndexOf(t.participants, func(p domain.Participant) bool {
		return p.SessionID == sessionID
	})
	if !found {
		r.log.Error("Session indexed but missing from its room", "session_id", sessionID, "room_id", t.id)
		return domain.Participant{}, unbindGone
	}
	participant := t.participants[idx]
	t.participants = append(t.participants[:idx:idx], t.participants[idx+1:]...)
	return participant, unbindDone
}

// pruneLocked removes an empty table from the arena. Must be called with t.mu held.
func (r *Registry) pruneLocked(t *roomTable) {
	if t.pruned || len(t.participants) > 0 {
		return
	}
	t.pruned = true
	r.arenaMu.Lock()
	if r.rooms[t.id] == t {
		delete(r.rooms, t.id)
	}
	r.arenaMu.Unlock()
}

// table returns the table of a room, creating it on first join.
func (r *Registry) table(roomID domain.RoomID) *roomTable {
	r.arenaMu.RLock()
	t, ok := r.rooms[roomID]
	r.arenaMu.RUnlock()
	if ok {
		return t
	}

	r.arenaMu.Lock()
	defer r.arenaMu.Unlock()
	if t, ok = r.rooms[roomID]; ok {
		return t
	}
	t = &roomTable{id: roomID}
	r.rooms[roomID] = t
	return t
}

func (r *Registry) existing(roomID domain.RoomID) *roomTable {
	r.arenaMu.RLock()
	defer r.arenaMu.RUnlock()
	return r.rooms[roomID]
}

// ListParticipants returns a snapshot of the room in join order.
func (r *Registry) ListParticipants(roomID domain.RoomID) []domain.Participant {
	t := r.existing(roomID)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.pruned {
		return nil
	}
	out := make([]domain.Participant, len(t.participants))
	copy(out, t.participants)
	return out
}

// FindSession returns every session the user holds in the room, in join order.
func (r *Registry) FindSession(roomID domain.RoomID, userID domain.UserID) []domain.SessionID {
	t := r.existing(roomID)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.FilterMap(t.participants, func(p domain.Participant, _ int) (domain.SessionID, bool) {
		return p.SessionID, p.UserID == userID
	})
}

// Lookup resolves the participant bound to a session.
func (r *Registry) Lookup(sessionID domain.SessionID) (domain.Participant, bool) {
	r.indexMu.RLock()
	b, ok := r.sessions[sessionID]
	r.indexMu.RUnlock()
	if !ok {
		return domain.Participant{}, false
	}
	t := r.existing(b.room)
	if t == nil {
		return domain.Participant{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.Find(t.participants, func(p domain.Participant) bool {
		return p.SessionID == sessionID
	})
}

// IsOnline reports whether the user holds a session in any room.
func (r *Registry) IsOnline(userID domain.UserID) bool {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	return r.online[userID] > 0
}

func (r *Registry) RoomExists(roomID domain.RoomID) bool {
	return r.existing(roomID) != nil
}

func (r *Registry) Stats() RegistryStats {
	r.arenaMu.RLock()
	rooms := len(r.rooms)
	r.arenaMu.RUnlock()
	r.indexMu.RLock()
	sessions := len(r.sessions)
	r.indexMu.RUnlock()
	return RegistryStats{Rooms: rooms, Sessions: sessions, DroppedPresence: r.dropped.Load()}
}

// publish never blocks: a registry mutation must complete in bounded time.
func (r *Registry) publish(evt domain.PresenceEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- evt:
	default:
		r.dropped.Add(1)
		r.log.Warn("Presence channel full, dropping event",
			"room_id", evt.RoomID, "user_id", evt.UserID, "kind", evt.Kind)
	}
}
