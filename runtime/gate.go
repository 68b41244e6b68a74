package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

var _ contract.LifecycleGate = (*Gate)(nil)

// RoomPolicy decides whether an action is permitted in a given group state.
type RoomPolicy func(state domain.GroupState, action domain.Action) bool

// DefaultPolicy denies everything on a closed group and on unknown states.
func DefaultPolicy(state domain.GroupState, action domain.Action) bool {
	switch state {
	case domain.GroupRecruiting, domain.GroupStart:
		return action == domain.ActionJoin || action == domain.ActionMessage
	default:
		return false
	}
}

// Gate answers whether a room currently admits joins or messages.
// Any lookup failure denies.
type Gate struct {
	log     *slog.Logger
	store   contract.GroupStateStore
	policy  RoomPolicy
	timeout time.Duration
	ttl     time.Duration
	cache   *ristretto.Cache[int64, domain.GroupState]
}

// NewGate builds a gate over the group state store. A non positive ttl disables
// the snapshot cache and every call reaches the store.
func NewGate(log *slog.Logger, store contract.GroupStateStore, policy RoomPolicy, timeout, ttl time.Duration) (*Gate, error) {
	if policy == nil {
		policy = DefaultPolicy
	}
	g := &Gate{log: log, store: store, policy: policy, timeout: timeout, ttl: ttl}
	if ttl <= 0 {
		return g, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config[int64, domain.GroupState]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create gate cache: %w", err)
	}
	g.cache = cache
	return g, nil
}

func (g *Gate) Allows(ctx context.Context, roomID domain.RoomID, action domain.Action) bool {
	state, err := g.state(ctx, roomID)
	if err != nil {
		g.log.Warn("Group state unavailable, denying", "room_id", roomID, "action", action, "error", err)
		return false
	}
	allowed := g.policy(state, action)
	if !allowed {
		g.log.Debug("Action denied by room policy", "room_id", roomID, "action", action, "state", state)
	}
	return allowed
}

func (g *Gate) state(ctx context.Context, roomID domain.RoomID) (domain.GroupState, error) {
	if g.cache != nil {
		if state, ok := g.cache.Get(int64(roomID)); ok {
			return state, nil
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		state domain.GroupState
		err   error
	}
	// Buffered so that a store ignoring its context never leaks the goroutine.
	done := make(chan result, 1)
	go func() {
		state, err := g.store.GetState(lookupCtx, roomID)
		done <- result{state: state, err: err}
	}()

	var res result
	select {
	case <-lookupCtx.Done():
		return "", lookupCtx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return "", res.err
	}
	if !res.state.Valid() {
		return "", fmt.Errorf("unknown group state %q", res.state)
	}

	if g.cache != nil {
		g.cache.SetWithTTL(int64(roomID), res.state, 1, g.ttl)
		g.cache.Wait()
	}
	return res.state, nil
}

// Invalidate drops the cached snapshot of a room, the next lookup reaches the store.
func (g *Gate) Invalidate(roomID domain.RoomID) {
	if g.cache != nil {
		g.cache.Del(int64(roomID))
	}
}

func (g *Gate) Close() {
	if g.cache != nil {
		g.cache.Close()
	}
}
