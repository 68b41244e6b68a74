// Package domain contains core concepts of the relay.
// This file defines Participant entities and the session identity
// handed over by the transport once it has authenticated a connection.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type UserID string

type SessionID string

// Identity is an already-authenticated (user, session) pair.
type Identity struct {
	UserID    UserID
	SessionID SessionID
}

// Participant is one live (room, user, session) binding.
type Participant struct {
	RoomID    RoomID    `json:"roomId"`
	UserID    UserID    `json:"userId"`
	Nickname  string    `json:"nickname"`
	SessionID SessionID `json:"sessionId"`
	JoinedAt  time.Time `json:"joinedAt"`
}
