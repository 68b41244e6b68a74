package domain

type PresenceKind string

const (
	PresenceJoined PresenceKind = "JOINED"
	PresenceLeft   PresenceKind = "LEFT"
)

// PresenceEvent notifies a room that a user joined or left. It is distinct from chat content.
type PresenceEvent struct {
	RoomID RoomID       `json:"roomId"`
	UserID UserID       `json:"userId"`
	Kind   PresenceKind `json:"kind"`
}

// Eviction asks for the removal of a session whose push failed.
type Eviction struct {
	SessionID SessionID
	Reason    error
}
