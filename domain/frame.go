package domain

type FrameEvent string

const (
	FrameChat     FrameEvent = "chat"
	FrameSignal   FrameEvent = "signal"
	FramePresence FrameEvent = "presence"
	FrameReceipt  FrameEvent = "receipt"
	FrameJoined   FrameEvent = "joined"
	FrameLeft     FrameEvent = "left"
	FrameError    FrameEvent = "error"
)

// Frame is an outbound payload pushed to one session.
type Frame struct {
	Event FrameEvent `json:"event"`
	Data  any        `json:"data,omitempty"`
}

// Rejection is the structured error returned to the originating session.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BroadcastResult reports the outcome of one fan-out.
type BroadcastResult struct {
	Recipients int
	Delivered  int
	Failed     []SessionID
}

// JoinedAck answers a join with the room membership, newcomer included.
type JoinedAck struct {
	RoomID       RoomID        `json:"roomId"`
	Participants []Participant `json:"participants"`
	Rejoined     bool          `json:"rejoined,omitempty"`
}

type LeftAck struct {
	RoomID RoomID `json:"roomId"`
}
