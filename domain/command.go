package domain

// PostMessageCommand is a chat message sending intent.
// SenderSession is optional; when set it must be bound to (RoomID, SenderID).
type PostMessageCommand struct {
	RoomID        RoomID `validate:"gt=0"`
	SenderID      UserID `validate:"required"`
	SenderSession SessionID
	Content       string      `validate:"required,utf8,max=500"`
	Type          MessageType `validate:"required,oneof=TEXT IMAGE FILE"`
}

// JoinRequest asks for the caller's session to enter a room.
type JoinRequest struct {
	RoomID   RoomID `json:"roomId" validate:"gt=0"`
	Nickname string `json:"nickname" validate:"required,utf8,max=64"`
}

// SendMessagePayload is the inbound chat frame sent by a session.
type SendMessagePayload struct {
	RoomID  RoomID      `json:"roomId"`
	Content string      `json:"content"`
	Type    MessageType `json:"type"`
}

// SignalRequest is the inbound signaling frame sent by a session.
type SignalRequest struct {
	Envelope SignalEnvelope
}

// LeaveRequest is an explicit leave sent by a session.
type LeaveRequest struct{}

// Disconnect is raised by the transport when a session's channel closed.
type Disconnect struct{}

// InboundEvent is the closed set of typed events the transport hands to the relay.
type InboundEvent interface {
	inbound()
}

func (JoinRequest) inbound()        {}
func (SendMessagePayload) inbound() {}
func (SignalRequest) inbound()      {}
func (LeaveRequest) inbound()       {}
func (Disconnect) inbound()         {}
