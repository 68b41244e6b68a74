// Package domain contains core concepts of the relay.
// This file defines chat Message events and related rules.
// Messages are immutable once dispatched.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageFile  MessageType = "FILE"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	default:
		return false
	}
}

// ChatMessage represents an immutable chat event.
type ChatMessage struct {
	ID        uuid.UUID // unique identifier, storage only
	RoomID    RoomID
	SenderID  UserID
	Content   string
	Type      MessageType
	Timestamp time.Time
}

// WireChatMessage is the outbound chat shape clients depend on.
type WireChatMessage struct {
	RoomID    RoomID      `json:"roomId"`
	SenderID  UserID      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

func (m ChatMessage) Wire() WireChatMessage {
	return WireChatMessage{
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		Timestamp: m.Timestamp,
	}
}

// DeliveryReceipt is returned to the sender once a message is persisted and fanned out.
type DeliveryReceipt struct {
	MessageID  uuid.UUID   `json:"messageId"`
	RoomID     RoomID      `json:"roomId"`
	Timestamp  time.Time   `json:"timestamp"`
	Recipients int         `json:"recipients"`
	Delivered  int         `json:"delivered"`
	Failed     []SessionID `json:"failed,omitempty"`
}

// SearchHit is one message returned by a full-text search.
type SearchHit struct {
	MessageID uuid.UUID   `json:"messageId"`
	RoomID    RoomID      `json:"roomId"`
	SenderID  UserID      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Language  string      `json:"language"`
	Timestamp time.Time   `json:"timestamp"`
}
