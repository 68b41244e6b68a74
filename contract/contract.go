//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"study-relay/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// SessionSender pushes a frame to one transport session.
// Send must not block: it enqueues or fails with ErrSessionClosed / ErrBackpressure.
type SessionSender interface {
	Send(ctx context.Context, sessionID domain.SessionID, frame domain.Frame) error
}

// GroupStateStore is the read side of the group lifecycle collaborator.
type GroupStateStore interface {
	GetState(ctx context.Context, roomID domain.RoomID) (domain.GroupState, error)
}

// ChatStore persists dispatched chat messages.
type ChatStore interface {
	Append(ctx context.Context, message domain.ChatMessage) error
}

type MessageIndexer interface {
	Index(message domain.ChatMessage) error
}

type ContentFilter interface {
	Censor(content string) string
}

type LifecycleGate interface {
	Allows(ctx context.Context, roomID domain.RoomID, action domain.Action) bool
}

type IRegistry interface {
	Join(participant domain.Participant) (bool, error)
	Leave(sessionID domain.SessionID) (domain.Participant, error)
	ListParticipants(roomID domain.RoomID) []domain.Participant
	FindSession(roomID domain.RoomID, userID domain.UserID) []domain.SessionID
	Lookup(sessionID domain.SessionID) (domain.Participant, bool)
	IsOnline(userID domain.UserID) bool
	RoomExists(roomID domain.RoomID) bool
}

// Evictor schedules the asynchronous removal of a session whose push failed.
type Evictor interface {
	Evict(sessionID domain.SessionID, reason error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, roomID domain.RoomID, frame domain.Frame) domain.BroadcastResult
}

// SessionCleaner performs the at-most-once cleanup of a closed session.
type SessionCleaner interface {
	Disconnect(sessionID domain.SessionID)
}

// GroupStateWriter receives lifecycle transitions pushed by the group platform.
type GroupStateWriter interface {
	SetState(ctx context.Context, roomID domain.RoomID, state domain.GroupState) error
}

// MessageHistory pages through persisted messages, newest first.
type MessageHistory interface {
	GetMessages(roomID domain.RoomID, cursor *string) ([]domain.ChatMessage, *string, error)
}

type MessageSearcher interface {
	Search(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.SearchHit, error)
}

// EventHandler consumes the typed inbound events of authenticated sessions.
// The returned frame, when set, goes back to the originating session only.
type EventHandler interface {
	Handle(ctx context.Context, identity domain.Identity, event domain.InboundEvent) (domain.Frame, error)
}
