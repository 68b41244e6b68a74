package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrValidationFailed     = fmt.Errorf("validation failed")
	ErrSenderNotParticipant = fmt.Errorf("sender is not a participant of the room")
	ErrRoomClosed           = fmt.Errorf("room is closed")
	ErrReceiverNotFound     = fmt.Errorf("receiver not found")
	ErrReceiverNotInRoom    = fmt.Errorf("%w: receiver is not in the room", ErrReceiverNotFound)
	ErrStorageFailure       = fmt.Errorf("storage failure")
	ErrDuplicateSession     = fmt.Errorf("session already bound")
	ErrSessionNotFound      = fmt.Errorf("session not found")

	ErrSessionClosed = fmt.Errorf("session closed")
	ErrBackpressure  = fmt.Errorf("session outbox full")
	ErrGroupNotFound = fmt.Errorf("group not found")
	ErrUnknownFrame  = fmt.Errorf("unknown frame")
	ErrUnauthorized  = fmt.Errorf("unauthorized")
)

// Code maps an error to the rejection code sent back to the originating session.
// Order matters: ErrReceiverNotInRoom wraps ErrReceiverNotFound.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrValidationFailed), stderrors.Is(err, ErrUnknownFrame):
		return "ValidationFailed"
	case stderrors.Is(err, ErrSenderNotParticipant):
		return "NotParticipant"
	case stderrors.Is(err, ErrRoomClosed):
		return "RoomClosed"
	case stderrors.Is(err, ErrReceiverNotInRoom):
		return "ReceiverNotInRoom"
	case stderrors.Is(err, ErrReceiverNotFound):
		return "ReceiverNotFound"
	case stderrors.Is(err, ErrStorageFailure):
		return "StorageFailure"
	case stderrors.Is(err, ErrDuplicateSession):
		return "DuplicateSession"
	case stderrors.Is(err, ErrSessionNotFound):
		return "NotFound"
	case stderrors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	default:
		return "Internal"
	}
}
