package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"wrapped validation", fmt.Errorf("%w: content too long", ErrValidationFailed), "ValidationFailed"},
		{"unknown frame", ErrUnknownFrame, "ValidationFailed"},
		{"not participant", ErrSenderNotParticipant, "NotParticipant"},
		{"room closed", ErrRoomClosed, "RoomClosed"},
		{"receiver not in room", ErrReceiverNotInRoom, "ReceiverNotInRoom"},
		{"receiver not found", ErrReceiverNotFound, "ReceiverNotFound"},
		{"storage", fmt.Errorf("%w: %v", ErrStorageFailure, context.DeadlineExceeded), "StorageFailure"},
		{"duplicate", ErrDuplicateSession, "DuplicateSession"},
		{"not found", ErrSessionNotFound, "NotFound"},
		{"anything else", context.Canceled, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Code(tt.err))
		})
	}
}

func TestReceiverNotInRoom_IsReceiverNotFound(t *testing.T) {
	req := require.New(t)
	req.True(stderrors.Is(ErrReceiverNotInRoom, ErrReceiverNotFound))
	req.False(stderrors.Is(ErrReceiverNotFound, ErrReceiverNotInRoom))
}
