package ws

import (
	"encoding/json"
	"fmt"
	"study-relay/domain"
	"study-relay/errors"
)

const (
	inboundJoin    = "join"
	inboundMessage = "message"
	inboundSignal  = "signal"
	inboundLeave   = "leave"
)

// inboundFrame is {"event": ..., "data": {...}} as sent by browsers.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeInbound turns one text frame into a typed inbound event.
func DecodeInbound(raw []byte) (domain.InboundEvent, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: malformed frame: %w", errors.ErrValidationFailed, err)
	}

	switch frame.Event {
	case inboundJoin:
		var req domain.JoinRequest
		return req, decodeData(frame, &req)
	case inboundMessage:
		var payload domain.SendMessagePayload
		return payload, decodeData(frame, &payload)
	case inboundSignal:
		var envelope domain.SignalEnvelope
		if err := decodeData(frame, &envelope); err != nil {
			return nil, err
		}
		return domain.SignalRequest{Envelope: envelope}, nil
	case inboundLeave:
		return domain.LeaveRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownFrame, frame.Event)
	}
}

func decodeData(frame inboundFrame, target any) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("%w: %s frame without data", errors.ErrValidationFailed, frame.Event)
	}
	if err := json.Unmarshal(frame.Data, target); err != nil {
		return fmt.Errorf("%w: malformed %s data: %w", errors.ErrValidationFailed, frame.Event, err)
	}
	return nil
}
