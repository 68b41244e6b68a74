package domain

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "iceCandidate"
)

func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	default:
		return false
	}
}

// SignalEnvelope is the signaling wire shape. Payload is relayed byte for byte.
type SignalEnvelope struct {
	Type       SignalType      `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	SenderID   UserID          `json:"senderId"`
	ReceiverID UserID          `json:"receiverId"`
}

// SignalMessage is a signaling envelope bound to the room of the sending session.
// It is transient and never persisted.
type SignalMessage struct {
	RoomID        RoomID
	SenderSession SessionID
	Envelope      SignalEnvelope
}

// SignalPayload is the payload shape browsers exchange. Fields irrelevant to
// the signal type are present but null or empty.
type SignalPayload struct {
	Type          string  `json:"type"`
	SDP           string  `json:"sdp"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// DescriptionPayload builds the payload of an offer or an answer.
func DescriptionPayload(desc webrtc.SessionDescription) SignalPayload {
	return SignalPayload{Type: desc.Type.String(), SDP: desc.SDP}
}

// CandidatePayload builds the payload of an ICE candidate.
func CandidatePayload(init webrtc.ICECandidateInit) SignalPayload {
	return SignalPayload{
		Type:          string(SignalICECandidate),
		Candidate:     init.Candidate,
		SDPMid:        init.SDPMid,
		SDPMLineIndex: init.SDPMLineIndex,
	}
}

func (p SignalPayload) SessionDescription() (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(p.Type)
	switch t {
	case webrtc.SDPTypeOffer, webrtc.SDPTypeAnswer:
		return webrtc.SessionDescription{Type: t, SDP: p.SDP}, nil
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", p.Type)
	}
}

func (p SignalPayload) ICECandidateInit() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
}

func (p SignalPayload) Raw() (json.RawMessage, error) {
	return json.Marshal(p)
}
