package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"study-relay/domain"
	"study-relay/errors"
	"study-relay/mocks"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	registry *Registry
	sender   *mocks.MockSessionSender
	evictor  *mocks.MockEvictor
	router   *Router
}

func newRouterFixture(t *testing.T) routerFixture {
	ctrl := gomock.NewController(t)
	registry := NewRegistry(slog.New(slog.DiscardHandler), nil)
	sender := mocks.NewMockSessionSender(ctrl)
	evictor := mocks.NewMockEvictor(ctrl)
	return routerFixture{
		registry: registry,
		sender:   sender,
		evictor:  evictor,
		router:   NewRouter(slog.New(slog.DiscardHandler), registry, sender, evictor),
	}
}

func (f routerFixture) join(t *testing.T, p domain.Participant) {
	_, err := f.registry.Join(p)
	require.NoError(t, err)
}

func offerPayload(t *testing.T) json.RawMessage {
	raw, err := domain.DescriptionPayload(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  "v=0\r\no=- 46117317 2 IN IP4 127.0.0.1\r\ns=-\r\n",
	}).Raw()
	require.NoError(t, err)
	return raw
}

func TestRouter_Route_Offer_Reaches_Receiver_Only(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := newParticipant(42, "alice")
	bob := newParticipant(42, "bob")
	carol := newParticipant(42, "carol")
	f.join(t, alice)
	f.join(t, bob)
	f.join(t, carol)
	payload := offerPayload(t)

	// Then bob receives the offer with the payload untouched
	f.sender.EXPECT().Send(gomock.Any(), bob.SessionID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.SessionID, frame domain.Frame) error {
			req.Equal(domain.FrameSignal, frame.Event)
			envelope := frame.Data.(domain.SignalEnvelope)
			req.Equal(domain.SignalOffer, envelope.Type)
			req.Equal(domain.UserID("alice"), envelope.SenderID)
			req.Equal(domain.UserID("bob"), envelope.ReceiverID)
			req.Equal([]byte(payload), []byte(envelope.Payload))
			return nil
		})
	// And nobody else does
	f.sender.EXPECT().Send(gomock.Any(), carol.SessionID, gomock.Any()).Times(0)
	f.sender.EXPECT().Send(gomock.Any(), alice.SessionID, gomock.Any()).Times(0)

	// When alice sends an offer to bob in room 42
	err := f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: alice.SessionID,
		Envelope:      domain.SignalEnvelope{Type: domain.SignalOffer, Payload: payload, SenderID: "alice", ReceiverID: "bob"},
	})

	req.NoError(err)
	req.Equal(RouterStats{Relayed: 1}, f.router.Stats())
}

func TestRouter_Route_Every_Device_Of_Receiver(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := newParticipant(42, "alice")
	bobLaptop := newParticipant(42, "bob")
	bobPhone := newParticipant(42, "bob")
	f.join(t, alice)
	f.join(t, bobLaptop)
	f.join(t, bobPhone)

	gomock.InOrder(
		f.sender.EXPECT().Send(gomock.Any(), bobLaptop.SessionID, gomock.Any()).Return(nil),
		f.sender.EXPECT().Send(gomock.Any(), bobPhone.SessionID, gomock.Any()).Return(nil),
	)

	err := f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: alice.SessionID,
		Envelope:      domain.SignalEnvelope{Type: domain.SignalICECandidate, Payload: json.RawMessage(`{"candidate":"c"}`), ReceiverID: "bob"},
	})

	req.NoError(err)
}

func TestRouter_Route_Receiver_In_Another_Room(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := newParticipant(42, "alice")
	f.join(t, alice)
	// Given bob is connected, but to room 7
	f.join(t, newParticipant(7, "bob"))
	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: alice.SessionID,
		Envelope:      domain.SignalEnvelope{Type: domain.SignalAnswer, Payload: json.RawMessage(`{}`), ReceiverID: "bob"},
	})

	// Then the signal is dropped
	req.ErrorIs(err, errors.ErrReceiverNotInRoom)
	req.ErrorIs(err, errors.ErrReceiverNotFound)
	req.Equal(RouterStats{Dropped: 1}, f.router.Stats())
}

func TestRouter_Route_Receiver_Offline(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := newParticipant(42, "alice")
	f.join(t, alice)

	err := f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: alice.SessionID,
		Envelope:      domain.SignalEnvelope{Type: domain.SignalOffer, Payload: json.RawMessage(`{}`), ReceiverID: "bob"},
	})

	req.ErrorIs(err, errors.ErrReceiverNotFound)
	req.NotErrorIs(err, errors.ErrReceiverNotInRoom)
}

func TestRouter_Route_Sender_Not_In_Room(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	mallory := newParticipant(7, "mallory")
	f.join(t, mallory)
	f.join(t, newParticipant(42, "bob"))
	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: mallory.SessionID,
		Envelope:      domain.SignalEnvelope{Type: domain.SignalOffer, Payload: json.RawMessage(`{}`), ReceiverID: "bob"},
	})

	req.ErrorIs(err, errors.ErrSenderNotParticipant)
}

func TestRouter_Route_Rejects_Unknown_Type(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := newParticipant(42, "alice")
	f.join(t, alice)
	f.join(t, newParticipant(42, "bob"))

	err := f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: alice.SessionID,
		Envelope:      domain.SignalEnvelope{Type: "renegotiate", Payload: json.RawMessage(`{}`), ReceiverID: "bob"},
	})

	req.ErrorIs(err, errors.ErrValidationFailed)
}

func TestRouter_Route_All_Pushes_Failed(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := newParticipant(42, "alice")
	bob := newParticipant(42, "bob")
	f.join(t, alice)
	f.join(t, bob)

	// Given bob's connection is already closed
	f.sender.EXPECT().Send(gomock.Any(), bob.SessionID, gomock.Any()).Return(errors.ErrSessionClosed)
	// Then bob is evicted and alice learns the signal went nowhere
	f.evictor.EXPECT().Evict(bob.SessionID, errors.ErrSessionClosed)

	err := f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: alice.SessionID,
		Envelope:      domain.SignalEnvelope{Type: domain.SignalOffer, Payload: json.RawMessage(`{}`), ReceiverID: "bob"},
	})

	req.ErrorIs(err, errors.ErrReceiverNotFound)
}

func TestRouter_Route_To_Own_Other_Device(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	laptop := newParticipant(42, "alice")
	phone := newParticipant(42, "alice")
	f.join(t, laptop)

	// Given alice has a single session, signaling herself goes nowhere
	err := f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: laptop.SessionID,
		Envelope:      domain.SignalEnvelope{Type: domain.SignalOffer, Payload: json.RawMessage(`{}`), ReceiverID: "alice"},
	})
	req.ErrorIs(err, errors.ErrReceiverNotFound)
	req.NotErrorIs(err, errors.ErrReceiverNotInRoom)

	// When her phone joins, it receives the signal and the laptop does not
	f.join(t, phone)
	f.sender.EXPECT().Send(gomock.Any(), phone.SessionID, gomock.Any()).Return(nil)

	err = f.router.Route(context.Background(), domain.SignalMessage{
		RoomID:        42,
		SenderSession: laptop.SessionID,
		Envelope:      domain.SignalEnvelope{Type: domain.SignalOffer, Payload: json.RawMessage(`{}`), ReceiverID: "alice"},
	})
	req.NoError(err)
}
