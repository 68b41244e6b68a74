package ws_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"study-relay/auth"
	"study-relay/domain"
	"study-relay/infrastructure/ws"
	"study-relay/mocks"
	"study-relay/runtime"
	"study-relay/runtime/workers"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const secret = "websocket_test_secret"

var config = ws.ServerConfig{
	OutboxSize:      16,
	MaxFrameBytes:   4096,
	FramesPerSecond: 50,
	PingInterval:    time.Second,
}

type outbound struct {
	Event domain.FrameEvent `json:"event"`
	Data  json.RawMessage   `json:"data"`
}

func token(t *testing.T, userID string) string {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func startRelay(t *testing.T) *httptest.Server {
	ctrl := gomock.NewController(t)
	log := slog.New(slog.DiscardHandler)
	gate := mocks.NewMockLifecycleGate(ctrl)
	store := mocks.NewMockChatStore(ctrl)
	gate.EXPECT().Allows(gomock.Any(), gomock.Any(), gomock.Any()).Return(true).AnyTimes()
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	hub := ws.NewHub(log)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond),
		runtime.Dependencies{Gate: gate, Store: store, Sender: hub},
		runtime.Config{BufferSize: 100, DeliveryTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go orchestrator.Start(ctx)

	server := httptest.NewServer(ws.NewServer(log, orchestrator, hub, auth.NewVerifier(secret), config))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return server
}

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// expect reads frames until one carries the wanted event.
func expect(t *testing.T, conn *websocket.Conn, event domain.FrameEvent) outbound {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame outbound
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event == event {
			return frame
		}
	}
}

func TestServer_Offer_Relay_Between_Browsers(t *testing.T) {
	req := require.New(t)
	server := startRelay(t)

	// Given alice and bob joined room 42
	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")
	send(t, alice, "join", domain.JoinRequest{RoomID: 42, Nickname: "Alice"})
	expect(t, alice, domain.FrameJoined)
	send(t, bob, "join", domain.JoinRequest{RoomID: 42, Nickname: "Bob"})
	joined := expect(t, bob, domain.FrameJoined)

	var ack domain.JoinedAck
	req.NoError(json.Unmarshal(joined.Data, &ack))
	req.Len(ack.Participants, 2)

	// When alice sends her offer to bob
	payload, err := domain.DescriptionPayload(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}).Raw()
	req.NoError(err)
	send(t, alice, "signal", domain.SignalEnvelope{Type: domain.SignalOffer, Payload: payload, ReceiverID: "bob"})

	// Then bob gets it with alice as sender and the payload unchanged
	frame := expect(t, bob, domain.FrameSignal)
	var envelope domain.SignalEnvelope
	req.NoError(json.Unmarshal(frame.Data, &envelope))
	req.Equal(domain.SignalOffer, envelope.Type)
	req.Equal(domain.UserID("alice"), envelope.SenderID)
	req.Equal(domain.UserID("bob"), envelope.ReceiverID)
	req.JSONEq(string(payload), string(envelope.Payload))

	var sdp domain.SignalPayload
	req.NoError(json.Unmarshal(envelope.Payload, &sdp))
	desc, err := sdp.SessionDescription()
	req.NoError(err)
	req.Equal(webrtc.SDPTypeOffer, desc.Type)

	// When alice's browser goes away
	req.NoError(alice.Close())

	// Then bob sees her leave
	for {
		presence := expect(t, bob, domain.FramePresence)
		var evt domain.PresenceEvent
		req.NoError(json.Unmarshal(presence.Data, &evt))
		if evt.UserID == "alice" && evt.Kind == domain.PresenceLeft {
			break
		}
	}
}

func TestServer_Chat_And_Receipt(t *testing.T) {
	req := require.New(t)
	server := startRelay(t)
	alice := dial(t, server, "alice")
	send(t, alice, "join", domain.JoinRequest{RoomID: 7, Nickname: "Alice"})
	expect(t, alice, domain.FrameJoined)

	send(t, alice, "message", domain.SendMessagePayload{RoomID: 7, Content: "hello", Type: domain.MessageText})

	chat := expect(t, alice, domain.FrameChat)
	var message map[string]any
	req.NoError(json.Unmarshal(chat.Data, &message))
	req.ElementsMatch([]string{"roomId", "senderId", "content", "type", "timestamp"}, keys(message))
	req.Equal("hello", message["content"])
	req.Equal("alice", message["senderId"])
}

func TestServer_Rejections(t *testing.T) {
	req := require.New(t)
	server := startRelay(t)
	alice := dial(t, server, "alice")

	// Malformed frames are answered, not fatal
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"event":"join"`)))
	frame := expect(t, alice, domain.FrameError)
	var rejection domain.Rejection
	req.NoError(json.Unmarshal(frame.Data, &rejection))
	req.Equal("ValidationFailed", rejection.Code)

	// Signaling before joining a room
	send(t, alice, "signal", domain.SignalEnvelope{Type: domain.SignalOffer, Payload: json.RawMessage(`{}`), ReceiverID: "bob"})
	frame = expect(t, alice, domain.FrameError)
	req.NoError(json.Unmarshal(frame.Data, &rejection))
	req.Equal("NotParticipant", rejection.Code)

	// Oversized frames close the connection
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", int(config.MaxFrameBytes)+1))))
	req.NoError(alice.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			break
		}
	}
}

func TestServer_Unauthorized(t *testing.T) {
	req := require.New(t)
	server := startRelay(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=forged"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Disconnect_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := slog.New(slog.DiscardHandler)
	handler := mocks.NewMockEventHandler(ctrl)
	done := make(chan domain.Identity, 2)

	handler.EXPECT().Handle(gomock.Any(), gomock.Any(), domain.Disconnect{}).
		DoAndReturn(func(_ context.Context, identity domain.Identity, _ domain.InboundEvent) (domain.Frame, error) {
			done <- identity
			return domain.Frame{}, nil
		}).Times(1)

	server := httptest.NewServer(ws.NewServer(log, handler, ws.NewHub(log), auth.NewVerifier(""), config))
	defer server.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?user_id=carol", nil)
	req.NoError(err)

	// When the client closes
	req.NoError(conn.Close())

	// Then the relay is told once, with the authenticated user
	select {
	case identity := <-done:
		req.Equal(domain.UserID("carol"), identity.UserID)
		req.NotEmpty(identity.SessionID)
	case <-time.After(2 * time.Second):
		req.Fail("disconnect was not reported")
	}
	time.Sleep(50 * time.Millisecond)
	req.Empty(done)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
