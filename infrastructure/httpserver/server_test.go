package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"study-relay/auth"
	"study-relay/domain"
	"study-relay/errors"
	"study-relay/mocks"
	"study-relay/runtime"
	"study-relay/runtime/workers"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const secret = "http_test_secret"

type fixture struct {
	baseURL  string
	history  *mocks.MockMessageHistory
	searcher *mocks.MockMessageSearcher
	states   *mocks.MockGroupStateWriter
	gate     *mocks.MockLifecycleGate
	relay    *runtime.Orchestrator
}

func startTestServer(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := slog.New(slog.DiscardHandler)
	f := fixture{
		history:  mocks.NewMockMessageHistory(ctrl),
		searcher: mocks.NewMockMessageSearcher(ctrl),
		states:   mocks.NewMockGroupStateWriter(ctrl),
		gate:     mocks.NewMockLifecycleGate(ctrl),
	}
	f.relay = runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0), runtime.Dependencies{
		Gate:     f.gate,
		History:  f.history,
		Searcher: f.searcher,
		States:   f.states,
		Sender:   mocks.NewMockSessionSender(ctrl),
	}, runtime.Config{})

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	iceServers := []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	srv := New(log, "127.0.0.1:0", f.relay, ws, auth.NewVerifier(secret), iceServers)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	f.baseURL = "http://" + ln.Addr().String()
	return f
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

// getJSON calls url as an authenticated user.
func getJSON(t *testing.T, url string, target any) *http.Response {
	r, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, "alice"))
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()
	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp
}

func TestServer_Probes(t *testing.T) {
	req := require.New(t)
	f := startTestServer(t)

	var health map[string]any
	resp := getJSON(t, f.baseURL+"/healthz", &health)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(true, health["ok"])
	req.NotEmpty(resp.Header.Get("X-Request-ID"))

	var ready struct {
		Ready bool              `json:"ready"`
		Stats domain.RelayStats `json:"stats"`
	}
	resp = getJSON(t, f.baseURL+"/readyz", &ready)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.True(ready.Ready)
	req.Zero(ready.Stats.Rooms)

	var ice struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	getJSON(t, f.baseURL+"/webrtc/ice", &ice)
	req.Len(ice.ICEServers, 1)
	req.Equal([]string{"stun:stun.l.google.com:19302"}, ice.ICEServers[0].URLs)

	resp = getJSON(t, f.baseURL+"/ws", nil)
	req.Equal(http.StatusTeapot, resp.StatusCode)
}

func TestServer_Messages(t *testing.T) {
	req := require.New(t)
	f := startTestServer(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	message := domain.ChatMessage{ID: uuid.New(), RoomID: 3, SenderID: "alice", Content: "hi", Type: domain.MessageText, Timestamp: at}
	next := "msg:3:cursor"

	gomock.InOrder(
		f.history.EXPECT().GetMessages(domain.RoomID(3), nil).Return([]domain.ChatMessage{message}, &next, nil),
		f.history.EXPECT().GetMessages(domain.RoomID(3), &next).Return(nil, nil, nil),
	)

	var page struct {
		Messages []map[string]any `json:"messages"`
		Cursor   *string          `json:"cursor"`
	}
	resp := getJSON(t, f.baseURL+"/rooms/3/messages", &page)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(page.Messages, 1)
	req.Equal(message.ID.String(), page.Messages[0]["messageId"])
	req.Equal("alice", page.Messages[0]["senderId"])
	req.Equal(next, *page.Cursor)

	page.Cursor = nil
	getJSON(t, f.baseURL+"/rooms/3/messages?cursor="+next, &page)
	req.Nil(page.Cursor)

	resp = getJSON(t, f.baseURL+"/rooms/abc/messages", nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Search(t *testing.T) {
	req := require.New(t)
	f := startTestServer(t)
	f.searcher.EXPECT().Search(gomock.Any(), domain.RoomID(3), "graphs", 5).
		Return([]domain.SearchHit{{RoomID: 3, Content: "graphs are fun"}}, nil)

	var body struct {
		Hits []domain.SearchHit `json:"hits"`
	}
	resp := getJSON(t, f.baseURL+"/rooms/3/search?q=graphs&limit=5", &body)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(body.Hits, 1)

	// An empty query never reaches the index
	var rejection domain.Rejection
	resp = getJSON(t, f.baseURL+"/rooms/3/search", &rejection)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal("ValidationFailed", rejection.Code)

	resp = getJSON(t, f.baseURL+"/rooms/3/search?q=x&limit=-1", nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Participants(t *testing.T) {
	req := require.New(t)
	f := startTestServer(t)
	f.gate.EXPECT().Allows(gomock.Any(), domain.RoomID(9), domain.ActionJoin).Return(true)

	_, err := f.relay.Handle(context.Background(), domain.Identity{UserID: "alice", SessionID: "s1"},
		domain.JoinRequest{RoomID: 9, Nickname: "Alice"})
	req.NoError(err)

	var body struct {
		Participants []domain.Participant `json:"participants"`
	}
	getJSON(t, f.baseURL+"/rooms/9/participants", &body)
	req.Len(body.Participants, 1)
	req.Equal(domain.UserID("alice"), body.Participants[0].UserID)
}

func TestServer_Room_Routes_Require_Token(t *testing.T) {
	f := startTestServer(t)
	// Given no call ever reaches the relay
	f.history.EXPECT().GetMessages(gomock.Any(), gomock.Any()).Times(0)
	f.searcher.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	for _, path := range []string{"/rooms/7/messages", "/rooms/7/search?q=hi", "/rooms/7/participants"} {
		t.Run(path, func(t *testing.T) {
			req := require.New(t)

			// When the room is read without a token
			resp, err := http.Get(f.baseURL + path)
			req.NoError(err)
			_ = resp.Body.Close()

			// Then the request is refused
			req.Equal(http.StatusUnauthorized, resp.StatusCode)
		})
	}

	// And a forged token is refused too
	r, err := http.NewRequest(http.MethodGet, f.baseURL+"/rooms/7/messages", nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Update_State(t *testing.T) {
	req := require.New(t)
	f := startTestServer(t)
	token := signedToken(t, "group-platform")

	put := func(body string, withToken bool) *http.Response {
		r, err := http.NewRequest(http.MethodPut, f.baseURL+"/rooms/4/state", bytes.NewBufferString(body))
		req.NoError(err)
		if withToken {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(r)
		req.NoError(err)
		_ = resp.Body.Close()
		return resp
	}

	// Without a token
	req.Equal(http.StatusUnauthorized, put(`{"state":"CLOSE"}`, false).StatusCode)

	// Unknown state
	req.Equal(http.StatusBadRequest, put(`{"state":"ARCHIVED"}`, true).StatusCode)

	// Store failure
	f.states.EXPECT().SetState(gomock.Any(), domain.RoomID(4), domain.GroupClose).Return(errors.ErrStorageFailure)
	req.Equal(http.StatusServiceUnavailable, put(`{"state":"CLOSE"}`, true).StatusCode)

	// Accepted
	f.states.EXPECT().SetState(gomock.Any(), domain.RoomID(4), domain.GroupClose).Return(nil)
	req.Equal(http.StatusNoContent, put(`{"state":"CLOSE"}`, true).StatusCode)
}

func TestRecoverMiddleware(t *testing.T) {
	req := require.New(t)
	handler := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		recoverMiddleware(slog.New(slog.DiscardHandler)))

	srv := &http.Server{Handler: handler}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusInternalServerError, resp.StatusCode)
}
