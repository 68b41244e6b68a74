package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"study-relay/domain"
	"sync"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	RelayAddr string `env:"RELAY_ADDR,default=localhost:8080"`
	RoomID    int64  `env:"RELAY_ROOM_ID,default=1"`
	UserID    string `env:"RELAY_USER_ID,required=true"`
	Nickname  string `env:"RELAY_NICKNAME"`
	Token     string `env:"RELAY_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// peer is one terminal participant. It chats through the relay and opens a
// WebRTC data channel with whoever it calls or whoever calls it.
type peer struct {
	log        *slog.Logger
	conn       *websocket.Conn
	wsMu       sync.Mutex
	iceServers []webrtc.ICEServer

	mu  sync.Mutex
	pcs map[domain.UserID]*webrtc.PeerConnection
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if config.Nickname == "" {
		config.Nickname = config.UserID
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iceServers, err := fetchICEServers(config.RelayAddr)
	if err != nil {
		log.Warn("No ICE servers from the relay, using host candidates only", "error", err)
	}

	query := url.Values{}
	if config.Token != "" {
		query.Set("token", config.Token)
	} else {
		query.Set("user_id", config.UserID)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+config.RelayAddr+"/ws?"+query.Encode(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to relay at %s: %w", config.RelayAddr, err)
	}
	p := &peer{log: log, conn: conn, iceServers: iceServers, pcs: make(map[domain.UserID]*webrtc.PeerConnection)}
	defer p.close()

	roomID := domain.RoomID(config.RoomID)
	p.send("join", domain.JoinRequest{RoomID: roomID, Nickname: config.Nickname})
	pterm.Info.Printfln("Connected to %s, room %d. Type to chat, /call <user>, /leave, /quit", config.RelayAddr, roomID)

	errCh := make(chan error, 1)
	go func() { errCh <- p.readLoop() }()
	go p.inputLoop(roomID, stop)

	select {
	case <-ctx.Done():
		pterm.Info.Println("Stopping client...")
		return exitOK, nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return exitOK, nil
		}
		return exitRuntime, fmt.Errorf("relay connection lost: %w", err)
	}
}

func fetchICEServers(addr string) ([]webrtc.ICEServer, error) {
	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + addr + "/webrtc/ice")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.ICEServers, nil
}

func (p *peer) send(event string, data any) {
	p.wsMu.Lock()
	defer p.wsMu.Unlock()
	if err := p.conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		p.log.Debug("Send failed", "event", event, "error", err)
	}
}

func (p *peer) inputLoop(roomID domain.RoomID, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			quit()
			return
		case line == "/leave":
			p.send("leave", nil)
		case strings.HasPrefix(line, "/call "):
			if err := p.call(domain.UserID(strings.TrimSpace(strings.TrimPrefix(line, "/call ")))); err != nil {
				pterm.Error.Println(err)
			}
		default:
			p.send("message", domain.SendMessagePayload{RoomID: roomID, Content: line, Type: domain.MessageText})
		}
	}
}

func (p *peer) readLoop() error {
	for {
		var f frame
		if err := p.conn.ReadJSON(&f); err != nil {
			return err
		}
		switch domain.FrameEvent(f.Event) {
		case domain.FrameJoined:
			var ack domain.JoinedAck
			_ = json.Unmarshal(f.Data, &ack)
			pterm.Success.Printfln("Joined room %d with %d participant(s)", ack.RoomID, len(ack.Participants))
		case domain.FrameChat:
			var msg domain.WireChatMessage
			_ = json.Unmarshal(f.Data, &msg)
			pterm.Printfln("[%s] %s: %s", msg.Timestamp.Local().Format(time.TimeOnly), msg.SenderID, msg.Content)
		case domain.FramePresence:
			var evt domain.PresenceEvent
			_ = json.Unmarshal(f.Data, &evt)
			pterm.Info.Printfln("%s %s", evt.UserID, strings.ToLower(string(evt.Kind)))
		case domain.FrameSignal:
			var envelope domain.SignalEnvelope
			if err := json.Unmarshal(f.Data, &envelope); err == nil {
				if err := p.onSignal(envelope); err != nil {
					pterm.Warning.Printfln("Signal from %s failed: %v", envelope.SenderID, err)
				}
			}
		case domain.FrameLeft:
			pterm.Info.Println("Left the room")
		case domain.FrameError:
			var rejection domain.Rejection
			_ = json.Unmarshal(f.Data, &rejection)
			pterm.Error.Printfln("%s: %s", rejection.Code, rejection.Message)
		}
	}
}

// peerConnection returns the connection with remote, creating it on first use.
func (p *peer) peerConnection(remote domain.UserID) (*webrtc.PeerConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pc, ok := p.pcs[remote]; ok {
		return pc, nil
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: p.iceServers})
	if err != nil {
		return nil, err
	}
	// Trickle ICE candidates through the relay
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := domain.CandidatePayload(c.ToJSON()).Raw()
		if err != nil {
			return
		}
		p.send("signal", domain.SignalEnvelope{Type: domain.SignalICECandidate, Payload: payload, ReceiverID: remote})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("Peer connection state", "remote", remote, "state", state.String())
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) { p.attach(remote, dc) })
	p.pcs[remote] = pc
	return pc, nil
}

func (p *peer) attach(remote domain.UserID, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		pterm.Success.Printfln("Direct channel open with %s", remote)
		_ = dc.SendText("hello from a peer")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		pterm.Printfln("(p2p) %s: %s", remote, string(msg.Data))
	})
}

func (p *peer) call(remote domain.UserID) error {
	pc, err := p.peerConnection(remote)
	if err != nil {
		return err
	}
	dc, err := pc.CreateDataChannel("study", nil)
	if err != nil {
		return err
	}
	p.attach(remote, dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	payload, err := domain.DescriptionPayload(offer).Raw()
	if err != nil {
		return err
	}
	p.send("signal", domain.SignalEnvelope{Type: domain.SignalOffer, Payload: payload, ReceiverID: remote})
	return nil
}

func (p *peer) onSignal(envelope domain.SignalEnvelope) error {
	var payload domain.SignalPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return err
	}
	pc, err := p.peerConnection(envelope.SenderID)
	if err != nil {
		return err
	}

	switch envelope.Type {
	case domain.SignalOffer:
		desc, err := payload.SessionDescription()
		if err != nil {
			return err
		}
		if err := pc.SetRemoteDescription(desc); err != nil {
			return fmt.Errorf("SetRemoteDescription: %w", err)
		}
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("CreateAnswer: %w", err)
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("SetLocalDescription: %w", err)
		}
		raw, err := domain.DescriptionPayload(answer).Raw()
		if err != nil {
			return err
		}
		p.send("signal", domain.SignalEnvelope{Type: domain.SignalAnswer, Payload: raw, ReceiverID: envelope.SenderID})
		pterm.Info.Printfln("Answering call from %s", envelope.SenderID)
	case domain.SignalAnswer:
		desc, err := payload.SessionDescription()
		if err != nil {
			return err
		}
		return pc.SetRemoteDescription(desc)
	case domain.SignalICECandidate:
		return pc.AddICECandidate(payload.ICECandidateInit())
	}
	return nil
}

func (p *peer) close() {
	p.mu.Lock()
	for _, pc := range p.pcs {
		_ = pc.Close()
	}
	p.mu.Unlock()
	p.send("leave", nil)
	_ = p.conn.Close()
}
