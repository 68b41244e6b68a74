package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Frame is the outbound wire shape, data left raw for the assertions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration and skips without a relay.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR is not set")
	}
}

func (s *BaseRelaySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Browser opens an authenticated websocket for userID.
func (s *BaseRelaySuite) Browser(userID string) *websocket.Conn {
	query := url.Values{}
	if s.Config.JwtSecret == "" {
		query.Set("user_id", userID)
	} else {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": userID,
			"exp":     time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(s.Config.JwtSecret))
		s.Require().NoError(err)
		query.Set("token", token)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Config.RelayAddr+"/ws?"+query.Encode(), nil)
	s.Require().NoError(err, "Failed to open websocket for "+userID)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *BaseRelaySuite) Send(conn *websocket.Conn, event string, data any) {
	frame := map[string]any{"event": event, "data": data}
	s.debug("SEND", frame)
	s.Require().NoError(conn.WriteJSON(frame))
}

// Expect reads frames until one carries the wanted event.
func (s *BaseRelaySuite) Expect(conn *websocket.Conn, event string, target any) {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	for {
		var frame Frame
		s.Require().NoError(conn.ReadJSON(&frame), "Waiting for "+event)
		s.debug("RECV", frame)
		if frame.Event != event {
			continue
		}
		if target != nil {
			s.Require().NoError(json.Unmarshal(frame.Data, target))
		}
		return
	}
}

func (s *BaseRelaySuite) GetJSON(path string, target any) int {
	resp, err := http.Get("http://" + s.Config.RelayAddr + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if target != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

// WithHealth provides a gRPC health client with logging of every call.
func (s *BaseRelaySuite) WithHealth(fn func(ctx context.Context, client healthpb.HealthClient)) {
	marshaler := protojson.MarshalOptions{UseProtoNames: true, Multiline: true, EmitUnpopulated: true}
	conn, err := grpc.NewClient(s.Config.RelayGrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON && err == nil {
				fmt.Fprintln(&logBuilder, "\nRESPONSE:")
				fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
			}
			s.T().Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.RelayGrpcAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}

func (s *BaseRelaySuite) debug(direction string, v any) {
	if !s.Config.DebugJSON {
		return
	}
	body, _ := json.MarshalIndent(v, "", "  ")
	line := fmt.Sprintf("%s %s", direction, body)
	if s.Config.Colours {
		line = color.FgCyan.Render(line)
	}
	s.T().Log(line)
}
