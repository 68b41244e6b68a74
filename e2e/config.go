package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_ADDR is host:port of the HTTP/websocket listener. Empty skips the suite.
	RelayAddr     string `envconfig:"RELAY_ADDR"`
	RelayGrpcAddr string `envconfig:"RELAY_GRPC_ADDR" default:"localhost:9090"`
	// JWT_SECRET must match the relay; empty means the relay runs in dev mode
	JwtSecret string `envconfig:"JWT_SECRET"`
	// E2E_DEBUG_JSON dumps every frame and gRPC body as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
