package internal

import (
	"fmt"
	"time"
)

type Config struct {
	BufferSize           int           `env:"BUFFER_SIZE,default=1000"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	GateTimeout          time.Duration `env:"GATE_TIMEOUT,default=500ms"`
	GateCacheTTL         time.Duration `env:"GATE_CACHE_TTL,default=2s"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=100ms"` // deadline of a broadcast, for senders that can block
	StatsInterval        time.Duration `env:"STATS_INTERVAL,default=30s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=8080"`
	GrpcPort             int           `env:"GRPC_PORT,default=9090"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
	LimitMessages        int           `env:"LIMIT_MESSAGES,default=50"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	JwtSecret            string        `env:"JWT_SECRET"`
	MaxFrameBytes        int64         `env:"MAX_FRAME_BYTES,default=65536"`
	MaxFramesPerSecond   float64       `env:"MAX_FRAMES_PER_SECOND,default=20"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=20s"`
	ICEServers           string        `env:"ICE_SERVERS"`
}

func (c Config) Validate() error {
	if c.BufferSize <= 0 || c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE and CONNECTION_BUFFER_SIZE must be positive")
	}
	if c.GateTimeout <= 0 || c.DeliveryTimeout <= 0 {
		return fmt.Errorf("GATE_TIMEOUT and DELIVERY_TIMEOUT must be positive")
	}
	if c.MaxFrameBytes <= 0 || c.MaxFramesPerSecond <= 0 {
		return fmt.Errorf("MAX_FRAME_BYTES and MAX_FRAMES_PER_SECOND must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("PING_INTERVAL must be positive")
	}
	if c.LimitMessages <= 0 {
		return fmt.Errorf("LIMIT_MESSAGES must be positive")
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
