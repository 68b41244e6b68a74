package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"study-relay/auth"
	"study-relay/infrastructure/grpc/server"
	"study-relay/infrastructure/httpserver"
	"study-relay/infrastructure/storage"
	"study-relay/infrastructure/ws"
	"study-relay/internal"
	"study-relay/moderation"
	"study-relay/runtime"
	"study-relay/runtime/workers"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Deferred closes run before the exit code is returned to main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	iceServers, err := internal.ParseICEServers(config.ICEServers)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugPort, endpoint, RelayMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	messageRepository := storage.NewMessageRepository(db, logger, config.LimitMessages)
	groupRepository := storage.NewGroupRepository(db, logger)
	searchIndex := storage.NewSearchIndex(blugeWriter, logger)

	// 3. Gate, moderation and orchestration
	gate, err := runtime.NewGate(logger, groupRepository, runtime.DefaultPolicy, config.GateTimeout, config.GateCacheTTL)
	if err != nil {
		return exitRuntime, fmt.Errorf("gate init failed: %w", err)
	}
	defer gate.Close()

	moderator, err := moderation.NewDefaultModerator(charReplacement, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderation init failed: %w", err)
	}

	hub := ws.NewHub(logger)
	orchestrator := runtime.NewOrchestrator(logger, workers.NewSupervisor(logger, config.RestartInterval),
		runtime.Dependencies{
			Gate:     gate,
			Store:    messageRepository,
			History:  messageRepository,
			Indexer:  searchIndex,
			Searcher: searchIndex,
			States:   groupRepository,
			Sender:   hub,
			Filter:   moderator,
		},
		runtime.Config{
			BufferSize:      config.BufferSize,
			DeliveryTimeout: config.DeliveryTimeout,
			StatsInterval:   config.StatsInterval,
		})

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)
	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		orchestrator.Start(ctx)
	}()

	// 5. Servers (HTTP + websocket, gRPC health)
	verifier := auth.NewVerifier(config.JwtSecret)
	if verifier.DevMode() {
		logger.Warn("JWT_SECRET is empty, trusting the user_id query parameter")
	}
	wsServer := ws.NewServer(logger, orchestrator, hub, verifier, ws.ServerConfig{
		OutboxSize:      config.ConnectionBufferSize,
		MaxFrameBytes:   config.MaxFrameBytes,
		FramesPerSecond: config.MaxFramesPerSecond,
		PingInterval:    config.PingInterval,
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpListener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	httpServer := httpserver.New(logger, address, orchestrator, wsServer, verifier, iceServers)
	go func() {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	healthServer := server.NewHealthServer(logger, grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	go func() {
		if err := healthServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	healthServer.SetServing(true)

	// 6. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 7. Graceful shutdown: stop accepting, then drain the workers
	logger.Info("Shutting down gracefully...")
	healthServer.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	healthServer.GracefulStop()
	orchestrator.Stop()
	stop()
	<-orchestratorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
