package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/erg0nix/petanque/internal/config"
	"github.com/erg0nix/petanque/internal/gateway"
)

// PIDFileName is the gateway's pid file under the data dir.
const PIDFileName = "gateway.pid"

// PIDFile returns the pid file path for dataDir.
func PIDFile(dataDir string) string {
	return filepath.Join(dataDir, PIDFileName)
}

// RunGateway serves the gateway on cfg.Gateway.Bind until a signal or a
// Shutdown call stops it.
func RunGateway(cfg config.Config, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", cfg.Gateway.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", cfg.Gateway.Bind, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return Serve(ctx, cfg, logger, listener)
}

// Serve runs the gateway on listener until ctx is done or a client asks it
// to shut down. It owns the listener.
func Serve(ctx context.Context, cfg config.Config, logger *slog.Logger, listener net.Listener) error {
	pidFile := PIDFile(cfg.DataDir)
	if err := writePIDFile(pidFile); err != nil {
		logger.Warn("failed to write PID file", "error", err)
	}
	defer os.Remove(pidFile)

	grpcServer := grpc.NewServer()
	shutdownCh, requestShutdown := shutdownSignal()

	handler := gateway.NewServer(cfg.SessionConfig(logger))
	handler.Bind = listener.Addr().String()
	handler.StopFunc = requestShutdown
	defer handler.Close()

	gateway.Register(grpcServer, handler)

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(listener) }()

	logger.Info("gateway listening", "address", handler.Bind, "pet_server", cfg.Address)

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case <-shutdownCh:
		logger.Info("shutdown requested via gateway")
	case err := <-serveErr:
		return fmt.Errorf("gateway: serve: %w", err)
	}

	stopped := make(chan struct{})
	go func() { grpcServer.GracefulStop(); close(stopped) }()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		logger.Warn("drain timeout, forcing shutdown")
		grpcServer.Stop()
	}

	return nil
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write pid file: mkdir: %w", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// shutdownSignal returns a channel and a func that signals it without
// blocking. A request made before anyone receives is kept.
func shutdownSignal() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	return ch, func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
