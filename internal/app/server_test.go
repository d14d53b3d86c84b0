package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/erg0nix/petanque/internal/config"
	"github.com/erg0nix/petanque/internal/gateway"
)

func TestServeWritesPIDAndStopsOnShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), cfg, logger, listener) }()

	client, conn, err := gateway.Dial(listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Bind != listener.Addr().String() || status.State != "unconnected" {
		t.Errorf("status = %+v", status)
	}

	if pid := GatewayPID(cfg.DataDir); pid != os.Getpid() {
		t.Errorf("gateway pid = %d, want %d", pid, os.Getpid())
	}

	if _, err := client.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not stop")
	}

	if _, err := os.Stat(PIDFile(cfg.DataDir)); !os.IsNotExist(err) {
		t.Errorf("pid file not removed: %v", err)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), listener) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not stop")
	}
}

func TestShutdownRequestedBeforeReceiveIsKept(t *testing.T) {
	ch, request := shutdownSignal()
	request()
	request()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("early shutdown request was lost")
	}

	select {
	case <-ch:
		t.Fatal("repeated requests should collapse into one")
	default:
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	if pid := ReadPID(filepath.Join(dir, "missing.pid")); pid != 0 {
		t.Errorf("missing file: pid = %d", pid)
	}

	garbage := filepath.Join(dir, "garbage.pid")
	os.WriteFile(garbage, []byte("not a pid"), 0o644)
	if pid := ReadPID(garbage); pid != 0 {
		t.Errorf("garbage: pid = %d", pid)
	}

	self := filepath.Join(dir, "self.pid")
	os.WriteFile(self, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
	if pid := ReadPID(self); pid != os.Getpid() {
		t.Errorf("self: pid = %d, want %d", pid, os.Getpid())
	}
}
