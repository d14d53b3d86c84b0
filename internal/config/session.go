package config

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/erg0nix/petanque/internal/session"
	"github.com/erg0nix/petanque/internal/transport"
)

func (c Config) TransportConfig() transport.Config {
	return transport.Config{
		Framing:         transport.Framing(c.Transport.Framing),
		ChunkSize:       c.Transport.ChunkSize,
		MaxMessageBytes: c.Transport.MaxMessageBytes,
		ConnectTimeout:  time.Duration(c.ConnectTimeoutSeconds) * time.Second,
		ReadTimeout:     time.Duration(c.Transport.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:    time.Duration(c.Transport.WriteTimeoutSeconds) * time.Second,
	}
}

func (c Config) SessionConfig(logger *slog.Logger) session.Config {
	return session.Config{
		Address:      c.Address,
		Transport:    c.TransportConfig(),
		Logger:       logger,
		LogRequests:  c.Debug.LogRequests,
		LogResponses: c.Debug.LogResponses,
	}
}

// NewLogger builds the slog logger described by the [log] section.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if c.Debug.LogRequests || c.Debug.LogResponses {
		opts.Level = slog.LevelDebug
	}

	if strings.EqualFold(strings.TrimSpace(c.Log.Format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
