// Package transport owns the byte-stream connection to a petanque server and
// splits it into whole messages.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Framing selects how Receive decides that a message is complete.
type Framing string

const (
	// FramingLine ends a message at the first unconsumed newline.
	FramingLine Framing = "line"
	// FramingChunked reads fixed-size chunks and ends the message at the first
	// short chunk. It fails when a message ends exactly on a chunk boundary.
	FramingChunked Framing = "chunked"
)

const (
	defaultChunkSize       = 1024
	defaultMaxMessageBytes = 10 * 1024 * 1024
)

var (
	ErrMessageTooLarge = errors.New("transport: message too large")
	ErrInvalidFraming  = errors.New("transport: invalid framing")
)

// Config controls framing, limits and timeouts of a Conn.
type Config struct {
	Framing         Framing
	ChunkSize       int
	MaxMessageBytes int
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// DefaultConfig returns line framing with a 10 MiB message limit and no read or
// write timeouts.
func DefaultConfig() Config {
	return Config{
		Framing:         FramingLine,
		ChunkSize:       defaultChunkSize,
		MaxMessageBytes: defaultMaxMessageBytes,
		ConnectTimeout:  5 * time.Second,
	}
}

func (c Config) normalized() (Config, error) {
	c.Framing = Framing(strings.ToLower(strings.TrimSpace(string(c.Framing))))
	switch c.Framing {
	case "":
		c.Framing = FramingLine
	case FramingLine, FramingChunked:
	default:
		return c, fmt.Errorf("%w: %q", ErrInvalidFraming, c.Framing)
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = defaultMaxMessageBytes
	}
	return c, nil
}

// TransportError wraps every I/O failure. It is always fatal to the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Fatal marks the error as fatal for protocol.IsFatal.
func (e *TransportError) Fatal() bool { return true }

// Conn is one petanque connection. Send and Receive block; Conn is meant to be
// owned by a single session.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    Config

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a TCP connection to addr.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Err: err}
	}
	return newConn(conn, cfg), nil
}

// New wraps an established connection.
func New(conn net.Conn, cfg Config) (*Conn, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	return newConn(conn, cfg), nil
}

func newConn(conn net.Conn, cfg Config) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, cfg.ChunkSize),
		cfg:    cfg,
	}
}

// Framing returns the framing mode in use.
func (c *Conn) Framing() Framing {
	return c.cfg.Framing
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes the whole payload before returning.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if len(data) > c.cfg.MaxMessageBytes {
		return ErrMessageTooLarge
	}
	if err := c.conn.SetWriteDeadline(deadline(ctx, c.cfg.WriteTimeout)); err != nil {
		return &TransportError{Op: "write", Err: err}
	}

	stop := context.AfterFunc(ctx, func() { c.conn.SetWriteDeadline(time.Unix(1, 0)) })
	defer stop()

	for len(data) > 0 {
		n, err := c.conn.Write(data)
		if err != nil {
			return &TransportError{Op: "write", Err: contextCause(ctx, err)}
		}
		data = data[n:]
	}
	return nil
}

// Receive blocks until one whole message has been read.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline(ctx, c.cfg.ReadTimeout)); err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}

	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	var (
		msg []byte
		err error
	)
	switch c.cfg.Framing {
	case FramingChunked:
		msg, err = c.receiveChunked()
	default:
		msg, err = c.receiveLine()
	}
	if err != nil {
		if errors.Is(err, ErrMessageTooLarge) {
			return nil, &TransportError{Op: "read", Err: err}
		}
		return nil, &TransportError{Op: "read", Err: contextCause(ctx, err)}
	}
	return msg, nil
}

// Close closes the connection. Calling it more than once is safe.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}

func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
