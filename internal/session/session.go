// Package session drives one interactive proof over a petanque connection and
// keeps the stack of prover states produced by successive tactics.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/erg0nix/petanque/internal/protocol"
	"github.com/erg0nix/petanque/internal/transport"
)

// ErrInvalidOperation is returned for caller misuse. It is always returned
// before anything is sent to the server.
var ErrInvalidOperation = errors.New("session: invalid operation")

// State is the lifecycle position of a Session.
type State int

const (
	Unconnected State = iota
	Connected
	Initialized
	ProofInProgress
	ProofFinished
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Initialized:
		return "initialized"
	case ProofInProgress:
		return "proof in progress"
	case ProofFinished:
		return "proof finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Conn is the connection a Session owns.
type Conn interface {
	protocol.Transport
	Close() error
}

// DialFunc opens a connection to addr.
type DialFunc func(ctx context.Context, addr string, cfg transport.Config) (Conn, error)

// Config describes how a Session reaches its server.
type Config struct {
	Address      string
	Transport    transport.Config
	Dial         DialFunc
	Logger       *slog.Logger
	LogRequests  bool
	LogResponses bool
}

// Session is one proof session. It is not safe for concurrent use: the
// protocol has no multiplexing, so callers sharing a Session must serialize.
type Session struct {
	cfg    Config
	logger *slog.Logger

	conn   Conn
	client *protocol.Client

	initialized bool
	env         int

	started bool
	file    string
	thm     string
	stack   []ProofState
}

// New returns an unconnected Session.
func New(cfg Config) *Session {
	if cfg.Dial == nil {
		cfg.Dial = dialTCP
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{cfg: cfg, logger: logger}
}

func dialTCP(ctx context.Context, addr string, cfg transport.Config) (Conn, error) {
	conn, err := transport.Dial(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// With connects a Session, runs fn, and closes the connection on every exit
// path including panics.
func With(ctx context.Context, cfg Config, fn func(*Session) error) (err error) {
	s := New(cfg)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return fn(s)
}

// Connect opens the connection. Every connection starts a fresh id sequence
// and requires a new Init.
func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		return fmt.Errorf("%w: already connected", ErrInvalidOperation)
	}

	conn, err := s.cfg.Dial(ctx, s.cfg.Address, s.cfg.Transport)
	if err != nil {
		return err
	}

	client := protocol.NewClient(conn)
	client.Logger = s.logger
	client.LogRequests = s.cfg.LogRequests
	client.LogResponses = s.cfg.LogResponses

	s.conn = conn
	s.client = client
	s.initialized = false
	s.env = 0
	s.started = false
	s.file, s.thm = "", ""
	s.stack = nil

	s.logger.Info("connected", "address", s.cfg.Address)
	return nil
}

// Close closes the connection. The stack stays readable through History.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.closeConn()
	s.logger.Info("connection closed", "address", s.cfg.Address)
	return err
}

func (s *Session) closeConn() error {
	err := s.conn.Close()
	s.conn = nil
	s.client = nil
	s.initialized = false
	return err
}

// State reports the lifecycle position.
func (s *Session) State() State {
	switch {
	case s.conn == nil:
		return Unconnected
	case !s.initialized:
		return Connected
	case len(s.stack) == 0:
		return Initialized
	case s.stack[len(s.stack)-1].Finished:
		return ProofFinished
	default:
		return ProofInProgress
	}
}

// Env returns the environment handle set by Init.
func (s *Session) Env() int { return s.env }

// File returns the file of the active proof.
func (s *Session) File() string { return s.file }

// Theorem returns the theorem of the active proof.
func (s *Session) Theorem() string { return s.thm }

// LastRequestID returns the id of the last request on the current connection.
func (s *Session) LastRequestID() int {
	if s.client == nil {
		return 0
	}
	return s.client.LastID()
}

// Init creates the prover environment for the workspace at root. It may run
// once per connection.
func (s *Session) Init(ctx context.Context, root string) error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	if s.initialized {
		return fmt.Errorf("%w: environment already initialized", ErrInvalidOperation)
	}

	uri, err := protocol.FileURI(root)
	if err != nil {
		return err
	}

	env, err := s.client.Init(ctx, uri)
	if err != nil {
		return s.fail(err)
	}

	s.env = env
	s.initialized = true
	s.logger.Info("init success", "env", env, "root", uri)
	return nil
}

// Start opens the proof of thm in file and resets the stack to the initial state.
func (s *Session) Start(ctx context.Context, file string, thm string) error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	if !s.initialized {
		return fmt.Errorf("%w: init must run before start", ErrInvalidOperation)
	}

	s.file = file
	s.thm = thm
	s.started = true
	s.stack = s.stack[:0]

	uri, err := protocol.FileURI(file)
	if err != nil {
		return err
	}

	stateID, err := s.client.Start(ctx, s.env, uri, thm)
	if err != nil {
		return s.fail(err)
	}

	s.push(ProofState{ID: stateID, Action: StartAction})
	s.logger.Info("start success", "theorem", thm, "state", stateID)
	return nil
}

// RunTactic runs tac against the current state and pushes the resulting state.
// Tactics are rejected once the current state is a finished proof.
func (s *Session) RunTactic(ctx context.Context, tac string) (protocol.RunResult, error) {
	top, err := s.activeState()
	if err != nil {
		return protocol.RunResult{}, err
	}
	if top.Finished {
		return protocol.RunResult{}, fmt.Errorf("%w: proof already finished", ErrInvalidOperation)
	}

	res, err := s.client.Run(ctx, top.ID, tac)
	if err != nil {
		return protocol.RunResult{}, s.fail(err)
	}

	s.push(ProofState{ID: res.StateID, Action: tac, Finished: res.Finished()})
	s.logger.Info("run tactic", "tactic", tac, "state", res.StateID, "result", res.Kind.String())
	return res, nil
}

// Goals returns the goals of the current state.
func (s *Session) Goals(ctx context.Context) (protocol.Goals, error) {
	top, err := s.activeState()
	if err != nil {
		return protocol.Goals{}, err
	}

	goals, err := s.client.Goals(ctx, top.ID)
	if err != nil {
		return protocol.Goals{}, s.fail(err)
	}

	s.logger.Info("current goals", "state", top.ID, "count", len(goals.Goals))
	return goals, nil
}

// Premises returns the premises accessible from the current state.
func (s *Session) Premises(ctx context.Context) ([]protocol.Premise, error) {
	top, err := s.activeState()
	if err != nil {
		return nil, err
	}

	premises, err := s.client.Premises(ctx, top.ID)
	if err != nil {
		return nil, s.fail(err)
	}

	s.logger.Info("retrieved premises", "state", top.ID, "count", len(premises))
	return premises, nil
}

// Backtrack pops the current state and returns it. The initial state cannot be popped.
func (s *Session) Backtrack() (ProofState, error) {
	if len(s.stack) == 0 {
		return ProofState{}, fmt.Errorf("%w: no proof in progress", ErrInvalidOperation)
	}
	if len(s.stack) == 1 {
		return ProofState{}, fmt.Errorf("%w: cannot backtrack past the initial state", ErrInvalidOperation)
	}

	st := s.pop()
	s.logger.Info("undo", "action", st.Action, "state", st.ID, "current", s.stack[len(s.stack)-1].ID)
	return st, nil
}

// Reset restarts the last started proof from scratch.
func (s *Session) Reset(ctx context.Context) error {
	if !s.started {
		return fmt.Errorf("%w: no proof to reset", ErrInvalidOperation)
	}
	s.logger.Info("reset", "theorem", s.thm)
	return s.Start(ctx, s.file, s.thm)
}

func (s *Session) requireConnected() error {
	if s.conn == nil {
		return fmt.Errorf("%w: not connected", ErrInvalidOperation)
	}
	return nil
}

func (s *Session) activeState() (ProofState, error) {
	if err := s.requireConnected(); err != nil {
		return ProofState{}, err
	}
	top, ok := s.Current()
	if !ok {
		return ProofState{}, fmt.Errorf("%w: no active proof state", ErrInvalidOperation)
	}
	return top, nil
}

// fail closes the connection when err leaves the stream unusable.
func (s *Session) fail(err error) error {
	if protocol.IsFatal(err) {
		if cerr := s.closeConn(); cerr != nil {
			s.logger.Error("session unusable, connection closed with error", "error", err, "close_error", cerr)
			return err
		}
		s.logger.Error("session unusable, connection closed", "error", err)
	}
	return err
}
