package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erg0nix/petanque/internal/petanquetest"
	"github.com/erg0nix/petanque/internal/protocol"
	"github.com/erg0nix/petanque/internal/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connected(t *testing.T, h petanquetest.Handler) (*Session, *petanquetest.Server) {
	t.Helper()
	srv := petanquetest.NewServer(t, h)
	s := New(Config{
		Address:   srv.Addr(),
		Transport: transport.DefaultConfig(),
		Logger:    quietLogger(),
	})
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s, srv
}

func started(t *testing.T, h petanquetest.Handler) (*Session, *petanquetest.Server) {
	t.Helper()
	s, srv := connected(t, h)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, "/proj"))
	require.NoError(t, s.Start(ctx, "/proj/a.v", "foo"))
	return s, srv
}

func TestProofScenario(t *testing.T) {
	s, srv := connected(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	assert.Equal(t, Connected, s.State())

	require.NoError(t, s.Init(ctx, "/proj"))
	assert.Equal(t, 7, s.Env())
	assert.Equal(t, Initialized, s.State())

	require.NoError(t, s.Start(ctx, "/proj/a.v", "foo"))
	assert.Equal(t, []ProofState{{ID: 42, Action: "Start"}}, s.History())
	assert.Equal(t, ProofInProgress, s.State())

	res, err := s.RunTactic(ctx, "intro x.")
	require.NoError(t, err)
	assert.Equal(t, protocol.CurrentState, res.Kind)
	assert.Equal(t, 43, res.StateID)
	assert.Equal(t, []ProofState{{ID: 42, Action: "Start"}, {ID: 43, Action: "intro x."}}, s.History())

	res, err = s.RunTactic(ctx, "reflexivity.")
	require.NoError(t, err)
	assert.Equal(t, protocol.ProofFinished, res.Kind)
	assert.Equal(t, 44, res.StateID)
	assert.Equal(t, 3, s.Depth())
	assert.Equal(t, ProofFinished, s.State())

	st, err := s.Backtrack()
	require.NoError(t, err)
	assert.Equal(t, ProofState{ID: 44, Action: "reflexivity.", Finished: true}, st)
	assert.Equal(t, 2, s.Depth())
	assert.Equal(t, ProofInProgress, s.State())

	reqs := srv.Requests()
	require.Len(t, reqs, 4)
	methods := []string{protocol.MethodInit, protocol.MethodStart, protocol.MethodRun, protocol.MethodRun}
	for i, req := range reqs {
		assert.Equal(t, i+1, req.ID)
		assert.Equal(t, methods[i], req.Method)
	}
	assert.JSONEq(t, `{"env":7,"uri":"file:///proj/a.v","thm":"foo"}`, string(reqs[1].Params))
	assert.JSONEq(t, `{"state_id":42,"tactic":"intro x."}`, string(reqs[2].Params))
}

func TestStackGrowsOnlyOnSuccessfulTactics(t *testing.T) {
	s, srv := started(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	tactics := []string{"intro x.", "fail here.", "simpl.", "failwith.", "idtac."}
	successes := 0
	for _, tac := range tactics {
		_, err := s.RunTactic(ctx, tac)
		if err != nil {
			var srvErr *protocol.ServerError
			require.ErrorAs(t, err, &srvErr)
			continue
		}
		successes++
	}

	assert.Equal(t, 1+successes, s.Depth())
	assert.Equal(t, ProofInProgress, s.State())

	for i, req := range srv.Requests() {
		assert.Equal(t, i+1, req.ID, "request ids increase by one regardless of outcome")
	}
	assert.Equal(t, len(srv.Requests()), s.LastRequestID())
}

func TestBacktrackReturnsLastTactic(t *testing.T) {
	s, _ := started(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	_, err := s.RunTactic(ctx, "intro x.")
	require.NoError(t, err)
	res, err := s.RunTactic(ctx, "simpl.")
	require.NoError(t, err)

	st, err := s.Backtrack()
	require.NoError(t, err)
	assert.Equal(t, "simpl.", st.Action)
	assert.Equal(t, res.StateID, st.ID)
	assert.Equal(t, 2, s.Depth())

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "intro x.", cur.Action)
}

func TestBacktrackPastInitialStateFails(t *testing.T) {
	s, _ := started(t, petanquetest.NewProver().Handle)

	before := s.History()
	_, err := s.Backtrack()
	require.ErrorIs(t, err, ErrInvalidOperation)
	assert.Equal(t, before, s.History())
}

func TestBacktrackWithoutProof(t *testing.T) {
	s := New(Config{Logger: quietLogger()})
	_, err := s.Backtrack()
	require.ErrorIs(t, err, ErrInvalidOperation)
}

func TestResetRestartsFromScratch(t *testing.T) {
	s, srv := started(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	for _, tac := range []string{"intro x.", "simpl.", "reflexivity."} {
		_, err := s.RunTactic(ctx, tac)
		require.NoError(t, err)
	}
	require.Equal(t, 4, s.Depth())

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, []ProofState{{ID: 46, Action: StartAction}}, s.History())
	assert.Equal(t, "foo", s.Theorem())
	assert.Equal(t, "/proj/a.v", s.File())

	last := srv.Requests()[len(srv.Requests())-1]
	assert.Equal(t, protocol.MethodStart, last.Method)
	assert.JSONEq(t, `{"env":7,"uri":"file:///proj/a.v","thm":"foo"}`, string(last.Params))
}

func TestResetWithoutStart(t *testing.T) {
	s, _ := connected(t, petanquetest.NewProver().Handle)
	require.NoError(t, s.Init(context.Background(), "/proj"))
	require.ErrorIs(t, s.Reset(context.Background()), ErrInvalidOperation)
}

func TestIDMismatchIsFatalAndLeavesStack(t *testing.T) {
	prover := petanquetest.NewProver()
	s, _ := started(t, func(req petanquetest.Request) petanquetest.Reply {
		if req.Method == protocol.MethodRun {
			return petanquetest.WithID(req.ID+10, map[string]int{"CurrentState": 99})
		}
		return prover.Handle(req)
	})

	before := s.History()
	_, err := s.RunTactic(context.Background(), "intro x.")

	var protoErr *protocol.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, 3, protoErr.Sent)
	assert.Equal(t, 13, protoErr.Got)
	assert.Equal(t, before, s.History())
	assert.Equal(t, Unconnected, s.State())

	_, err = s.Goals(context.Background())
	require.ErrorIs(t, err, ErrInvalidOperation)
}

func TestInitTwiceIsRejected(t *testing.T) {
	s, srv := connected(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, "/proj"))
	require.ErrorIs(t, s.Init(ctx, "/other"), ErrInvalidOperation)
	assert.Len(t, srv.Requests(), 1)
	assert.Equal(t, 7, s.Env())
}

func TestOperationsRequireLifecycle(t *testing.T) {
	ctx := context.Background()

	idle := New(Config{Logger: quietLogger()})
	require.ErrorIs(t, idle.Init(ctx, "/proj"), ErrInvalidOperation)
	assert.Equal(t, Unconnected, idle.State())

	s, srv := connected(t, petanquetest.NewProver().Handle)
	require.ErrorIs(t, s.Start(ctx, "/proj/a.v", "foo"), ErrInvalidOperation)

	require.NoError(t, s.Init(ctx, "/proj"))
	_, err := s.RunTactic(ctx, "intro x.")
	require.ErrorIs(t, err, ErrInvalidOperation)
	_, err = s.Goals(ctx)
	require.ErrorIs(t, err, ErrInvalidOperation)
	_, err = s.Premises(ctx)
	require.ErrorIs(t, err, ErrInvalidOperation)

	assert.Len(t, srv.Requests(), 1, "misuse must not reach the server")
}

func TestTacticAfterProofFinishedIsRejected(t *testing.T) {
	s, srv := started(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	_, err := s.RunTactic(ctx, "reflexivity.")
	require.NoError(t, err)
	sent := len(srv.Requests())

	_, err = s.RunTactic(ctx, "idtac.")
	require.ErrorIs(t, err, ErrInvalidOperation)
	assert.Len(t, srv.Requests(), sent)

	_, err = s.Backtrack()
	require.NoError(t, err)
	_, err = s.RunTactic(ctx, "auto.")
	require.NoError(t, err)
}

func TestGoalsAndPremisesDoNotMutateStack(t *testing.T) {
	s, srv := started(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	goals, err := s.Goals(ctx)
	require.NoError(t, err)
	require.Len(t, goals.Goals, 1)
	assert.Equal(t, "forall x : nat, x = x", goals.Goals[0].Ty)

	premises, err := s.Premises(ctx)
	require.NoError(t, err)
	require.Len(t, premises, 2)
	assert.Equal(t, "Coq.Init.Logic.eq_refl", premises[0].FullName)

	assert.Equal(t, 1, s.Depth())
	reqs := srv.Requests()
	assert.JSONEq(t, `{"state_id":42}`, string(reqs[len(reqs)-1].Params))
}

func TestInvalidProofStateLeavesStack(t *testing.T) {
	prover := petanquetest.NewProver()
	s, _ := started(t, func(req petanquetest.Request) petanquetest.Reply {
		if req.Method == protocol.MethodRun {
			return petanquetest.Result(map[string]int{"Stuck": 1})
		}
		return prover.Handle(req)
	})

	_, err := s.RunTactic(context.Background(), "intro x.")
	require.ErrorIs(t, err, protocol.ErrInvalidProofState)
	assert.Equal(t, 1, s.Depth())
	assert.Equal(t, ProofInProgress, s.State())
}

func TestMalformedReplyIsServerError(t *testing.T) {
	prover := petanquetest.NewProver()
	s, _ := started(t, func(req petanquetest.Request) petanquetest.Reply {
		if req.Method == protocol.MethodGoals {
			return petanquetest.Raw(`{"oops": true}`)
		}
		return prover.Handle(req)
	})

	_, err := s.Goals(context.Background())
	var srvErr *protocol.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Contains(t, srvErr.Message, "oops")
	assert.Equal(t, ProofInProgress, s.State(), "server errors keep the session usable")

	_, err = s.RunTactic(context.Background(), "intro x.")
	require.NoError(t, err)
}

func TestReconnectRequiresInit(t *testing.T) {
	s, _ := started(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	require.NoError(t, s.Close())
	assert.Equal(t, Unconnected, s.State())

	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, Connected, s.State())
	assert.Equal(t, 0, s.Depth())
	assert.Equal(t, 0, s.LastRequestID())
	require.ErrorIs(t, s.Start(ctx, "/proj/a.v", "foo"), ErrInvalidOperation)
}

type countingConn struct {
	Conn
	closed *atomic.Int32
}

func (c countingConn) Close() error {
	c.closed.Add(1)
	return c.Conn.Close()
}

func TestWithClosesOnEveryExitPath(t *testing.T) {
	srv := petanquetest.NewServer(t, petanquetest.NewProver().Handle)
	var closed atomic.Int32
	cfg := Config{
		Logger: quietLogger(),
		Dial: func(_ context.Context, _ string, tc transport.Config) (Conn, error) {
			conn, err := transport.New(srv.Pipe(), tc)
			if err != nil {
				return nil, err
			}
			return countingConn{Conn: conn, closed: &closed}, nil
		},
	}
	ctx := context.Background()

	err := With(ctx, cfg, func(s *Session) error {
		if err := s.Init(ctx, "/proj"); err != nil {
			return err
		}
		return s.Start(ctx, "/proj/a.v", "foo")
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), closed.Load())

	sentinel := errors.New("caller failure")
	err = With(ctx, cfg, func(*Session) error { return sentinel })
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(2), closed.Load())

	assert.Panics(t, func() {
		_ = With(ctx, cfg, func(*Session) error { panic("boom") })
	})
	assert.Equal(t, int32(3), closed.Load())
}

type failingCloseConn struct {
	Conn
}

func (c failingCloseConn) Close() error {
	c.Conn.Close()
	return errors.New("close failed")
}

func TestFatalErrorLogsCloseFailure(t *testing.T) {
	prover := petanquetest.NewProver()
	srv := petanquetest.NewServer(t, func(req petanquetest.Request) petanquetest.Reply {
		if req.Method == protocol.MethodGoals {
			return petanquetest.WithID(req.ID+1, map[string]any{"goals": []any{}})
		}
		return prover.Handle(req)
	})

	var logs bytes.Buffer
	s := New(Config{
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
		Dial: func(_ context.Context, _ string, tc transport.Config) (Conn, error) {
			conn, err := transport.New(srv.Pipe(), tc)
			if err != nil {
				return nil, err
			}
			return failingCloseConn{Conn: conn}, nil
		},
	})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Init(ctx, "/proj"))
	require.NoError(t, s.Start(ctx, "/proj/a.v", "foo"))

	_, err := s.Goals(ctx)
	var pErr *protocol.ProtocolError
	require.ErrorAs(t, err, &pErr)

	assert.Equal(t, Unconnected, s.State())
	assert.Contains(t, logs.String(), "close_error=\"close failed\"")
	assert.Len(t, s.History(), 1)
}
