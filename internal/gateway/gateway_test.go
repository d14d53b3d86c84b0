package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/erg0nix/petanque/internal/petanquetest"
	"github.com/erg0nix/petanque/internal/session"
	"github.com/erg0nix/petanque/internal/transport"
)

func startGateway(t *testing.T, h petanquetest.Handler) (*Client, *Server) {
	t.Helper()

	pet := petanquetest.NewServer(t, h)
	srv := NewServer(session.Config{
		Address:   pet.Addr(),
		Transport: transport.DefaultConfig(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv.Bind = "bufconn"

	lis := bufconn.Listen(1 << 20)
	grpcServer := grpc.NewServer()
	Register(grpcServer, srv)
	go grpcServer.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		grpcServer.Stop()
		srv.Close()
	})
	return NewClient(conn), srv
}

func requireCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, status.Code(err), err.Error())
}

func TestGatewayProofScenario(t *testing.T) {
	client, _ := startGateway(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	env, err := client.Init(ctx, "/proj")
	require.NoError(t, err)
	assert.Equal(t, 7, env)

	st, err := client.Start(ctx, "/proj/a.v", "foo")
	require.NoError(t, err)
	assert.Equal(t, session.ProofState{ID: 42, Action: session.StartAction}, st)

	goals, err := client.Goals(ctx)
	require.NoError(t, err)
	require.Len(t, goals.Goals, 1)
	assert.Equal(t, "forall x : nat, x = x", goals.Goals[0].Ty)

	st, err = client.RunTactic(ctx, "intros.")
	require.NoError(t, err)
	assert.Equal(t, session.ProofState{ID: 43, Action: "intros."}, st)

	premises, err := client.Premises(ctx)
	require.NoError(t, err)
	require.Len(t, premises, 2)
	assert.Equal(t, "Coq.Init.Logic.eq_refl", premises[0].FullName)

	st, err = client.RunTactic(ctx, "reflexivity.")
	require.NoError(t, err)
	assert.True(t, st.Finished)

	history, err := client.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, []session.ProofState{
		{ID: 42, Action: session.StartAction},
		{ID: 43, Action: "intros."},
		{ID: 44, Action: "reflexivity.", Finished: true},
	}, history)

	popped, err := client.Backtrack(ctx)
	require.NoError(t, err)
	assert.Equal(t, 44, popped.ID)

	st, err = client.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45, st.ID)

	info, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bufconn", info.Bind)
	assert.Equal(t, "foo", info.Theorem)
	assert.Equal(t, 1, info.Depth)
	assert.Equal(t, session.ProofInProgress.String(), info.State)
}

func TestGatewayErrorCodes(t *testing.T) {
	client, _ := startGateway(t, petanquetest.NewProver().Handle)
	ctx := context.Background()

	_, err := client.RunTactic(ctx, "intros.")
	requireCode(t, err, codes.FailedPrecondition)

	_, err = client.Start(ctx, "", "foo")
	requireCode(t, err, codes.InvalidArgument)

	_, err = client.Init(ctx, "/proj")
	require.NoError(t, err)
	_, err = client.Init(ctx, "/proj")
	requireCode(t, err, codes.FailedPrecondition)

	_, err = client.Start(ctx, "/proj/a.v", "missing")
	requireCode(t, err, codes.Aborted)

	_, err = client.Start(ctx, "/proj/a.v", "foo")
	require.NoError(t, err)

	_, err = client.RunTactic(ctx, "fail.")
	requireCode(t, err, codes.Aborted)

	_, err = client.Backtrack(ctx)
	requireCode(t, err, codes.FailedPrecondition)

	_, err = client.RunTactic(ctx, "  ")
	requireCode(t, err, codes.InvalidArgument)
}

func TestGatewayReconnectsAfterFatalError(t *testing.T) {
	prover := petanquetest.NewProver()
	var mu sync.Mutex
	desync := false

	client, _ := startGateway(t, func(req petanquetest.Request) petanquetest.Reply {
		mu.Lock()
		defer mu.Unlock()
		if desync && req.Method == "petanque/goals" {
			return petanquetest.WithID(req.ID+10, map[string]any{"goals": []any{}})
		}
		return prover.Handle(req)
	})
	ctx := context.Background()

	_, err := client.Init(ctx, "/proj")
	require.NoError(t, err)
	_, err = client.Start(ctx, "/proj/a.v", "foo")
	require.NoError(t, err)

	mu.Lock()
	desync = true
	mu.Unlock()

	_, err = client.Goals(ctx)
	requireCode(t, err, codes.Unavailable)

	history, err := client.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = client.Goals(ctx)
	requireCode(t, err, codes.FailedPrecondition)

	_, err = client.Init(ctx, "/proj")
	require.NoError(t, err)
	_, err = client.Start(ctx, "/proj/a.v", "foo")
	require.NoError(t, err)
}

func TestGatewayShutdown(t *testing.T) {
	client, srv := startGateway(t, petanquetest.NewProver().Handle)

	stopped := make(chan struct{})
	srv.StopFunc = func() { close(stopped) }

	msg, err := client.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shutting down", msg)
	<-stopped
}

func TestGatewayNullGoalsAndPremises(t *testing.T) {
	prover := petanquetest.NewProver()
	client, _ := startGateway(t, func(req petanquetest.Request) petanquetest.Reply {
		switch req.Method {
		case "petanque/goals", "petanque/premises":
			return petanquetest.Result(nil)
		}
		return prover.Handle(req)
	})
	ctx := context.Background()

	_, err := client.Init(ctx, "/proj")
	require.NoError(t, err)
	_, err = client.Start(ctx, "/proj/a.v", "foo")
	require.NoError(t, err)

	goals, err := client.Goals(ctx)
	require.NoError(t, err)
	assert.Empty(t, goals.Goals)

	premises, err := client.Premises(ctx)
	require.NoError(t, err)
	assert.Empty(t, premises)
}
