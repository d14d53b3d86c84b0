package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/erg0nix/petanque/internal/protocol"
	"github.com/erg0nix/petanque/internal/session"
)

// Client calls a gateway.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to a gateway on a local, unencrypted address.
func Dial(addr string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: dial %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

// Status describes a running gateway.
type Status struct {
	Bind          string `json:"bind"`
	Address       string `json:"address"`
	State         string `json:"state"`
	Theorem       string `json:"theorem"`
	Depth         int    `json:"depth"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	StartedAt     string `json:"started_at"`
}

func (c *Client) Init(ctx context.Context, root string) (int, error) {
	out := &wrapperspb.Int64Value{}
	if err := c.invoke(ctx, methodInit, wrapperspb.String(root), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

func (c *Client) Start(ctx context.Context, file string, thm string) (session.ProofState, error) {
	req, err := structpb.NewStruct(map[string]any{"file": file, "theorem": thm})
	if err != nil {
		return session.ProofState{}, err
	}
	return c.proofState(ctx, methodStart, req)
}

func (c *Client) RunTactic(ctx context.Context, tactic string) (session.ProofState, error) {
	return c.proofState(ctx, methodRunTactic, wrapperspb.String(tactic))
}

func (c *Client) Goals(ctx context.Context) (protocol.Goals, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, methodGoals, &emptypb.Empty{}, out); err != nil {
		return protocol.Goals{}, err
	}

	var goals protocol.Goals
	if err := fromProtoJSON(out, &goals); err != nil {
		return protocol.Goals{}, err
	}
	return goals, nil
}

func (c *Client) Premises(ctx context.Context) ([]protocol.Premise, error) {
	out := &structpb.ListValue{}
	if err := c.invoke(ctx, methodPremises, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	var premises []protocol.Premise
	if err := fromProtoJSON(out, &premises); err != nil {
		return nil, err
	}
	return premises, nil
}

// Backtrack returns the state that was popped.
func (c *Client) Backtrack(ctx context.Context) (session.ProofState, error) {
	return c.proofState(ctx, methodBacktrack, &emptypb.Empty{})
}

func (c *Client) Reset(ctx context.Context) (session.ProofState, error) {
	return c.proofState(ctx, methodReset, &emptypb.Empty{})
}

func (c *Client) History(ctx context.Context) ([]session.ProofState, error) {
	out := &structpb.ListValue{}
	if err := c.invoke(ctx, methodHistory, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	var history []session.ProofState
	if err := fromProtoJSON(out, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, methodStatus, &emptypb.Empty{}, out); err != nil {
		return Status{}, err
	}

	var st Status
	if err := fromProtoJSON(out, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

func (c *Client) Shutdown(ctx context.Context) (string, error) {
	out := &wrapperspb.StringValue{}
	if err := c.invoke(ctx, methodShutdown, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) proofState(ctx context.Context, method string, req proto.Message) (session.ProofState, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, method, req, out); err != nil {
		return session.ProofState{}, err
	}

	var st session.ProofState
	if err := fromProtoJSON(out, &st); err != nil {
		return session.ProofState{}, err
	}
	return st, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, out proto.Message) error {
	return c.conn.Invoke(ctx, fullMethod(method), req, out)
}

func fromProtoJSON(msg proto.Message, v any) error {
	data, err := protojson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gateway: encode %T: %w", msg, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("gateway: decode %T: %w", v, err)
	}
	return nil
}
