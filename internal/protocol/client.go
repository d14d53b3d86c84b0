package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Transport moves whole messages between the client and the server.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// Client issues petanque requests one at a time over a Transport and checks
// that every reply carries the id of the request just sent.
//
// A Client is not safe for concurrent use.
type Client struct {
	transport Transport
	lastID    int

	Logger       *slog.Logger
	LogRequests  bool
	LogResponses bool
}

// NewClient creates a Client whose first request will carry id 1.
func NewClient(t Transport) *Client {
	return &Client{transport: t, Logger: slog.Default()}
}

// LastID returns the id of the most recent request, or 0 before the first call.
func (c *Client) LastID() int {
	return c.lastID
}

// Call sends one request and blocks until its reply arrives.
func (c *Client) Call(ctx context.Context, params Params) (json.RawMessage, error) {
	c.lastID++
	id := c.lastID

	req, err := NewRequest(id, params)
	if err != nil {
		return nil, err
	}

	payload, err := Encode(req)
	if err != nil {
		return nil, err
	}

	if c.LogRequests {
		c.logger().Debug("petanque request", "id", id, "method", req.Method, "payload", string(bytes.TrimSpace(payload)))
	}

	if err := c.transport.Send(ctx, payload); err != nil {
		return nil, err
	}

	raw, err := c.transport.Receive(ctx)
	if err != nil {
		return nil, err
	}

	if c.LogResponses {
		c.logger().Debug("petanque response", "id", id, "payload", string(bytes.TrimSpace(raw)))
	}

	resp, respErr := DecodeResponse(raw)
	if respErr == nil {
		if resp.ID != id {
			return nil, &ProtocolError{Sent: id, Got: resp.ID}
		}
		return resp.Result, nil
	}

	failure, err := DecodeFailure(raw)
	if err != nil {
		return nil, &ServerError{Message: fmt.Sprintf("malformed reply %s (%v)", truncate(bytes.TrimSpace(raw), 200), respErr)}
	}
	return nil, &ServerError{Message: failure.Error, Code: failure.Code}
}

// Init creates a prover environment for the workspace at uri and returns its handle.
func (c *Client) Init(ctx context.Context, uri string) (int, error) {
	result, err := c.Call(ctx, InitParams{URI: uri})
	if err != nil {
		return 0, err
	}

	var env int
	if err := json.Unmarshal(result, &env); err != nil {
		return 0, fmt.Errorf("protocol: unmarshal init result: %w", err)
	}
	return env, nil
}

// Start opens the proof of thm in the file at uri and returns the initial state id.
func (c *Client) Start(ctx context.Context, env int, uri string, thm string) (int, error) {
	result, err := c.Call(ctx, StartParams{Env: env, URI: uri, Thm: thm})
	if err != nil {
		return 0, err
	}

	var state int
	if err := json.Unmarshal(result, &state); err != nil {
		return 0, fmt.Errorf("protocol: unmarshal start result: %w", err)
	}
	return state, nil
}

// Run executes tactic against stateID.
func (c *Client) Run(ctx context.Context, stateID int, tactic string) (RunResult, error) {
	result, err := c.Call(ctx, RunParams{StateID: stateID, Tactic: tactic})
	if err != nil {
		return RunResult{}, err
	}

	var res RunResult
	if err := json.Unmarshal(result, &res); err != nil {
		return RunResult{}, err
	}
	return res, nil
}

// Goals lists the goals of stateID.
func (c *Client) Goals(ctx context.Context, stateID int) (Goals, error) {
	result, err := c.Call(ctx, GoalsParams{StateID: stateID})
	if err != nil {
		return Goals{}, err
	}

	var goals Goals
	if err := json.Unmarshal(result, &goals); err != nil {
		return Goals{}, fmt.Errorf("protocol: unmarshal goals result: %w", err)
	}
	return goals, nil
}

// Premises lists the premises accessible from stateID.
func (c *Client) Premises(ctx context.Context, stateID int) ([]Premise, error) {
	result, err := c.Call(ctx, PremisesParams{StateID: stateID})
	if err != nil {
		return nil, err
	}

	var premises []Premise
	if err := json.Unmarshal(result, &premises); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal premises result: %w", err)
	}
	return premises, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
