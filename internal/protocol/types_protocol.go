package protocol

import "encoding/json"

// JSONRPCVersion is sent in the jsonrpc field of every request.
const JSONRPCVersion = "2.0"

// Petanque JSON-RPC method names. The set is closed: no other method is ever sent.
const (
	// MethodInit creates a prover environment rooted at a workspace URI.
	MethodInit = "petanque/init"
	// MethodStart opens a proof of a named theorem and returns its initial state.
	MethodStart = "petanque/start"
	// MethodRun executes one tactic against a state.
	MethodRun = "petanque/run"
	// MethodGoals lists the open goals of a state.
	MethodGoals = "petanque/goals"
	// MethodPremises lists the premises visible from a state.
	MethodPremises = "petanque/premises"
)

// Params is the closed set of request parameter shapes.
// Only the five types in this package implement it.
type Params interface {
	isParams()
}

// InitParams are the parameters of petanque/init.
type InitParams struct {
	URI string `json:"uri"`
}

// StartParams are the parameters of petanque/start.
type StartParams struct {
	Env int    `json:"env"`
	URI string `json:"uri"`
	Thm string `json:"thm"`
}

// RunParams are the parameters of petanque/run.
type RunParams struct {
	StateID int    `json:"state_id"`
	Tactic  string `json:"tactic"`
}

// GoalsParams are the parameters of petanque/goals.
type GoalsParams struct {
	StateID int `json:"state_id"`
}

// PremisesParams are the parameters of petanque/premises.
type PremisesParams struct {
	StateID int `json:"state_id"`
}

func (InitParams) isParams()     {}
func (StartParams) isParams()    {}
func (RunParams) isParams()      {}
func (GoalsParams) isParams()    {}
func (PremisesParams) isParams() {}

// Request is one client-to-server message.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

// Response is a successful server reply correlated by ID.
type Response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
}

// Failure is a server reply that carries only a diagnostic.
type Failure struct {
	Error string
	Code  int
}

// MethodFor maps a params value to its method name. Pointer variants are not
// accepted.
func MethodFor(params Params) (string, error) {
	switch params.(type) {
	case InitParams:
		return MethodInit, nil
	case StartParams:
		return MethodStart, nil
	case RunParams:
		return MethodRun, nil
	case GoalsParams:
		return MethodGoals, nil
	case PremisesParams:
		return MethodPremises, nil
	default:
		return "", ErrInvalidRequest
	}
}

// NewRequest builds the request for params with the given id.
func NewRequest(id int, params Params) (Request, error) {
	method, err := MethodFor(params)
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}, nil
}
