package petanquetest

import (
	"encoding/json"
	"strings"
	"sync"
)

// Prover is a toy prover behind the petanque methods. Each theorem has a
// fixed goal; a tactic listed in Finishers closes the proof, a tactic starting
// with "fail" is rejected, anything else yields a new open state.
type Prover struct {
	Env       int
	Theorems  map[string]string
	Finishers map[string]bool
	Premises  []map[string]any

	mu     sync.Mutex
	inited bool
	nextID int
	states map[int]proverState
}

type proverState struct {
	goal     string
	finished bool
}

// NewProver returns a prover that knows theorem "foo" (goal "x = x") and closes
// proofs with "reflexivity." or "auto.".
func NewProver() *Prover {
	return &Prover{
		Env:       7,
		Theorems:  map[string]string{"foo": "forall x : nat, x = x"},
		Finishers: map[string]bool{"reflexivity.": true, "auto.": true},
		Premises: []map[string]any{
			{"full_name": "Coq.Init.Logic.eq_refl", "file": "Logic.v", "kind": "constructor"},
			{"full_name": "Coq.Init.Nat.add", "file": "Nat.v", "kind": "definition"},
		},
		nextID: 41,
		states: map[int]proverState{},
	}
}

// Handle answers one request.
func (p *Prover) Handle(req Request) Reply {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.Method {
	case "petanque/init":
		var params struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || !strings.HasPrefix(params.URI, "file://") {
			return Error("init: invalid uri")
		}
		p.inited = true
		return Result(p.Env)

	case "petanque/start":
		var params struct {
			Env int    `json:"env"`
			URI string `json:"uri"`
			Thm string `json:"thm"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return Error("start: invalid params")
		}
		if !p.inited || params.Env != p.Env {
			return Error("start: unknown environment")
		}
		goal, ok := p.Theorems[params.Thm]
		if !ok {
			return Error("start: theorem " + params.Thm + " not found")
		}
		return Result(p.newState(proverState{goal: goal}))

	case "petanque/run":
		var params struct {
			StateID int    `json:"state_id"`
			Tactic  string `json:"tactic"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return Error("run: invalid params")
		}
		st, ok := p.states[params.StateID]
		if !ok {
			return Error("run: unknown state")
		}
		if strings.HasPrefix(params.Tactic, "fail") {
			return Error("run: tactic failure")
		}
		if p.Finishers[params.Tactic] {
			id := p.newState(proverState{goal: st.goal, finished: true})
			return Result(map[string]int{"ProofFinished": id})
		}
		id := p.newState(proverState{goal: st.goal})
		return Result(map[string]int{"CurrentState": id})

	case "petanque/goals":
		st, ok := p.lookup(req.Params)
		if !ok {
			return Error("goals: unknown state")
		}
		if st.finished {
			return Result(map[string]any{"goals": []any{}})
		}
		return Result(map[string]any{
			"goals": []any{map[string]any{"hyps": []any{}, "ty": st.goal}},
		})

	case "petanque/premises":
		if _, ok := p.lookup(req.Params); !ok {
			return Error("premises: unknown state")
		}
		return Result(p.Premises)
	}

	return Error("unknown method " + req.Method)
}

func (p *Prover) newState(st proverState) int {
	p.nextID++
	p.states[p.nextID] = st
	return p.nextID
}

func (p *Prover) lookup(raw json.RawMessage) (proverState, bool) {
	var params struct {
		StateID int `json:"state_id"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return proverState{}, false
	}
	st, ok := p.states[params.StateID]
	return st, ok
}
