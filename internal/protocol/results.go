package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RunKind tags the two outcomes of petanque/run.
type RunKind int

const (
	// CurrentState means the tactic produced a new state with goals left.
	CurrentState RunKind = iota + 1
	// ProofFinished means the tactic closed the last goal.
	ProofFinished
)

func (k RunKind) String() string {
	switch k {
	case CurrentState:
		return "CurrentState"
	case ProofFinished:
		return "ProofFinished"
	default:
		return fmt.Sprintf("RunKind(%d)", int(k))
	}
}

// RunResult is the decoded result of petanque/run.
type RunResult struct {
	Kind    RunKind
	StateID int
}

// Finished reports whether the proof was closed by the tactic.
func (r RunResult) Finished() bool {
	return r.Kind == ProofFinished
}

// MarshalJSON writes the tagged object form, e.g. {"CurrentState":43}.
func (r RunResult) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case CurrentState, ProofFinished:
		return json.Marshal(map[string]int{r.Kind.String(): r.StateID})
	default:
		return nil, ErrInvalidProofState
	}
}

type runRecord struct {
	St            *int  `json:"st"`
	ProofFinished *bool `json:"proof_finished"`
}

// UnmarshalJSON accepts {"CurrentState":n}, {"ProofFinished":n}, the yojson
// variant form ["Current_state",n] / ["Proof_finished",n], and the record form
// {"st":n,"proof_finished":b}.
func (r *RunResult) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrInvalidProofState
	}

	switch data[0] {
	case '[':
		var tuple []json.RawMessage
		if err := json.Unmarshal(data, &tuple); err != nil || len(tuple) != 2 {
			return ErrInvalidProofState
		}
		var tag string
		var id int
		if json.Unmarshal(tuple[0], &tag) != nil || json.Unmarshal(tuple[1], &id) != nil {
			return ErrInvalidProofState
		}
		kind, ok := runKindFromTag(tag)
		if !ok {
			return fmt.Errorf("%w: unknown variant %q", ErrInvalidProofState, tag)
		}
		*r = RunResult{Kind: kind, StateID: id}
		return nil

	case '{':
		var tagged map[string]json.RawMessage
		if err := json.Unmarshal(data, &tagged); err != nil {
			return ErrInvalidProofState
		}
		if len(tagged) == 1 {
			for tag, raw := range tagged {
				kind, ok := runKindFromTag(tag)
				if !ok {
					break
				}
				var id int
				if err := json.Unmarshal(raw, &id); err != nil {
					return fmt.Errorf("%w: %s is not a state id", ErrInvalidProofState, tag)
				}
				*r = RunResult{Kind: kind, StateID: id}
				return nil
			}
		}

		var rec runRecord
		if err := json.Unmarshal(data, &rec); err == nil && rec.St != nil && rec.ProofFinished != nil {
			kind := CurrentState
			if *rec.ProofFinished {
				kind = ProofFinished
			}
			*r = RunResult{Kind: kind, StateID: *rec.St}
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrInvalidProofState, truncate(data, 120))
}

func runKindFromTag(tag string) (RunKind, bool) {
	switch tag {
	case "CurrentState", "Current_state":
		return CurrentState, true
	case "ProofFinished", "Proof_finished":
		return ProofFinished, true
	default:
		return 0, false
	}
}

// Hyp is one hypothesis of a goal. Raw holds the entry exactly as received.
type Hyp struct {
	Names []string        `json:"names"`
	Def   *string         `json:"def,omitempty"`
	Ty    string          `json:"ty"`
	Raw   json.RawMessage `json:"-"`
}

func (h *Hyp) UnmarshalJSON(data []byte) error {
	type plain Hyp
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	out.Raw = append(json.RawMessage(nil), data...)
	*h = Hyp(out)
	return nil
}

func (h Hyp) MarshalJSON() ([]byte, error) {
	if len(h.Raw) > 0 {
		return h.Raw, nil
	}
	type plain Hyp
	return json.Marshal(plain(h))
}

// Goal is one open goal. Raw holds the entry exactly as received, so fields
// not modelled here survive a round trip.
type Goal struct {
	Info json.RawMessage `json:"info,omitempty"`
	Hyps []Hyp           `json:"hyps"`
	Ty   string          `json:"ty"`
	Raw  json.RawMessage `json:"-"`
}

func (g *Goal) UnmarshalJSON(data []byte) error {
	type plain Goal
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	out.Raw = append(json.RawMessage(nil), data...)
	*g = Goal(out)
	return nil
}

func (g Goal) MarshalJSON() ([]byte, error) {
	if len(g.Raw) > 0 {
		return g.Raw, nil
	}
	type plain Goal
	return json.Marshal(plain(g))
}

// Goals is the result of petanque/goals. Fields other than the goal list are
// kept verbatim.
type Goals struct {
	Goals   []Goal          `json:"goals"`
	Stack   json.RawMessage `json:"stack,omitempty"`
	Bullet  json.RawMessage `json:"bullet,omitempty"`
	Shelf   json.RawMessage `json:"shelf,omitempty"`
	GivenUp json.RawMessage `json:"given_up,omitempty"`
}

// UnmarshalJSON accepts null (no goals), a bare goal list, or the goals object.
func (g *Goals) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*g = Goals{}
		return nil
	}
	if data[0] == '[' {
		var list []Goal
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*g = Goals{Goals: list}
		return nil
	}

	type plain Goals
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*g = Goals(out)
	return nil
}

// Premise is one accessible premise. Raw holds the entry exactly as received.
type Premise struct {
	FullName string `json:"full_name"`
	File     string `json:"file"`
	Raw      json.RawMessage
}

// UnmarshalJSON keeps the full entry in Raw.
func (p *Premise) UnmarshalJSON(data []byte) error {
	var fields struct {
		FullName string `json:"full_name"`
		File     string `json:"file"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = Premise{
		FullName: fields.FullName,
		File:     fields.File,
		Raw:      append(json.RawMessage(nil), data...),
	}
	return nil
}

// MarshalJSON writes Raw back unchanged when present.
func (p Premise) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	return json.Marshal(map[string]string{"full_name": p.FullName, "file": p.File})
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
