package session

// StartAction labels the initial state of every proof.
const StartAction = "Start"

// ProofState is one entry of the proof history: the server-assigned state id
// and the action that produced it.
type ProofState struct {
	ID       int    `json:"id" yaml:"id"`
	Action   string `json:"action" yaml:"action"`
	Finished bool   `json:"finished,omitempty" yaml:"finished,omitempty"`
}

// Current returns the newest state.
func (s *Session) Current() (ProofState, bool) {
	if len(s.stack) == 0 {
		return ProofState{}, false
	}
	return s.stack[len(s.stack)-1], true
}

// History returns a copy of the stack, oldest first.
func (s *Session) History() []ProofState {
	return append([]ProofState(nil), s.stack...)
}

// Depth returns the number of states on the stack.
func (s *Session) Depth() int {
	return len(s.stack)
}

func (s *Session) push(st ProofState) {
	s.stack = append(s.stack, st)
}

func (s *Session) pop() ProofState {
	st := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return st
}
