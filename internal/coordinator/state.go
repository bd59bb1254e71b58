package coordinator

import (
	"fmt"
	"time"
)

// State is a coordinator loop state.
type State string

const (
	// StatePending is the state before the first attempt starts.
	StatePending State = "pending"

	// StateGenerating means the generator is producing an artifact.
	StateGenerating State = "generating"

	// StateValidating means the validator is checking the latest artifact.
	StateValidating State = "validating"

	// StateReassigning means the latest artifact was rejected and will be
	// regenerated with the verdict's errors as feedback.
	StateReassigning State = "reassigning"

	// StateAccepted is terminal: an artifact passed validation.
	StateAccepted State = "accepted"

	// StateExhausted is terminal: the attempt budget ran out.
	StateExhausted State = "exhausted"

	// StateCancelled is terminal: the caller cancelled the run.
	StateCancelled State = "cancelled"

	// StateFaulted is terminal: a collaborator broke down.
	StateFaulted State = "faulted"
)

// transitions lists the legal successors of every non-terminal state.
var transitions = map[State][]State{
	StatePending:     {StateGenerating, StateCancelled},
	StateGenerating:  {StateValidating, StateFaulted, StateCancelled},
	StateValidating:  {StateAccepted, StateReassigning, StateExhausted, StateFaulted, StateCancelled},
	StateReassigning: {StateGenerating, StateCancelled},
}

// IsTerminal reports whether no further transition can leave s.
func (s State) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition describes one state change of a run.
type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
}

// machine tracks the current state of a single run.
type machine struct {
	state   State
	history []Transition
}

func newMachine() *machine {
	return &machine{state: StatePending}
}

// move applies a transition. An illegal transition is a programming error in
// the coordinator and panics.
func (m *machine) move(next State, attempt int) Transition {
	if !m.state.CanTransition(next) {
		panic(fmt.Sprintf("coordinator: illegal transition %s -> %s", m.state, next))
	}
	t := Transition{From: m.state, To: next, Attempt: attempt, At: time.Now()}
	m.state = next
	m.history = append(m.history, t)
	return t
}
