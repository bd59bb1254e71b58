package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_IsTerminal(t *testing.T) {
	terminal := []State{StateAccepted, StateExhausted, StateCancelled, StateFaulted}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []State{StatePending, StateGenerating, StateValidating, StateReassigning} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StatePending, StateGenerating, true},
		{StatePending, StateValidating, false},
		{StateGenerating, StateValidating, true},
		{StateGenerating, StateAccepted, false},
		{StateValidating, StateAccepted, true},
		{StateValidating, StateReassigning, true},
		{StateValidating, StateExhausted, true},
		{StateReassigning, StateGenerating, true},
		{StateReassigning, StateValidating, false},
		{StateAccepted, StateGenerating, false},
		{StateExhausted, StateReassigning, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestMachine_Move(t *testing.T) {
	m := newMachine()
	m.move(StateGenerating, 1)
	m.move(StateValidating, 1)
	tr := m.move(StateAccepted, 1)

	assert.Equal(t, StateValidating, tr.From)
	assert.Equal(t, StateAccepted, tr.To)
	assert.Len(t, m.history, 3)
	assert.False(t, tr.At.IsZero())

	assert.Panics(t, func() { m.move(StateGenerating, 2) })
}
