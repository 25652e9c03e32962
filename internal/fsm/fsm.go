// Package fsm is a small table-driven finite state machine.
//
// A Definition is an immutable transition table shared by every session; a
// Machine is one session's cursor into it. Firing an event that has no
// transition from the current state fails with ErrInvalidTransition and
// leaves the state unchanged.
package fsm

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by Fire for an event the current state does not accept.
var ErrInvalidTransition = errors.New("invalid workflow transition")

type (
	State string
	Event string
)

// Transition moves From to To on On.
type Transition struct {
	From State
	On   Event
	To   State
}

// Definition is a named transition table.
type Definition struct {
	name    string
	initial State
	table   map[State]map[Event]State
}

// Define builds a Definition. A duplicate (From, On) pair panics: tables are
// package-level values and a conflict is a programming error.
func Define(name string, initial State, transitions ...Transition) *Definition {
	d := &Definition{
		name:    name,
		initial: initial,
		table:   make(map[State]map[Event]State),
	}
	for _, t := range transitions {
		events, ok := d.table[t.From]
		if !ok {
			events = make(map[Event]State)
			d.table[t.From] = events
		}
		if _, dup := events[t.On]; dup {
			panic(fmt.Sprintf("fsm %s: duplicate transition %s --%s-->", name, t.From, t.On))
		}
		events[t.On] = t.To
	}
	return d
}

// Name returns the workflow name.
func (d *Definition) Name() string { return d.name }

// Initial returns the start state.
func (d *Definition) Initial() State { return d.initial }

// Next returns the target of e from s.
func (d *Definition) Next(s State, e Event) (State, bool) {
	to, ok := d.table[s][e]
	return to, ok
}

// New returns a Machine at the initial state.
func (d *Definition) New() *Machine {
	return &Machine{def: d, state: d.initial}
}

// Machine tracks one workflow instance. Not safe for concurrent use.
type Machine struct {
	def   *Definition
	state State
}

func (m *Machine) State() State { return m.state }

// Name returns the workflow name.
func (m *Machine) Name() string { return m.def.name }

// Can reports whether e is accepted from the current state.
func (m *Machine) Can(e Event) bool {
	_, ok := m.def.Next(m.state, e)
	return ok
}

// Fire applies e.
func (m *Machine) Fire(e Event) error {
	to, ok := m.def.Next(m.state, e)
	if !ok {
		return fmt.Errorf("%w: %s: %q from %q", ErrInvalidTransition, m.def.name, e, m.state)
	}
	m.state = to
	return nil
}

// Reset returns to the initial state.
func (m *Machine) Reset() { m.state = m.def.initial }
