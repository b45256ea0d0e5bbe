// Package fsm is a small tick-driven state machine with enter, update and
// exit hooks per state.
package fsm

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Hooks are the actions bound to one state. Any of them may be nil.
type Hooks struct {
	Enter  func()
	Update func()
	Exit   func()
}

// Machine runs hooks for states of type S. Hooks run on the goroutine that
// calls Update and may call TransitionTo or ImmediateTransitionTo
// themselves.
type Machine[S comparable] struct {
	mu sync.Mutex

	clock      Clock
	hooks      map[S]Hooks
	current    S
	next       S
	needsEnter bool
	enteredAt  time.Time
}

// New starts in initial. The initial enter hook runs on the first Update.
func New[S comparable](initial S, clock Clock) *Machine[S] {
	if clock == nil {
		clock = SystemClock{}
	}

	return &Machine[S]{
		clock:      clock,
		hooks:      make(map[S]Hooks),
		current:    initial,
		next:       initial,
		needsEnter: true,
		enteredAt:  clock.Now(),
	}
}

func (m *Machine[S]) Handle(state S, hooks Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[state] = hooks
}

// Update runs a pending enter hook, or completes a deferred transition and
// runs the current state's update hook.
func (m *Machine[S]) Update() {
	m.mu.Lock()
	if m.needsEnter {
		m.needsEnter = false
		enter := m.hooks[m.current].Enter
		m.mu.Unlock()
		call(enter)
		return
	}
	pending := m.current != m.next
	next := m.next
	m.mu.Unlock()

	if pending {
		m.ImmediateTransitionTo(next)
	}

	m.mu.Lock()
	update := m.hooks[m.current].Update
	m.mu.Unlock()
	call(update)
}

// TransitionTo schedules a change to state on the next Update and restarts
// the state timer. Asking for the current state only restarts the timer.
func (m *Machine[S]) TransitionTo(state S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = state
	m.enteredAt = m.clock.Now()
}

// ImmediateTransitionTo runs exit and enter hooks right away, even when
// state is already current.
func (m *Machine[S]) ImmediateTransitionTo(state S) {
	m.mu.Lock()
	exit := m.hooks[m.current].Exit
	m.mu.Unlock()
	call(exit)

	m.mu.Lock()
	m.current = state
	m.next = state
	m.needsEnter = false
	enter := m.hooks[state].Enter
	m.mu.Unlock()
	call(enter)

	m.mu.Lock()
	m.enteredAt = m.clock.Now()
	m.mu.Unlock()
}

func (m *Machine[S]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Machine[S]) IsIn(state S) bool {
	return m.State() == state
}

func (m *Machine[S]) TimeInCurrentState() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock.Now().Sub(m.enteredAt)
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
