package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/clinic/internal/bus"
)

// State is the lifecycle state of the database connection.
type State string

const (
	Uninitialized State = "UNINITIALIZED"
	Connecting    State = "CONNECTING"
	Ready         State = "READY"
	Failed        State = "FAILED"
)

// validTransitions defines allowed state transitions.
// Connecting->Connecting marks a busy retry of the open sequence.
var validTransitions = map[State][]State{
	Uninitialized: {Connecting},
	Connecting:    {Connecting, Ready, Failed},
	Ready:         {Uninitialized},
	Failed:        {Connecting},
}

// Ordinal maps a state to a stable number, used for the state gauge.
func (s State) Ordinal() int {
	switch s {
	case Uninitialized:
		return 0
	case Connecting:
		return 1
	case Ready:
		return 2
	case Failed:
		return 3
	}
	return -1
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a machine in the Uninitialized state. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Uninitialized,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition moves to a new state. cause is attached to the published change
// and may be nil. Returns an error if the transition is not allowed.
func (m *Machine) Transition(to State, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStateChanged,
			Timestamp: m.since,
			Payload:   Change{From: from, To: to, Err: cause},
		})
	}
	return nil
}

// Change is the payload of db.state_changed events.
type Change struct {
	From State
	To   State
	Err  error
}
