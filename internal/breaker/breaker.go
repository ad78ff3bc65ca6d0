// Package breaker implements a per-service circuit breaker protecting the
// gateway from cascading failures in the core bank and partner banks.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the current mode of a circuit
type State string

const (
	// StateClosed allows calls through (normal operation)
	StateClosed State = "closed"
	// StateOpen rejects calls until the cooldown elapses
	StateOpen State = "open"
	// StateHalfOpen lets trial calls through to probe recovery
	StateHalfOpen State = "half_open"
)

// successesToClose is how many consecutive half-open successes close a circuit
const successesToClose = 2

// ErrOpen is returned when a call is rejected because the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// Manager tracks one circuit per service name
type Manager struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	circuits map[string]*circuit
}

type circuit struct {
	state        State
	failureCount int
	successCount int
	lastFailure  time.Time
}

// New creates a circuit breaker manager. A circuit opens after threshold
// consecutive failures and stays open for cooldown before probing.
func New(threshold int, cooldown time.Duration) *Manager {
	return &Manager{
		threshold: threshold,
		cooldown:  cooldown,
		circuits:  make(map[string]*circuit),
	}
}

func (m *Manager) circuitLocked(service string) *circuit {
	c, ok := m.circuits[service]
	if !ok {
		c = &circuit{state: StateClosed}
		m.circuits[service] = c
	}
	return c
}

// Call executes fn under circuit breaker protection for the named service.
// When the circuit is open, fn is not invoked and the error wraps ErrOpen.
func (m *Manager) Call(ctx context.Context, service string, fn func(context.Context) error) error {
	if err := m.before(service); err != nil {
		return err
	}

	err := fn(ctx)
	m.after(service, err == nil)
	return err
}

func (m *Manager) before(service string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.circuitLocked(service)
	if c.state == StateOpen {
		if time.Since(c.lastFailure) > m.cooldown {
			c.state = StateHalfOpen
			c.successCount = 0
			return nil
		}
		return fmt.Errorf("%w for %s", ErrOpen, service)
	}
	return nil
}

func (m *Manager) after(service string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.circuitLocked(service)
	if success {
		switch c.state {
		case StateHalfOpen:
			c.successCount++
			if c.successCount >= successesToClose {
				c.state = StateClosed
				c.failureCount = 0
			}
		case StateClosed:
			c.failureCount = 0
		}
		return
	}

	c.failureCount++
	c.lastFailure = time.Now()
	if c.state == StateHalfOpen || c.failureCount >= m.threshold {
		c.state = StateOpen
	}
}

// State returns the current state of the named circuit.
func (m *Manager) State(service string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.circuitLocked(service).state
}

// States returns a snapshot of all known circuits.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]State, len(m.circuits))
	for name, c := range m.circuits {
		states[name] = c.state
	}
	return states
}

// Reset manually closes the named circuit and clears its counters.
func (m *Manager) Reset(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.circuits[service] = &circuit{state: StateClosed}
}
