package notify

import (
	"context"
	"sync"
)

// Mock records events for assertions in tests.
type Mock struct {
	mu     sync.Mutex
	events []Event
	closed bool

	// SendErr, when set, is returned from Send.
	SendErr error
}

// NewMock creates a Mock notifier.
func NewMock() *Mock {
	return &Mock{}
}

// Send implements Notifier.
func (m *Mock) Send(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.events = append(m.events, event)
	return nil
}

// Close implements Notifier.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (m *Mock) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
