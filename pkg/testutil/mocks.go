// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/storefront/internal/app/mail"
)

// MockSender is a test implementation of mail.Sender that records messages
// instead of delivering them.
type MockSender struct {
	mu     sync.RWMutex
	sent   []mail.Message
	err    error
	failTo map[string]error
	onSend func()
}

var _ mail.Sender = (*MockSender)(nil)

// NewMockSender creates a sender that accepts every message.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send records msg, or returns the configured error without recording it.
// The OnSend hook runs first and may reconfigure the mock.
func (m *MockSender) Send(_ context.Context, msg mail.Message) error {
	m.mu.RLock()
	hook := m.onSend
	m.mu.RUnlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err, ok := m.failTo[msg.To]; ok {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Verify returns the configured error.
func (m *MockSender) Verify(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// SetError makes Send and Verify fail with err. Pass nil to recover.
func (m *MockSender) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// FailFor makes every Send addressed to recipient fail with err.
func (m *MockSender) FailFor(recipient string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo == nil {
		m.failTo = make(map[string]error)
	}
	m.failTo[recipient] = err
}

// OnSend installs a hook that runs at the start of every Send.
func (m *MockSender) OnSend(fn func()) {
	m.mu.Lock()
	m.onSend = fn
	m.mu.Unlock()
}

// Sent returns a copy of the recorded messages.
func (m *MockSender) Sent() []mail.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]mail.Message(nil), m.sent...)
}

// Reset clears recorded messages, configured failures and the hook.
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.err = nil
	m.failTo = nil
	m.onSend = nil
}

// Clock is a manually driven time source. Pass its Now method to WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
