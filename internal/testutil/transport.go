package testutil

import (
	"sync"

	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/telemetry"
	"github.com/telemflow/telemflow-go/pkg/transport"
)

// FakeTransport is an in-memory Transport for tests. Messages are
// injected with Push; connection and resume events are fired manually.
type FakeTransport struct {
	mu        sync.Mutex
	nextID    int
	handlers  map[string]map[int]transport.Handler
	connFns   map[int]func(bool)
	resumeFns map[int]func()

	connected bool

	// SubscribeErr, when set, makes Subscribe fail.
	SubscribeErr error

	// SubscribeCalls counts transport-level subscribes per topic.
	SubscribeCalls map[string]int

	// LastSettings records the most recent UpdateSettings call.
	LastSettings config.Settings
	SettingsSent int
}

// Compile-time interface satisfaction check.
var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a connected fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		handlers:       make(map[string]map[int]transport.Handler),
		connFns:        make(map[int]func(bool)),
		resumeFns:      make(map[int]func()),
		connected:      true,
		SubscribeCalls: make(map[string]int),
	}
}

// Subscribe registers a topic handler.
func (t *FakeTransport) Subscribe(topic string, handler transport.Handler) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.SubscribeErr != nil {
		return nil, t.SubscribeErr
	}
	t.SubscribeCalls[topic]++
	t.nextID++
	id := t.nextID
	set, ok := t.handlers[topic]
	if !ok {
		set = make(map[int]transport.Handler)
		t.handlers[topic] = set
	}
	set[id] = handler

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers[topic], id)
	}, nil
}

// OnConnectionChange registers a connection listener.
func (t *FakeTransport) OnConnectionChange(fn func(bool)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.connFns[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.connFns, id)
	}
}

// OnResume registers a resume listener.
func (t *FakeTransport) OnResume(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.resumeFns[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.resumeFns, id)
	}
}

// UpdateSettings records the settings.
func (t *FakeTransport) UpdateSettings(settings config.Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LastSettings = settings
	t.SettingsSent++
}

// IsConnected reports the simulated connection state.
func (t *FakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Push injects one message to every handler for its topic.
func (t *FakeTransport) Push(msg *telemetry.Message) {
	t.mu.Lock()
	set := t.handlers[msg.Topic]
	handlers := make([]transport.Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// SetConnected flips the simulated connection state and notifies
// listeners.
func (t *FakeTransport) SetConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	fns := make([]func(bool), 0, len(t.connFns))
	for _, fn := range t.connFns {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

// FireResume notifies resume listeners.
func (t *FakeTransport) FireResume() {
	t.mu.Lock()
	fns := make([]func(), 0, len(t.resumeFns))
	for _, fn := range t.resumeFns {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// HandlerCount returns the number of live handlers for a topic.
func (t *FakeTransport) HandlerCount(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers[topic])
}
