package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/telemflow/telemflow-go/pkg/log"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// connectTimeout bounds one reconnection attempt.
const connectTimeout = 10 * time.Second

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the connection manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc is called to establish a connection.
// It should return nil on success or an error on failure.
type ConnectFunc func(ctx context.Context) error

// Manager manages connection lifecycle with automatic reconnection and
// resume notification.
type Manager struct {
	mu sync.RWMutex

	// Current state
	state State

	// True once at least one connection has succeeded; a later
	// successful connection then counts as a resume.
	wasConnected bool

	// Backoff calculator
	backoff *Backoff

	// Connection function
	connectFn ConnectFunc

	// Auto-reconnect enabled
	autoReconnect bool

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for reconnection goroutine
	wg sync.WaitGroup

	// Channel to signal reconnection should start
	reconnectCh chan struct{}

	// Event logging
	logger log.Logger
	connID string

	// Callbacks
	onStateChange func(oldState, newState State)
	onResumed     func()
}

// NewManager creates a new connection manager.
func NewManager(connectFn ConnectFunc, logger log.Logger, connID string) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		state:         StateDisconnected,
		backoff:       NewBackoff(),
		connectFn:     connectFn,
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
		logger:        log.OrNoop(logger),
		connID:        connID,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// Connect initiates a connection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	old := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.notifyStateChange(old, StateConnecting, "")

	if err := m.connectFn(ctx); err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notifyStateChange(StateConnecting, StateDisconnected, err.Error())
		return err
	}

	m.markConnected(StateConnecting)
	return nil
}

// NotifyConnectionLost should be called when a connection loss is
// detected. This triggers automatic reconnection if enabled.
func (m *Manager) NotifyConnectionLost(reason string) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	old := m.state
	autoReconnect := m.autoReconnect
	if autoReconnect {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	m.mu.Unlock()

	m.notifyStateChange(old, newState, reason)

	if autoReconnect {
		m.triggerReconnect()
	}
}

// StartReconnectLoop starts the background reconnection loop.
// Must be called once before reconnection will work.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

// Close shuts down the connection manager.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.notifyStateChange(old, StateClosed, "")

	m.cancel()
	m.wg.Wait()
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnResumed sets a callback invoked after every successful reconnection
// that followed a connection loss. Not invoked for the first connect.
func (m *Manager) OnResumed(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResumed = fn
}

// markConnected transitions to connected and fires resume when this
// connection follows an earlier one.
func (m *Manager) markConnected(old State) {
	m.mu.Lock()
	resumed := m.wasConnected
	m.wasConnected = true
	m.state = StateConnected
	m.backoff.Reset()
	onResumed := m.onResumed
	m.mu.Unlock()

	m.notifyStateChange(old, StateConnected, "")

	if resumed && onResumed != nil {
		onResumed()
	}
}

// triggerReconnect signals that reconnection should be attempted.
func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

// reconnectLoop runs in a goroutine and handles reconnection attempts.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect performs reconnection with backoff.
func (m *Manager) attemptReconnect() {
	for {
		m.mu.RLock()
		state := m.state
		m.mu.RUnlock()

		if state == StateClosed || state == StateConnected {
			return
		}

		delay := m.backoff.Next()

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.Lock()
		if m.state == StateClosed || m.state == StateConnected {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(m.ctx, connectTimeout)
		err := m.connectFn(ctx)
		cancel()

		if err == nil {
			m.markConnected(StateReconnecting)
			return
		}

		// Failed - continue looping with next backoff
	}
}

// notifyStateChange invokes the state callback and logs the transition.
func (m *Manager) notifyStateChange(old, newState State, reason string) {
	m.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})

	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(old, newState)
	}
}
