package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/connection"
	"github.com/telemflow/telemflow-go/pkg/log"
	"github.com/telemflow/telemflow-go/pkg/telemetry"
)

// Transport errors.
var (
	ErrClientClosed = errors.New("transport client closed")
)

const (
	// writeWait bounds one outbound write.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before declaring the
	// connection dead.
	pongWait = 60 * time.Second

	// pingPeriod is the ping interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// frameLogLimit caps how many raw frame bytes are logged per frame.
	frameLogLimit = 256
)

// controlFrame is the JSON control message sent to the server for
// subscribe/unsubscribe and settings updates.
type controlFrame struct {
	Action   string         `json:"action"`
	Topic    string         `json:"topic,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// WSClient implements Transport over a single websocket connection.
type WSClient struct {
	url    string
	logger log.Logger
	connID string

	manager *connection.Manager

	// writeMu serializes outbound frames. gorilla/websocket allows at
	// most one concurrent writer per connection, and control frames,
	// pings, and dial-time resubscribes come from different goroutines.
	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	nextID  int
	topics  map[string]map[int]Handler
	connFns map[int]func(bool)
	resumes map[int]func()
}

// NewWSClient creates a websocket transport client for the given server
// URL (ws:// or wss://). The client does not connect until Connect is
// called.
func NewWSClient(url string, logger log.Logger) *WSClient {
	c := &WSClient{
		url:     url,
		logger:  log.OrNoop(logger),
		connID:  uuid.NewString(),
		topics:  make(map[string]map[int]Handler),
		connFns: make(map[int]func(bool)),
		resumes: make(map[int]func()),
	}

	c.manager = connection.NewManager(c.dial, logger, c.connID)
	c.manager.OnStateChange(c.handleStateChange)
	c.manager.OnResumed(c.handleResumed)
	c.manager.StartReconnectLoop()

	return c
}

// ConnectionID returns the client's connection identifier.
func (c *WSClient) ConnectionID() string {
	return c.connID
}

// Connect establishes the websocket connection. Reconnection after
// later losses is automatic.
func (c *WSClient) Connect(ctx context.Context) error {
	return c.manager.Connect(ctx)
}

// IsConnected reports whether the connection is currently up.
func (c *WSClient) IsConnected() bool {
	return c.manager.IsConnected()
}

// Close shuts down the client. All registered handlers and listeners
// are released.
func (c *WSClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.topics = make(map[string]map[int]Handler)
	c.connFns = make(map[int]func(bool))
	c.resumes = make(map[int]func())
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.manager.Close()
}

// Subscribe registers a handler for one topic. A subscribe control
// frame is sent to the server best-effort; client-side filtering keeps
// working regardless.
func (c *WSClient) Subscribe(topic string, handler Handler) (func(), error) {
	if topic == "" {
		return nil, telemetry.ErrMissingTopic
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.nextID++
	id := c.nextID
	set, ok := c.topics[topic]
	if !ok {
		set = make(map[int]Handler)
		c.topics[topic] = set
	}
	first := len(set) == 0
	set[id] = handler
	c.mu.Unlock()

	if first {
		c.sendControl(controlFrame{Action: "subscribe", Topic: topic})
	}

	unsubscribe := func() {
		c.mu.Lock()
		set, ok := c.topics[topic]
		if ok {
			delete(set, id)
			if len(set) == 0 {
				delete(c.topics, topic)
			}
		}
		last := ok && len(set) == 0
		closed := c.closed
		c.mu.Unlock()

		if last && !closed {
			c.sendControl(controlFrame{Action: "unsubscribe", Topic: topic})
		}
	}
	return unsubscribe, nil
}

// OnConnectionChange registers a connection-state listener.
func (c *WSClient) OnConnectionChange(fn func(connected bool)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.connFns[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.connFns, id)
		c.mu.Unlock()
	}
}

// OnResume registers a resume listener.
func (c *WSClient) OnResume(fn func()) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.resumes[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.resumes, id)
		c.mu.Unlock()
	}
}

// UpdateSettings forwards settings to the server, best-effort. The
// server may use them to pace or pre-filter the feed.
func (c *WSClient) UpdateSettings(settings config.Settings) {
	c.sendControl(controlFrame{
		Action: "settings",
		Settings: map[string]any{
			"updateIntervalMs": settings.UpdateInterval.Milliseconds(),
			"changeThreshold":  settings.SignificantChangeThreshold,
		},
	})
}

// dial establishes one websocket connection and starts its read and
// ping loops. Called by the connection manager.
func (c *WSClient) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	old := c.conn
	c.conn = conn
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	// Re-issue server-side subscriptions for the new connection.
	for _, topic := range topics {
		c.sendControl(controlFrame{Action: "subscribe", Topic: topic})
	}

	go c.readLoop(conn)
	go c.pingLoop(conn)

	return nil
}

// readLoop reads frames until the connection fails, then notifies the
// connection manager so reconnection can begin.
func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn
			closed := c.closed
			if current {
				c.conn = nil
			}
			c.mu.Unlock()

			_ = conn.Close()
			if current && !closed {
				c.manager.NotifyConnectionLost(err.Error())
			}
			return
		}

		c.logFrame(data)
		c.dispatch(msgType, data)
	}
}

// pingLoop keeps the connection alive. Exits when a write fails; the
// read loop then observes the dead connection.
func (c *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.conn == conn
		c.mu.Unlock()
		if !current {
			return
		}

		if err := c.writeMessage(conn, websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

// writeMessage performs one serialized write on a connection. All
// outbound frames go through here.
func (c *WSClient) writeMessage(conn *websocket.Conn, msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(msgType, data)
}

// dispatch decodes one frame and fans it out to the topic's handlers.
// Binary frames are CBOR, text frames are JSON.
func (c *WSClient) dispatch(msgType int, data []byte) {
	var msg *telemetry.Message
	var err error
	if msgType == websocket.BinaryMessage {
		msg, err = telemetry.DecodeMessage(data)
	} else {
		msg, err = telemetry.DecodeMessageJSON(data)
	}
	if err != nil {
		c.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.connID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryDrop,
			Drop: &log.DropEvent{
				Reason: log.DropMalformed,
			},
		})
		return
	}

	c.mu.Lock()
	set := c.topics[msg.Topic]
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// sendControl writes a JSON control frame, best-effort.
func (c *WSClient) sendControl(frame controlFrame) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	if err := c.writeMessage(conn, websocket.TextMessage, data); err != nil {
		c.logger.Log(log.ErrorEvent(log.LayerTransport, err, "send control frame"))
	}
}

// logFrame records one raw inbound frame, truncating large payloads.
func (c *WSClient) logFrame(data []byte) {
	logged := data
	truncated := false
	if len(logged) > frameLogLimit {
		logged = logged[:frameLogLimit]
		truncated = true
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      logged,
			Truncated: truncated,
		},
	})
}

// handleStateChange forwards connection up/down transitions to
// registered listeners.
func (c *WSClient) handleStateChange(old, newState connection.State) {
	var connected bool
	switch {
	case newState == connection.StateConnected:
		connected = true
	case old == connection.StateConnected:
		connected = false
	default:
		return
	}

	c.mu.Lock()
	fns := make([]func(bool), 0, len(c.connFns))
	for _, fn := range c.connFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

// handleResumed forwards resume notifications to registered listeners.
func (c *WSClient) handleResumed() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.resumes))
	for _, fn := range c.resumes {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
