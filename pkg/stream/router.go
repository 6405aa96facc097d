package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/log"
	"github.com/telemflow/telemflow-go/pkg/telemetry"
	"github.com/telemflow/telemflow-go/pkg/transport"
)

// Router errors.
var (
	ErrRouterClosed = errors.New("router closed")
	ErrNilCallback  = errors.New("nil callback")
)

// Router fans inbound messages out to per-topic subscribers and keeps
// one transport-level subscription alive per topic. A nil transport is
// allowed: subscriptions then work purely locally via Dispatch.
type Router struct {
	transport transport.Transport
	logger    log.Logger
	settings  config.Settings

	mu sync.Mutex

	// Feeds per topic, in registration order.
	feeds map[string][]*Feed

	// One transport-level unsubscribe per topic.
	transportSubs map[string]func()

	unsubConn   func()
	unsubResume func()

	connected bool
	closed    bool
}

// NewRouter creates a router on top of the given transport. The
// settings provide defaults for subscriptions that do not override
// interval or threshold. The transport may be nil.
func NewRouter(t transport.Transport, settings config.Settings, logger log.Logger) *Router {
	r := &Router{
		transport:     t,
		logger:        log.OrNoop(logger),
		settings:      settings.Normalized(),
		feeds:         make(map[string][]*Feed),
		transportSubs: make(map[string]func()),
	}

	if t != nil {
		r.unsubConn = t.OnConnectionChange(r.handleConnectionChange)
		r.unsubResume = t.OnResume(r.handleResume)
		if probe, ok := t.(interface{ IsConnected() bool }); ok {
			r.connected = probe.IsConnected()
		}
		t.UpdateSettings(r.settings)
	}

	return r
}

// Subscribe registers a callback for one topic and returns its Feed.
// Duplicate (topic, callback) pairs are allowed and independent. A nil
// opts pointer means defaults. Transport failures degrade to a local
// no-op subscription rather than failing the subscribe.
func (r *Router) Subscribe(topic string, callback Callback, opts *SubscribeOptions) (*Feed, error) {
	if topic == "" {
		return nil, telemetry.ErrMissingTopic
	}
	if callback == nil {
		return nil, ErrNilCallback
	}

	resolved := DefaultSubscribeOptions()
	if opts != nil {
		resolved = *opts
	}
	quantum := resolved.UpdateInterval
	if quantum <= 0 {
		quantum = r.settings.UpdateInterval
	}
	if quantum < config.MinUpdateInterval {
		quantum = config.MinUpdateInterval
	}
	percent := resolved.ChangeThresholdPercent
	if percent <= 0 {
		percent = r.settings.SignificantChangeThreshold
	}

	sub := newSubscriber(topic, callback, resolved, quantum, percent, r.logger)
	feed := &Feed{router: r, sub: sub}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRouterClosed
	}
	r.feeds[topic] = append(r.feeds[topic], feed)
	needTransportSub := r.transport != nil && r.transportSubs[topic] == nil
	r.mu.Unlock()

	if needTransportSub {
		r.ensureTransportSub(topic)
	}

	r.logger.Log(log.Event{
		Timestamp:    time.Now(),
		Layer:        log.LayerStream,
		Category:     log.CategoryState,
		Topic:        topic,
		SubscriberID: sub.ID(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscriber,
			NewState: "SUBSCRIBED",
		},
	})

	return feed, nil
}

// Dispatch routes one message to every subscriber registered for its
// topic, synchronously, in registration order. Messages with no
// registered topic are dropped.
func (r *Router) Dispatch(msg *telemetry.Message) {
	if msg == nil || msg.Topic == "" {
		return
	}

	r.mu.Lock()
	list := r.feeds[msg.Topic]
	targets := make([]*Feed, len(list))
	copy(targets, list)
	r.mu.Unlock()

	if len(targets) == 0 {
		r.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerStream,
			Category:  log.CategoryDrop,
			Topic:     msg.Topic,
			Drop: &log.DropEvent{
				Reason:    log.DropUnroutable,
				MessageID: msg.ID,
			},
		})
		return
	}

	for _, feed := range targets {
		feed.sub.OnMessage(msg)
	}
}

// IsConnected reports the transport connection state as last observed.
func (r *Router) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// UpdateSettings replaces the router's default settings for future
// subscriptions and forwards them to the transport, best-effort.
// Existing subscribers keep their resolved interval and threshold.
func (r *Router) UpdateSettings(settings config.Settings) {
	normalized := settings.Normalized()

	r.mu.Lock()
	r.settings = normalized
	t := r.transport
	r.mu.Unlock()

	if t != nil {
		t.UpdateSettings(normalized)
	}
}

// Close unsubscribes everything and detaches from the transport.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	feeds := r.feeds
	transportSubs := r.transportSubs
	r.feeds = make(map[string][]*Feed)
	r.transportSubs = make(map[string]func())
	unsubConn := r.unsubConn
	unsubResume := r.unsubResume
	r.mu.Unlock()

	if unsubConn != nil {
		unsubConn()
	}
	if unsubResume != nil {
		unsubResume()
	}
	for _, unsub := range transportSubs {
		unsub()
	}
	for _, list := range feeds {
		for _, feed := range list {
			feed.sub.close()
		}
	}
}

// ensureTransportSub creates the transport-level subscription for one
// topic. Failure is taxonomy "transport unavailable": the local
// subscription stays valid and Dispatch keeps working.
func (r *Router) ensureTransportSub(topic string) {
	unsub, err := r.transport.Subscribe(topic, func(msg *telemetry.Message) {
		r.Dispatch(msg)
	})
	if err != nil {
		r.logger.Log(log.ErrorEvent(log.LayerStream, err, "transport subscribe "+topic))
		return
	}

	r.mu.Lock()
	if r.closed || len(r.feeds[topic]) == 0 {
		r.mu.Unlock()
		unsub()
		return
	}
	if prev := r.transportSubs[topic]; prev != nil {
		prev()
	}
	r.transportSubs[topic] = unsub
	r.mu.Unlock()
}

// removeFeed detaches one feed, closing its subscriber and releasing
// the topic's transport subscription when it was the last one.
func (r *Router) removeFeed(feed *Feed) {
	topic := feed.sub.Topic()

	r.mu.Lock()
	list := r.feeds[topic]
	for i, f := range list {
		if f == feed {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	var unsub func()
	if len(list) == 0 {
		delete(r.feeds, topic)
		unsub = r.transportSubs[topic]
		delete(r.transportSubs, topic)
	} else {
		r.feeds[topic] = list
	}
	r.mu.Unlock()

	feed.sub.close()
	if unsub != nil {
		unsub()
	}

	r.logger.Log(log.Event{
		Timestamp:    time.Now(),
		Layer:        log.LayerStream,
		Category:     log.CategoryState,
		Topic:        topic,
		SubscriberID: feed.sub.ID(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscriber,
			NewState: "UNSUBSCRIBED",
		},
	})
}

// resubscribeTopic tears down and recreates one topic's transport-level
// subscription. Subscriber buffers are untouched. Returns false when no
// transport is attached.
func (r *Router) resubscribeTopic(topic string) bool {
	r.mu.Lock()
	if r.closed || r.transport == nil {
		r.mu.Unlock()
		return false
	}
	unsub := r.transportSubs[topic]
	delete(r.transportSubs, topic)
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.ensureTransportSub(topic)
	return true
}

// handleConnectionChange tracks the transport connection state.
func (r *Router) handleConnectionChange(connected bool) {
	r.mu.Lock()
	r.connected = connected
	r.mu.Unlock()
}

// handleResume recreates transport subscriptions for every topic that
// has at least one subscriber opted into resubscribe-on-resume.
func (r *Router) handleResume() {
	r.mu.Lock()
	topics := make([]string, 0, len(r.feeds))
	for topic, list := range r.feeds {
		for _, feed := range list {
			if feed.sub.opts.ResubscribeOnResume {
				topics = append(topics, topic)
				break
			}
		}
	}
	r.mu.Unlock()

	for _, topic := range topics {
		r.resubscribeTopic(topic)
	}
}
