package stream

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telemflow/telemflow-go/pkg/log"
	"github.com/telemflow/telemflow-go/pkg/telemetry"
)

// dedupWindowLimit bounds the per-subscriber set of seen message IDs.
// When exceeded, the oldest half is evicted.
const dedupWindowLimit = 1000

// changeEpsilon floors the denominator of the relative-change
// comparison so values near zero do not blow it up.
const changeEpsilon = 0.1

// Delivery is one coalesced delivery to a subscriber callback: the
// union of all significant field changes accumulated since the
// previous delivery.
type Delivery struct {
	// Time is when the delivery fired.
	Time time.Time

	// Fields maps field name to the latest significant value.
	Fields map[string]any
}

// Callback receives coalesced deliveries for one subscription.
// Invoked outside the subscriber's lock, at most once per quantum.
type Callback func(delivery Delivery)

// Subscriber is the throttle/coalescer for one (topic, consumer) pair.
// All state is guarded by mu; the callback is invoked outside it.
type Subscriber struct {
	id       string
	topic    string
	callback Callback
	opts     SubscribeOptions
	quantum  time.Duration
	percent  float64
	logger   log.Logger

	mu sync.Mutex

	// Dedup window: membership set plus insertion order for eviction.
	dedupWindow map[string]struct{}
	dedupOrder  []string

	// Last raw value per field. Numeric values live in lastValues for
	// threshold comparisons; everything else in lastRaw.
	lastValues map[string]float64
	lastRaw    map[string]any

	// Accumulated undelivered changes and how many raw inputs
	// contributed to them.
	pendingMerge map[string]any
	pendingCount int

	// At most one outstanding delivery timer.
	timer    *time.Timer
	timerSet bool

	visible bool
	paused  bool
	active  bool

	// Epoch-millisecond time of the last delivery; raw messages older
	// than this are stale.
	lastDeliveryMs int64

	lastMessageTime  time.Time
	messagesReceived uint64
	deliveries       uint64
}

// newSubscriber creates a subscriber with resolved options. The quantum
// and threshold must already be normalized by the router.
func newSubscriber(topic string, callback Callback, opts SubscribeOptions, quantum time.Duration, percent float64, logger log.Logger) *Subscriber {
	return &Subscriber{
		id:           uuid.NewString(),
		topic:        topic,
		callback:     callback,
		opts:         opts,
		quantum:      quantum,
		percent:      percent,
		logger:       log.OrNoop(logger),
		dedupWindow:  make(map[string]struct{}),
		lastValues:   make(map[string]float64),
		lastRaw:      make(map[string]any),
		pendingMerge: make(map[string]any),
		visible:      true,
		active:       true,
	}
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Topic returns the subscribed topic.
func (s *Subscriber) Topic() string {
	return s.topic
}

// OnMessage feeds one raw message through dedup, the out-of-order
// guard, and significant-change evaluation, then schedules a delivery
// if warranted.
func (s *Subscriber) OnMessage(msg *telemetry.Message) {
	if msg == nil {
		return
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}

	s.messagesReceived++
	s.lastMessageTime = time.Now()

	// Dedup by message ID when present.
	if msg.ID != "" {
		if _, seen := s.dedupWindow[msg.ID]; seen {
			s.mu.Unlock()
			s.logDrop(log.DropDuplicate, msg.ID, "")
			return
		}
		s.rememberIDLocked(msg.ID)
	}

	// Out-of-order guard: never accept input older than the last
	// delivery.
	if s.lastDeliveryMs > 0 && msg.Time < s.lastDeliveryMs {
		s.mu.Unlock()
		s.logDrop(log.DropStale, msg.ID, "")
		return
	}

	significant := false
	var malformed []string
	for field, value := range msg.Fields {
		if s.applyFieldLocked(field, value) {
			s.pendingMerge[field] = value
			significant = true
		} else if isMalformedNumeric(value) {
			malformed = append(malformed, field)
		}
	}

	if significant {
		s.pendingCount++
		if !s.gatedLocked() && !s.timerSet {
			s.scheduleLocked()
		}
	}
	hadFields := len(msg.Fields) > 0
	s.mu.Unlock()

	for _, field := range malformed {
		s.logDrop(log.DropMalformed, msg.ID, field)
	}
	if !significant && hadFields && len(malformed) == 0 {
		s.logDrop(log.DropInsignificant, msg.ID, "")
	}
}

// applyFieldLocked evaluates one field against the significant-change
// rule and updates last-value tracking unconditionally. Returns whether
// the change is significant.
func (s *Subscriber) applyFieldLocked(field string, value any) bool {
	num, ok := telemetry.NumericValue(value)
	if !ok {
		// Non-numeric fields are significant whenever the value
		// differs from the last one seen.
		prev, seen := s.lastRaw[field]
		s.lastRaw[field] = value
		return !seen || !telemetry.ValuesEqual(prev, value)
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return false
	}

	old, seen := s.lastValues[field]
	s.lastValues[field] = num
	if !seen {
		return true
	}
	return significantChange(old, num, s.percent)
}

// significantChange reports whether cur differs from old by a zero
// crossing or by at least percent relative change.
func significantChange(old, cur, percent float64) bool {
	if (old == 0) != (cur == 0) {
		return true
	}
	denom := math.Abs(old)
	if denom < changeEpsilon {
		denom = changeEpsilon
	}
	return math.Abs(cur-old)/denom*100 >= percent
}

// isMalformedNumeric reports whether a value looked numeric but cannot
// be used for comparisons.
func isMalformedNumeric(value any) bool {
	num, ok := telemetry.NumericValue(value)
	return ok && (math.IsNaN(num) || math.IsInf(num, 0))
}

// rememberIDLocked adds one ID to the dedup window, evicting the oldest
// half when the window exceeds its limit.
func (s *Subscriber) rememberIDLocked(id string) {
	s.dedupWindow[id] = struct{}{}
	s.dedupOrder = append(s.dedupOrder, id)

	if len(s.dedupWindow) <= dedupWindowLimit {
		return
	}
	half := len(s.dedupOrder) / 2
	for _, old := range s.dedupOrder[:half] {
		delete(s.dedupWindow, old)
	}
	s.dedupOrder = append([]string(nil), s.dedupOrder[half:]...)
}

// gatedLocked reports whether delivery is currently gated.
func (s *Subscriber) gatedLocked() bool {
	return s.paused || (!s.visible && s.opts.PauseOnHidden)
}

// scheduleLocked arms the single delivery timer for one quantum.
func (s *Subscriber) scheduleLocked() {
	s.timerSet = true
	s.timer = time.AfterFunc(s.quantum, s.deliver)
}

// deliver fires at quantum boundaries. With gates closed it reschedules
// rather than dropping; otherwise it hands the merged union to the
// callback.
func (s *Subscriber) deliver() {
	s.mu.Lock()
	s.timerSet = false
	if !s.active {
		s.mu.Unlock()
		return
	}
	if s.gatedLocked() {
		s.scheduleLocked()
		s.mu.Unlock()
		return
	}
	if len(s.pendingMerge) == 0 {
		s.mu.Unlock()
		return
	}

	fields := s.pendingMerge
	coalesced := s.pendingCount
	s.pendingMerge = make(map[string]any)
	s.pendingCount = 0

	now := time.Now()
	s.lastDeliveryMs = now.UnixMilli()
	s.deliveries++
	cb := s.callback
	s.mu.Unlock()

	cb(Delivery{Time: now, Fields: fields})

	s.logger.Log(log.Event{
		Timestamp:    now,
		Layer:        log.LayerStream,
		Category:     log.CategoryMessage,
		Topic:        s.topic,
		SubscriberID: s.id,
		Delivery: &log.DeliveryEvent{
			FieldCount:  len(fields),
			MessageTime: now.UnixMilli(),
			Coalesced:   coalesced,
		},
	})
}

// SetVisible toggles visibility. Becoming visible never flushes
// immediately; if changes are pending and no timer is outstanding, a
// fresh quantum timer is started so the next natural tick delivers.
func (s *Subscriber) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.visible == visible {
		return
	}
	s.visible = visible
	if !s.gatedLocked() && len(s.pendingMerge) > 0 && !s.timerSet {
		s.scheduleLocked()
	}
}

// SetPaused toggles the pause gate. Same un-gating semantics as
// SetVisible.
func (s *Subscriber) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.paused == paused {
		return
	}
	s.paused = paused
	if !s.gatedLocked() && len(s.pendingMerge) > 0 && !s.timerSet {
		s.scheduleLocked()
	}
}

// ClearCache resets dedup, last-value, and pending-merge state without
// destroying the subscription.
func (s *Subscriber) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.dedupWindow = make(map[string]struct{})
	s.dedupOrder = nil
	s.lastValues = make(map[string]float64)
	s.lastRaw = make(map[string]any)
	s.pendingMerge = make(map[string]any)
	s.pendingCount = 0
}

// LastMessageTime returns when the last raw message arrived.
func (s *Subscriber) LastMessageTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessageTime
}

// MessagesReceived returns the raw message count for this subscriber.
func (s *Subscriber) MessagesReceived() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesReceived
}

// Deliveries returns the coalesced delivery count.
func (s *Subscriber) Deliveries() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries
}

// close stops the delivery timer synchronously and marks the subscriber
// inactive so a concurrent timer fire becomes a no-op.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	if s.timerSet && s.timer != nil {
		s.timer.Stop()
		s.timerSet = false
	}
	s.dedupWindow = nil
	s.dedupOrder = nil
	s.pendingMerge = nil
	s.pendingCount = 0
}

// isActive reports whether the subscriber has not been unsubscribed.
func (s *Subscriber) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// isPaused reports the pause gate state.
func (s *Subscriber) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// isHidden reports whether the subscriber is gated by visibility.
func (s *Subscriber) isHidden() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.visible && s.opts.PauseOnHidden
}

// logDrop records one discarded input.
func (s *Subscriber) logDrop(reason log.DropReason, messageID, field string) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		Layer:        log.LayerStream,
		Category:     log.CategoryDrop,
		Topic:        s.topic,
		SubscriberID: s.id,
		Drop: &log.DropEvent{
			Reason:    reason,
			MessageID: messageID,
			Field:     field,
		},
	})
}
