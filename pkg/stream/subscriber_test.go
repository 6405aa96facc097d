package stream

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/telemflow/telemflow-go/pkg/log"
	"github.com/telemflow/telemflow-go/pkg/telemetry"
)

// testQuantum keeps test sleeps short.
const testQuantum = 40 * time.Millisecond

// collector records deliveries for assertions.
type collector struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (c *collector) callback(d Delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, d)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveries)
}

func (c *collector) last() Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliveries[len(c.deliveries)-1]
}

// captureLog records events without pulling in other packages.
type captureLog struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *captureLog) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *captureLog) drops(reason log.DropReason) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Drop != nil && e.Drop.Reason == reason {
			n++
		}
	}
	return n
}

func testSubscriber(percent float64) (*Subscriber, *collector, *captureLog) {
	c := &collector{}
	logger := &captureLog{}
	sub := newSubscriber("cell", c.callback, DefaultSubscribeOptions(), testQuantum, percent, logger)
	return sub, c, logger
}

func msg(id string, timeMs int64, fields map[string]any) *telemetry.Message {
	return &telemetry.Message{ID: id, Topic: "cell", Time: timeMs, Fields: fields}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func TestSubscriberFirstValueDelivers(t *testing.T) {
	sub, c, _ := testSubscriber(1.0)

	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 3.7}))

	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}
	if v := c.last().Fields["v"]; v != 3.7 {
		t.Errorf("delivered v = %v, want 3.7", v)
	}
}

func TestSubscriberInsignificantChangeNotDelivered(t *testing.T) {
	sub, c, logger := testSubscriber(1.0)

	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}

	// 0.2% change, under the 1% threshold
	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.002}))
	time.Sleep(3 * testQuantum)

	if c.count() != 1 {
		t.Errorf("deliveries = %d after insignificant change, want 1", c.count())
	}
	if logger.drops(log.DropInsignificant) == 0 {
		t.Error("insignificant change should be logged as a drop")
	}
}

func TestSubscriberSignificantChangeDelivered(t *testing.T) {
	sub, c, _ := testSubscriber(1.0)

	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)

	// 10% change crosses the 1% threshold
	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.1}))
	time.Sleep(3 * testQuantum)

	if c.count() != 2 {
		t.Fatalf("deliveries = %d, want 2", c.count())
	}
	if v := c.last().Fields["v"]; v != 1.1 {
		t.Errorf("delivered v = %v, want 1.1", v)
	}
}

func TestSubscriberZeroCrossing(t *testing.T) {
	sub, c, _ := testSubscriber(1000.0) // threshold too high for relative rule

	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 0.05}))
	time.Sleep(3 * testQuantum)

	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 0.0}))
	time.Sleep(3 * testQuantum)

	if c.count() != 2 {
		t.Errorf("deliveries = %d, want 2 (zero crossing is always significant)", c.count())
	}
}

func TestSubscriberThresholdAgainstLastSeenValue(t *testing.T) {
	// lastValues updates for every numeric field seen, so a slow drift
	// of sub-threshold steps never accumulates into a delivery.
	sub, c, _ := testSubscriber(1.0)

	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 100.0}))
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}

	for i := 1; i <= 5; i++ {
		sub.OnMessage(msg("", nowMs(), map[string]any{"v": 100.0 + float64(i)*0.5}))
		time.Sleep(2 * testQuantum)
	}

	if c.count() != 1 {
		t.Errorf("deliveries = %d after sub-threshold drift, want 1", c.count())
	}
}

func TestSubscriberBurstCoalesces(t *testing.T) {
	sub, c, _ := testSubscriber(1.0)

	// Burst within one quantum: all merge into a single delivery
	// carrying the last value.
	base := nowMs()
	sub.OnMessage(msg("", base, map[string]any{"v": 10.0}))
	sub.OnMessage(msg("", base+1, map[string]any{"v": 10.2}))
	sub.OnMessage(msg("", base+2, map[string]any{"v": 10.5}))

	time.Sleep(3 * testQuantum)

	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 (burst coalesced)", c.count())
	}
	if v := c.last().Fields["v"]; v != 10.5 {
		t.Errorf("delivered v = %v, want last value 10.5", v)
	}
}

func TestSubscriberDedup(t *testing.T) {
	sub, c, logger := testSubscriber(1.0)

	m := msg("m-1", nowMs(), map[string]any{"v": 5.0})
	sub.OnMessage(m)
	sub.OnMessage(m)

	time.Sleep(3 * testQuantum)

	if c.count() != 1 {
		t.Errorf("deliveries = %d for duplicate ID, want 1", c.count())
	}
	if logger.drops(log.DropDuplicate) != 1 {
		t.Errorf("duplicate drops = %d, want 1", logger.drops(log.DropDuplicate))
	}
}

func TestSubscriberDedupWindowEviction(t *testing.T) {
	sub, _, logger := testSubscriber(1.0)

	sub.OnMessage(msg("first", nowMs(), map[string]any{"v": 1.0}))
	for i := 0; i < dedupWindowLimit; i++ {
		sub.OnMessage(msg(fmt.Sprintf("id-%d", i), nowMs(), map[string]any{"v": float64(i)}))
	}

	// The window overflowed and evicted its oldest half, so the first
	// ID is no longer remembered.
	sub.OnMessage(msg("first", nowMs(), map[string]any{"v": 2.0}))

	if drops := logger.drops(log.DropDuplicate); drops != 0 {
		t.Errorf("duplicate drops = %d after eviction, want 0", drops)
	}
}

func TestSubscriberStaleDrop(t *testing.T) {
	sub, c, logger := testSubscriber(1.0)

	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}

	// Older than the last delivery: dropped, even though the value
	// change is significant.
	sub.OnMessage(msg("", nowMs()-60000, map[string]any{"v": 99.0}))
	time.Sleep(3 * testQuantum)

	if c.count() != 1 {
		t.Errorf("deliveries = %d after stale message, want 1", c.count())
	}
	if logger.drops(log.DropStale) != 1 {
		t.Errorf("stale drops = %d, want 1", logger.drops(log.DropStale))
	}
}

func TestSubscriberHiddenMergesWithoutDelivering(t *testing.T) {
	sub, c, _ := testSubscriber(1.0)

	sub.SetVisible(false)
	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.0}))
	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 2.0}))

	time.Sleep(3 * testQuantum)
	if c.count() != 0 {
		t.Fatalf("deliveries = %d while hidden, want 0", c.count())
	}

	// Unhiding must not flush immediately.
	sub.SetVisible(true)
	if c.count() != 0 {
		t.Error("unhide flushed immediately, want delivery on next quantum")
	}

	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Fatalf("deliveries = %d after unhide, want 1", c.count())
	}
	if v := c.last().Fields["v"]; v != 2.0 {
		t.Errorf("delivered v = %v, want merged last value 2.0", v)
	}
}

func TestSubscriberPauseGate(t *testing.T) {
	sub, c, _ := testSubscriber(1.0)

	sub.SetPaused(true)
	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 7.0}))
	time.Sleep(3 * testQuantum)
	if c.count() != 0 {
		t.Fatalf("deliveries = %d while paused, want 0", c.count())
	}

	sub.SetPaused(false)
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Errorf("deliveries = %d after unpause, want 1", c.count())
	}
}

func TestSubscriberHiddenWithPauseOnHiddenDisabled(t *testing.T) {
	c := &collector{}
	opts := DefaultSubscribeOptions()
	opts.PauseOnHidden = false
	sub := newSubscriber("cell", c.callback, opts, testQuantum, 1.0, nil)

	sub.SetVisible(false)
	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.0}))

	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Errorf("deliveries = %d with pauseOnHidden disabled, want 1", c.count())
	}
}

func TestSubscriberGatedTimerReschedules(t *testing.T) {
	sub, c, _ := testSubscriber(1.0)

	// Message schedules a timer, then the gate closes before it fires.
	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.0}))
	sub.SetPaused(true)

	time.Sleep(3 * testQuantum)
	if c.count() != 0 {
		t.Fatalf("deliveries = %d while paused, want 0 (rescheduled)", c.count())
	}

	sub.SetPaused(false)
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Errorf("deliveries = %d after unpause, want 1", c.count())
	}
}

func TestSubscriberNonNumericFields(t *testing.T) {
	sub, c, _ := testSubscriber(1.0)

	sub.OnMessage(msg("", nowMs(), map[string]any{"state": "charging"}))
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}

	// Same value: not significant.
	sub.OnMessage(msg("", nowMs(), map[string]any{"state": "charging"}))
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Fatalf("deliveries = %d after repeated string, want 1", c.count())
	}

	// Different value: significant.
	sub.OnMessage(msg("", nowMs(), map[string]any{"state": "idle"}))
	time.Sleep(3 * testQuantum)
	if c.count() != 2 {
		t.Errorf("deliveries = %d after changed string, want 2", c.count())
	}
}

func TestSubscriberMalformedFieldSkipped(t *testing.T) {
	sub, c, logger := testSubscriber(1.0)

	nan := telemetry.Tagged{Tag: "c1", Value: 0}
	nan.Value = nan.Value / nan.Value // NaN

	sub.OnMessage(msg("", nowMs(), map[string]any{"bad": nan, "good": 4.2}))
	time.Sleep(3 * testQuantum)

	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 (good field still delivers)", c.count())
	}
	if _, ok := c.last().Fields["bad"]; ok {
		t.Error("malformed field was delivered")
	}
	if logger.drops(log.DropMalformed) != 1 {
		t.Errorf("malformed drops = %d, want 1", logger.drops(log.DropMalformed))
	}

	// The subscriber survives and keeps delivering.
	sub.OnMessage(msg("", nowMs(), map[string]any{"good": 8.4}))
	time.Sleep(3 * testQuantum)
	if c.count() != 2 {
		t.Errorf("deliveries = %d after bad message, want 2", c.count())
	}
}

func TestSubscriberClearCache(t *testing.T) {
	sub, c, logger := testSubscriber(1.0)

	sub.OnMessage(msg("m-1", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)

	sub.ClearCache()

	// Previously seen ID and value are both forgotten.
	sub.OnMessage(msg("m-1", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)

	if logger.drops(log.DropDuplicate) != 0 {
		t.Error("duplicate drop after ClearCache, dedup window should be empty")
	}
	if c.count() != 2 {
		t.Errorf("deliveries = %d, want 2 (last values forgotten)", c.count())
	}
}

func TestSubscriberCloseStopsDelivery(t *testing.T) {
	sub, c, _ := testSubscriber(1.0)

	sub.OnMessage(msg("", nowMs(), map[string]any{"v": 1.0}))
	sub.close()

	time.Sleep(3 * testQuantum)
	if c.count() != 0 {
		t.Errorf("deliveries = %d after close, want 0", c.count())
	}
	if sub.isActive() {
		t.Error("isActive() = true after close")
	}
}

func TestSignificantChangeRule(t *testing.T) {
	cases := []struct {
		old, cur, percent float64
		want              bool
	}{
		{1.0, 1.002, 1.0, false}, // 0.2% < 1%
		{1.0, 1.1, 1.0, true},    // 10% >= 1%
		{1.0, 1.01, 1.0, true},   // exactly 1%
		{0.0, 0.001, 50.0, true}, // zero crossing
		{0.001, 0.0, 50.0, true}, // zero crossing the other way
		{0.01, 0.02, 5.0, true},  // epsilon denominator: 0.01/0.1 = 10%
		{100.0, 100.5, 1.0, false},
		{-1.0, -1.1, 1.0, true},
	}
	for _, tc := range cases {
		got := significantChange(tc.old, tc.cur, tc.percent)
		if got != tc.want {
			t.Errorf("significantChange(%v, %v, %v%%) = %v, want %v",
				tc.old, tc.cur, tc.percent, got, tc.want)
		}
	}
}
