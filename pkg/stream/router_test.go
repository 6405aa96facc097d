package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/telemflow/telemflow-go/internal/testutil"
	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/log"
	"github.com/telemflow/telemflow-go/pkg/telemetry"
)

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.UpdateInterval = testQuantum
	return s
}

func TestRouterDispatchFanOut(t *testing.T) {
	r := NewRouter(nil, testSettings(), nil)
	defer r.Close()

	c1, c2 := &collector{}, &collector{}
	if _, err := r.Subscribe("cell", c1.callback, nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := r.Subscribe("cell", c2.callback, nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	r.Dispatch(msg("", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)

	if c1.count() != 1 || c2.count() != 1 {
		t.Errorf("deliveries = (%d, %d), want (1, 1)", c1.count(), c2.count())
	}
}

func TestRouterUnroutableDrop(t *testing.T) {
	logger := &captureLog{}
	r := NewRouter(nil, testSettings(), logger)
	defer r.Close()

	r.Dispatch(msg("m-1", nowMs(), map[string]any{"v": 1.0}))

	if logger.drops(log.DropUnroutable) != 1 {
		t.Errorf("unroutable drops = %d, want 1", logger.drops(log.DropUnroutable))
	}
}

func TestRouterTopicIsolation(t *testing.T) {
	r := NewRouter(nil, testSettings(), nil)
	defer r.Close()

	c := &collector{}
	if _, err := r.Subscribe("therm", c.callback, nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	r.Dispatch(msg("", nowMs(), map[string]any{"v": 1.0})) // topic "cell"
	time.Sleep(3 * testQuantum)

	if c.count() != 0 {
		t.Errorf("deliveries = %d for other topic, want 0", c.count())
	}
}

func TestRouterSubscribeValidation(t *testing.T) {
	r := NewRouter(nil, testSettings(), nil)
	defer r.Close()

	if _, err := r.Subscribe("", (&collector{}).callback, nil); !errors.Is(err, telemetry.ErrMissingTopic) {
		t.Errorf("empty topic error = %v, want ErrMissingTopic", err)
	}
	if _, err := r.Subscribe("cell", nil, nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("nil callback error = %v, want ErrNilCallback", err)
	}
}

func TestRouterSharedTransportSubscription(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	c1, c2 := &collector{}, &collector{}
	f1, err := r.Subscribe("cell", c1.callback, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := r.Subscribe("cell", c2.callback, nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// One transport-level subscription serves both feeds.
	if calls := ft.SubscribeCalls["cell"]; calls != 1 {
		t.Errorf("transport subscribes = %d, want 1", calls)
	}

	ft.Push(msg("", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)
	if c1.count() != 1 || c2.count() != 1 {
		t.Errorf("deliveries = (%d, %d), want (1, 1)", c1.count(), c2.count())
	}

	// Releasing one feed keeps the transport subscription.
	f1.Unsubscribe()
	if n := ft.HandlerCount("cell"); n != 1 {
		t.Errorf("transport handlers = %d after partial unsubscribe, want 1", n)
	}
}

func TestRouterUnsubscribeReleasesTransport(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	c := &collector{}
	feed, err := r.Subscribe("cell", c.callback, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ft.Push(msg("", nowMs(), map[string]any{"v": 1.0}))
	feed.Unsubscribe()

	// Timer was stopped synchronously; nothing may fire afterward.
	time.Sleep(3 * testQuantum)
	if c.count() != 0 {
		t.Errorf("deliveries = %d after unsubscribe, want 0", c.count())
	}
	if n := ft.HandlerCount("cell"); n != 0 {
		t.Errorf("transport handlers = %d after last unsubscribe, want 0", n)
	}
	if feed.Status() != StatusClosed {
		t.Errorf("Status = %v after unsubscribe, want CLOSED", feed.Status())
	}
}

func TestRouterResumeResubscribes(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	c := &collector{}
	if _, err := r.Subscribe("cell", c.callback, nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ft.Push(msg("", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)

	ft.FireResume()

	if calls := ft.SubscribeCalls["cell"]; calls != 2 {
		t.Errorf("transport subscribes = %d after resume, want 2", calls)
	}
	if n := ft.HandlerCount("cell"); n != 1 {
		t.Errorf("transport handlers = %d after resume, want 1", n)
	}

	// Subscriber state survived: the unchanged value is insignificant.
	ft.Push(msg("", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Errorf("deliveries = %d after resume with unchanged value, want 1", c.count())
	}
}

func TestRouterResumeRespectsOptOut(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	opts := DefaultSubscribeOptions()
	opts.ResubscribeOnResume = false
	if _, err := r.Subscribe("cell", (&collector{}).callback, &opts); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ft.FireResume()

	if calls := ft.SubscribeCalls["cell"]; calls != 1 {
		t.Errorf("transport subscribes = %d with resubscribe disabled, want 1", calls)
	}
}

func TestRouterNilTransport(t *testing.T) {
	r := NewRouter(nil, testSettings(), nil)
	defer r.Close()

	c := &collector{}
	feed, err := r.Subscribe("cell", c.callback, nil)
	if err != nil {
		t.Fatalf("Subscribe with nil transport: %v", err)
	}

	if feed.ForceResubscribe() {
		t.Error("ForceResubscribe = true with nil transport, want false")
	}
	if feed.IsConnected() {
		t.Error("IsConnected = true with nil transport, want false")
	}
}

func TestRouterTransportSubscribeFailure(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.SubscribeErr = errors.New("no route to vehicle")
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	// Subscribe degrades to a local-only subscription.
	c := &collector{}
	if _, err := r.Subscribe("cell", c.callback, nil); err != nil {
		t.Fatalf("Subscribe with failing transport: %v", err)
	}

	r.Dispatch(msg("", nowMs(), map[string]any{"v": 1.0}))
	time.Sleep(3 * testQuantum)
	if c.count() != 1 {
		t.Errorf("deliveries = %d via local dispatch, want 1", c.count())
	}
}

func TestRouterForceResubscribe(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	feed, err := r.Subscribe("cell", (&collector{}).callback, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if !feed.ForceResubscribe() {
		t.Fatal("ForceResubscribe = false, want true")
	}
	if calls := ft.SubscribeCalls["cell"]; calls != 2 {
		t.Errorf("transport subscribes = %d after force, want 2", calls)
	}
}

func TestFeedStatus(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	feed, err := r.Subscribe("cell", (&collector{}).callback, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if feed.Status() != StatusLive {
		t.Errorf("Status = %v, want LIVE", feed.Status())
	}

	feed.PauseProcessing(true)
	if feed.Status() != StatusPaused {
		t.Errorf("Status = %v while paused, want PAUSED", feed.Status())
	}
	feed.PauseProcessing(false)

	feed.SetVisible(false)
	if feed.Status() != StatusHidden {
		t.Errorf("Status = %v while hidden, want HIDDEN", feed.Status())
	}
	feed.SetVisible(true)

	ft.SetConnected(false)
	if feed.Status() != StatusDisconnected {
		t.Errorf("Status = %v while disconnected, want DISCONNECTED", feed.Status())
	}
	if feed.IsConnected() {
		t.Error("IsConnected = true after disconnect")
	}
}

func TestFeedCounters(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	feed, err := r.Subscribe("cell", (&collector{}).callback, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if !feed.LastMessageTime().IsZero() {
		t.Error("LastMessageTime non-zero before any message")
	}

	before := time.Now()
	ft.Push(msg("", nowMs(), map[string]any{"v": 1.0}))
	ft.Push(msg("", nowMs(), map[string]any{"v": 2.0}))

	if feed.MessagesReceived() != 2 {
		t.Errorf("MessagesReceived = %d, want 2", feed.MessagesReceived())
	}
	if feed.LastMessageTime().Before(before) {
		t.Error("LastMessageTime not updated")
	}
}

func TestRouterUpdateSettingsForwarded(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)
	defer r.Close()

	sent := ft.SettingsSent // NewRouter forwards once already
	s := testSettings()
	s.SignificantChangeThreshold = 5.0
	r.UpdateSettings(s)

	if ft.SettingsSent != sent+1 {
		t.Errorf("SettingsSent = %d, want %d", ft.SettingsSent, sent+1)
	}
	if ft.LastSettings.SignificantChangeThreshold != 5.0 {
		t.Errorf("forwarded threshold = %v, want 5.0", ft.LastSettings.SignificantChangeThreshold)
	}
}

func TestRouterCloseStopsEverything(t *testing.T) {
	ft := testutil.NewFakeTransport()
	r := NewRouter(ft, testSettings(), nil)

	c := &collector{}
	if _, err := r.Subscribe("cell", c.callback, nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ft.Push(msg("", nowMs(), map[string]any{"v": 1.0}))
	r.Close()

	time.Sleep(3 * testQuantum)
	if c.count() != 0 {
		t.Errorf("deliveries = %d after Close, want 0", c.count())
	}
	if _, err := r.Subscribe("cell", c.callback, nil); !errors.Is(err, ErrRouterClosed) {
		t.Errorf("Subscribe after Close error = %v, want ErrRouterClosed", err)
	}
}
