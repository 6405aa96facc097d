package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func sampleEvent() Event {
	return Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: "conn-1",
		Layer:        LayerStream,
		Category:     CategoryDrop,
		Topic:        "cell",
		SubscriberID: "sub-1",
		Drop: &DropEvent{
			Reason:    DropDuplicate,
			MessageID: "m-1",
		},
	}
}

func TestFileLoggerWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	logger.Log(sampleEvent())
	logger.Log(ErrorEvent(LayerHistory, os.ErrDeadlineExceeded, "fetch /cell"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	dec := NewDecoder(f)

	var first Event
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode first event: %v", err)
	}
	if first.Category != CategoryDrop || first.Drop == nil || first.Drop.Reason != DropDuplicate {
		t.Errorf("first event = %+v, want duplicate drop", first)
	}
	if first.Topic != "cell" || first.SubscriberID != "sub-1" {
		t.Errorf("first event context = %q/%q", first.Topic, first.SubscriberID)
	}

	var second Event
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("decode second event: %v", err)
	}
	if second.Category != CategoryError || second.Error == nil {
		t.Errorf("second event = %+v, want error event", second)
	}
	if second.Error.Context != "fetch /cell" {
		t.Errorf("error context = %q", second.Error.Context)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger: %v", err)
		}
		logger.Log(sampleEvent())
		logger.Close()
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	dec := NewDecoder(f)
	count := 0
	var e Event
	for dec.Decode(&e) == nil {
		count++
	}
	if count != 2 {
		t.Errorf("events after reopen = %d, want 2", count)
	}
}

func TestFileLoggerLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	logger.Close()

	// Must not panic or write.
	logger.Log(sampleEvent())

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("file size = %d after post-close log, want 0", info.Size())
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(sampleEvent())
			}
		}()
	}
	wg.Wait()
	logger.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	dec := NewDecoder(f)
	count := 0
	var e Event
	for dec.Decode(&e) == nil {
		count++
	}
	if count != 200 {
		t.Errorf("events = %d, want 200", count)
	}
}

func TestMultiLoggerFansOut(t *testing.T) {
	type counter struct {
		mu sync.Mutex
		n  int
	}
	count := func(c *counter) Logger {
		return loggerFunc(func(Event) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.n++
		})
	}

	a, b := &counter{}, &counter{}
	multi := NewMultiLogger(count(a), count(b))
	multi.Log(sampleEvent())

	if a.n != 1 || b.n != 1 {
		t.Errorf("fan-out counts = (%d, %d), want (1, 1)", a.n, b.n)
	}
}

// loggerFunc adapts a function to the Logger interface.
type loggerFunc func(Event)

func (f loggerFunc) Log(e Event) { f(e) }

func TestOrNoop(t *testing.T) {
	if OrNoop(nil) == nil {
		t.Error("OrNoop(nil) = nil, want NoopLogger")
	}
	l := NoopLogger{}
	if OrNoop(l) != l {
		t.Error("OrNoop should pass through non-nil loggers")
	}
}
