package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/history"
	"github.com/telemflow/telemflow-go/pkg/stream"
	"github.com/telemflow/telemflow-go/pkg/telemetry"
)

// monitor is the interactive shell state: the live feeds and historical
// queries opened so far, indexed by the small numeric ids printed in
// command output.
type monitor struct {
	router   *stream.Router
	hist     *history.Client
	settings config.Settings
	rl       *readline.Instance

	// watchMu guards watch: delivery callbacks read it from timer
	// goroutines while the shell toggles it.
	watchMu sync.Mutex

	feeds      map[int]*stream.Feed
	watch      map[int]bool
	queries    map[int]*history.Query
	queryNames map[int]string
	nextFeed   int
	nextQuery  int
}

func newMonitor(router *stream.Router, hist *history.Client, settings config.Settings) (*monitor, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "telemflow> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &monitor{
		router:     router,
		hist:       hist,
		settings:   settings,
		rl:         rl,
		feeds:      make(map[int]*stream.Feed),
		watch:      make(map[int]bool),
		queries:    make(map[int]*history.Query),
		queryNames: make(map[int]string),
		nextFeed:   1,
		nextQuery:  1,
	}, nil
}

// run is the command loop. It returns when the user quits.
func (m *monitor) run() {
	defer m.rl.Close()
	m.printHelp()

	for {
		line, err := m.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err != nil {
			break
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "help":
			m.printHelp()
		case "topics":
			m.cmdTopics()
		case "sub":
			m.cmdSub(args[1:])
		case "unsub":
			m.withFeed(args[1:], func(id int, f *stream.Feed) {
				f.Unsubscribe()
				delete(m.feeds, id)
				m.watchMu.Lock()
				delete(m.watch, id)
				m.watchMu.Unlock()
				m.printf("feed %d unsubscribed\n", id)
			})
		case "pause":
			m.withFeed(args[1:], func(id int, f *stream.Feed) {
				f.PauseProcessing(true)
				m.printf("feed %d paused\n", id)
			})
		case "resume":
			m.withFeed(args[1:], func(id int, f *stream.Feed) {
				f.PauseProcessing(false)
				m.printf("feed %d resumed\n", id)
			})
		case "hide":
			m.withFeed(args[1:], func(id int, f *stream.Feed) {
				f.SetVisible(false)
				m.printf("feed %d hidden\n", id)
			})
		case "show":
			m.withFeed(args[1:], func(id int, f *stream.Feed) {
				f.SetVisible(true)
				m.printf("feed %d visible\n", id)
			})
		case "clear":
			m.withFeed(args[1:], func(id int, f *stream.Feed) {
				f.ClearCache()
				m.printf("feed %d cache cleared\n", id)
			})
		case "resub":
			m.withFeed(args[1:], func(id int, f *stream.Feed) {
				if f.ForceResubscribe() {
					m.printf("feed %d resubscribed\n", id)
				} else {
					m.printf("feed %d resubscribe failed\n", id)
				}
			})
		case "watch":
			m.withFeed(args[1:], func(id int, _ *stream.Feed) {
				m.watchMu.Lock()
				m.watch[id] = !m.watch[id]
				on := m.watch[id]
				m.watchMu.Unlock()
				m.printf("feed %d watch %s\n", id, onOff(on))
			})
		case "stats":
			m.cmdStats()
		case "history":
			m.cmdHistory(args[1:])
		case "refresh":
			m.withQuery(args[1:], func(id int, q *history.Query) {
				q.Refresh()
				m.printf("query %d refresh requested\n", id)
			})
		case "closequery":
			m.withQuery(args[1:], func(id int, q *history.Query) {
				q.Close()
				delete(m.queries, id)
				delete(m.queryNames, id)
				m.printf("query %d closed\n", id)
			})
		case "settings":
			m.cmdSettings()
		case "set":
			m.cmdSet(args[1:])
		case "quit", "exit":
			m.shutdown()
			return
		default:
			m.printf("unknown command %q (try 'help')\n", args[0])
		}
	}
	m.shutdown()
}

func (m *monitor) shutdown() {
	for _, q := range m.queries {
		q.Close()
	}
	for _, f := range m.feeds {
		f.Unsubscribe()
	}
}

func (m *monitor) printHelp() {
	m.printf(`Commands:
  topics                     list known topics
  sub <topic> [interval ms]  subscribe to a topic
  unsub <feed>               unsubscribe a feed
  pause | resume <feed>      toggle the processing gate
  hide | show <feed>         toggle the visibility gate
  clear <feed>               clear a feed's change/dedup cache
  resub <feed>               force a server-side resubscribe
  watch <feed>               toggle printing of deliveries
  stats                      show feed and query state
  history <endpoint> [rows]  open a historical query
  refresh <query>            refresh a historical query
  closequery <query>         close a historical query
  settings                   show current settings
  set interval <ms>          change the update interval
  set threshold <percent>    change the significance threshold
  quit
`)
}

func (m *monitor) cmdTopics() {
	for _, topic := range telemetry.KnownTopics {
		m.printf("  %s\n", topic)
	}
}

func (m *monitor) cmdSub(args []string) {
	if len(args) < 1 {
		m.printf("usage: sub <topic> [interval ms]\n")
		return
	}
	topic := args[0]

	opts := stream.DefaultSubscribeOptions()
	if len(args) > 1 {
		ms, err := strconv.Atoi(args[1])
		if err != nil || ms <= 0 {
			m.printf("invalid interval %q\n", args[1])
			return
		}
		opts.UpdateInterval = time.Duration(ms) * time.Millisecond
	}

	id := m.nextFeed
	feed, err := m.router.Subscribe(topic, func(d stream.Delivery) {
		if m.watching(id) {
			m.printf("[%s] %s %s\n", topic, d.Time.Format("15:04:05.000"), formatFields(d.Fields))
		}
	}, &opts)
	if err != nil {
		m.printf("subscribe failed: %v\n", err)
		return
	}

	m.feeds[id] = feed
	m.nextFeed++
	m.printf("feed %d subscribed to %s (use 'watch %d' to print deliveries)\n", id, topic, id)
}

func (m *monitor) cmdStats() {
	if len(m.feeds) == 0 && len(m.queries) == 0 {
		m.printf("nothing subscribed\n")
		return
	}
	for _, id := range sortedKeys(m.feeds) {
		f := m.feeds[id]
		last := "never"
		if t := f.LastMessageTime(); !t.IsZero() {
			last = time.Since(t).Truncate(time.Millisecond).String() + " ago"
		}
		m.printf("feed %d: %-14s %-12s msgs=%d last=%s\n",
			id, f.Topic(), f.Status(), f.MessagesReceived(), last)
	}
	for _, id := range sortedKeys(m.queries) {
		q := m.queries[id]
		state := fmt.Sprintf("rows=%d", len(q.Data()))
		if q.Loading() {
			state = "loading"
		} else if err := q.Err(); err != nil {
			state = "error: " + err.Error()
		}
		m.printf("query %d: %-20s %s\n", id, m.queryNames[id], state)
	}
}

func (m *monitor) cmdHistory(args []string) {
	if len(args) < 1 {
		m.printf("usage: history <endpoint> [rows]\n")
		return
	}
	endpoint := args[0]
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	pageSize := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			m.printf("invalid row count %q\n", args[1])
			return
		}
		pageSize = n
	}

	id := m.nextQuery
	q := m.hist.NewQuery(endpoint, pageSize)
	q.OnUpdate(func() {
		if err := q.Err(); err != nil {
			m.printf("query %d (%s): %v\n", id, endpoint, err)
			return
		}
		rows := q.Data()
		m.printf("query %d (%s): %d rows%s\n", id, endpoint, len(rows), rowSpan(rows))
	})

	m.queries[id] = q
	m.queryNames[id] = endpoint
	m.nextQuery++
	m.printf("query %d opened for %s\n", id, endpoint)
}

func (m *monitor) cmdSettings() {
	m.printf("update interval:   %s\n", m.settings.Normalized().UpdateInterval)
	m.printf("change threshold:  %.2f%%\n", m.settings.SignificantChangeThreshold)
	m.printf("refresh rate:      %s (cooldown %s)\n", m.settings.RefreshRate, m.settings.RefreshCooldown())
	m.printf("page size:         %d\n", m.settings.Normalized().PageSize)
	m.printf("downsample:        threshold=%d factor=%d\n",
		m.settings.DownsampleThreshold, m.settings.DownsampleFactor)
}

func (m *monitor) cmdSet(args []string) {
	if len(args) != 2 {
		m.printf("usage: set interval <ms> | set threshold <percent>\n")
		return
	}
	switch args[0] {
	case "interval":
		ms, err := strconv.Atoi(args[1])
		if err != nil || ms <= 0 {
			m.printf("invalid interval %q\n", args[1])
			return
		}
		m.settings.UpdateInterval = time.Duration(ms) * time.Millisecond
	case "threshold":
		pct, err := strconv.ParseFloat(args[1], 64)
		if err != nil || pct < 0 {
			m.printf("invalid threshold %q\n", args[1])
			return
		}
		m.settings.SignificantChangeThreshold = pct
	default:
		m.printf("unknown setting %q\n", args[0])
		return
	}
	m.router.UpdateSettings(m.settings)
	m.printf("settings updated (applies to new subscriptions)\n")
}

// withFeed parses a feed id argument and invokes fn with the feed.
func (m *monitor) withFeed(args []string, fn func(id int, f *stream.Feed)) {
	id, ok := m.parseID(args)
	if !ok {
		return
	}
	f, ok := m.feeds[id]
	if !ok {
		m.printf("no feed %d\n", id)
		return
	}
	fn(id, f)
}

// withQuery parses a query id argument and invokes fn with the query.
func (m *monitor) withQuery(args []string, fn func(id int, q *history.Query)) {
	id, ok := m.parseID(args)
	if !ok {
		return
	}
	q, ok := m.queries[id]
	if !ok {
		m.printf("no query %d\n", id)
		return
	}
	fn(id, q)
}

func (m *monitor) parseID(args []string) (int, bool) {
	if len(args) != 1 {
		m.printf("expected one numeric id\n")
		return 0, false
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		m.printf("invalid id %q\n", args[0])
		return 0, false
	}
	return id, true
}

func (m *monitor) watching(id int) bool {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	return m.watch[id]
}

func (m *monitor) printf(format string, args ...any) {
	fmt.Fprintf(m.rl.Stdout(), format, args...)
}

// formatFields renders a delivered field map compactly with stable
// ordering.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch v := fields[k].(type) {
		case float64:
			fmt.Fprintf(&b, "%s=%.3f", k, v)
		case telemetry.Tagged:
			fmt.Fprintf(&b, "%s=%.3f", k, v.Value)
		default:
			fmt.Fprintf(&b, "%s=%v", k, v)
		}
	}
	return b.String()
}

// rowSpan describes the time range covered by historical rows.
func rowSpan(rows []history.Row) string {
	if len(rows) == 0 {
		return ""
	}
	first, ok1 := rowTime(rows[0])
	last, ok2 := rowTime(rows[len(rows)-1])
	if !ok1 || !ok2 {
		return ""
	}
	return fmt.Sprintf(" (%s .. %s)", first.Format("15:04:05"), last.Format("15:04:05"))
}

func rowTime(row history.Row) (time.Time, bool) {
	ms, ok := row["time"].(int64)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
