// Command telemflow-monitor is an interactive terminal monitor for a
// telemetry server.
//
// It connects to the live websocket stream, lets you subscribe to
// topics with per-subscription throttling, exercise the visibility and
// pause gates, and run historical queries against the HTTP API.
//
// Usage:
//
//	go run ./cmd/telemflow-monitor [flags]
//
// Flags:
//
//	-url      websocket URL (empty: discover a server via mDNS)
//	-api      historical API base URL (empty: derive from -url)
//	-config   YAML settings file
//	-log      write delivery events to a CBOR log file
//	-verbose  mirror delivery events to stderr
//
// With no -url the monitor browses for "_telemflow._tcp" services and
// uses the first one found.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	tlog "github.com/telemflow/telemflow-go/pkg/log"

	"github.com/telemflow/telemflow-go/pkg/config"
	"github.com/telemflow/telemflow-go/pkg/discovery"
	"github.com/telemflow/telemflow-go/pkg/history"
	"github.com/telemflow/telemflow-go/pkg/stream"
	"github.com/telemflow/telemflow-go/pkg/transport"
)

func main() {
	wsURL := flag.String("url", "", "websocket URL (empty: discover via mDNS)")
	apiURL := flag.String("api", "", "historical API base URL (empty: derive from -url)")
	configPath := flag.String("config", "", "YAML settings file")
	logPath := flag.String("log", "", "write delivery events to a CBOR log file")
	verbose := flag.Bool("verbose", false, "mirror delivery events to stderr")
	flag.Parse()

	log.SetFlags(log.Ltime)

	settings := config.DefaultSettings()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load settings: %v", err)
		}
		settings = loaded
	}

	logger, closeLogger, err := buildLogger(*logPath, *verbose)
	if err != nil {
		log.Fatalf("open event log: %v", err)
	}
	defer closeLogger()

	if *wsURL == "" {
		found, foundAPI, err := discoverServer()
		if err != nil {
			log.Fatalf("no server URL given and discovery failed: %v", err)
		}
		*wsURL = found
		if *apiURL == "" {
			*apiURL = foundAPI
		}
		log.Printf("discovered server: %s", *wsURL)
	}
	if *apiURL == "" {
		derived, err := deriveAPIURL(*wsURL)
		if err != nil {
			log.Fatalf("cannot derive API URL from %q: %v", *wsURL, err)
		}
		*apiURL = derived
	}

	client := transport.NewWSClient(*wsURL, logger)
	defer client.Close()

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Connect(connectCtx); err != nil {
		// The reconnect loop keeps trying in the background.
		log.Printf("initial connect failed (will retry): %v", err)
	}
	cancel()

	router := stream.NewRouter(client, settings, logger)
	defer router.Close()

	histClient := history.NewClient(history.NewHTTPFetcher(*apiURL), settings, logger)

	monitor, err := newMonitor(router, histClient, settings)
	if err != nil {
		log.Fatalf("start monitor: %v", err)
	}
	monitor.run()
}

// buildLogger assembles the event logger from the flags: CBOR file
// and/or slog mirror, noop when neither is requested.
func buildLogger(path string, verbose bool) (tlog.Logger, func(), error) {
	var loggers []tlog.Logger
	closer := func() {}

	if path != "" {
		fl, err := tlog.NewFileLogger(path)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closer = func() { _ = fl.Close() }
	}
	if verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, tlog.NewSlogAdapter(slog.New(handler)))
	}

	switch len(loggers) {
	case 0:
		return tlog.NoopLogger{}, closer, nil
	case 1:
		return loggers[0], closer, nil
	default:
		return tlog.NewMultiLogger(loggers...), closer, nil
	}
}

// discoverServer browses mDNS for the first telemetry server.
func discoverServer() (wsURL, apiURL string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, err := discovery.NewBrowser("").FindFirst(ctx)
	if err != nil {
		return "", "", err
	}
	if svc.WSURL() == "" {
		return "", "", fmt.Errorf("server %q advertised no address", svc.InstanceName)
	}
	return svc.WSURL(), svc.APIURL(), nil
}

// deriveAPIURL maps a websocket URL onto the conventional HTTP API
// base on the same host.
func deriveAPIURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/api/v1"
	return u.String(), nil
}
