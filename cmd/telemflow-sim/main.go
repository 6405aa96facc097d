// Command telemflow-sim is a telemetry server simulator for bench
// testing without a vehicle.
//
// It serves a websocket firehose of synthetic sensor frames across the
// known topics, a minimal historical HTTP API, and advertises itself
// via mDNS so monitors can find it.
//
// Usage:
//
//	go run ./cmd/telemflow-sim [flags]
//
// Flags:
//
//	-addr     listen address (default ":8080")
//	-rate     frames per second across all topics (default 100)
//	-name     mDNS instance name (default "telemflow-sim")
//	-no-mdns  disable mDNS advertising
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/telemflow/telemflow-go/pkg/discovery"
)

const (
	streamPath = "/stream"
	apiPath    = "/api/v1"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	frameRate := flag.Float64("rate", 100, "frames per second across all topics")
	name := flag.String("name", "telemflow-sim", "mDNS instance name")
	noMDNS := flag.Bool("no-mdns", false, "disable mDNS advertising")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Printf("telemflow-sim listening on %s", *addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub()
	go hub.run(ctx)

	gen := newGenerator(hub, rate.NewLimiter(rate.Limit(*frameRate), 1))
	go gen.run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc(streamPath, hub.handleStream)
	mux.HandleFunc(apiPath+"/", handleHistory)

	server := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	if !*noMDNS {
		port := discovery.DefaultPort
		if p, err := listenPort(*addr); err == nil {
			port = p
		}
		adv := discovery.NewAdvertiser("")
		err := adv.Advertise(&discovery.ServerInfo{
			Name:    *name,
			Port:    port,
			WSPath:  streamPath,
			APIPath: apiPath,
			Version: "1.0.0",
		})
		if err != nil {
			log.Printf("mDNS advertise failed: %v", err)
		} else {
			log.Printf("advertising %s via mDNS as %q", discovery.ServiceType, *name)
			defer adv.Stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

// listenPort extracts the numeric port from a listen address.
func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
