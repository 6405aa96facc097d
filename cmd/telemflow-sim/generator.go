package main

import (
	"context"
	"log"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/telemflow/telemflow-go/pkg/telemetry"
)

// generator produces synthetic sensor frames, cycling through the
// known topics and pacing emission with a rate limiter.
type generator struct {
	hub     *hub
	limiter *rate.Limiter
	rng     *rand.Rand
	start   time.Time
}

func newGenerator(h *hub, limiter *rate.Limiter) *generator {
	return &generator{
		hub:     h,
		limiter: limiter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		start:   time.Now(),
	}
}

// run emits frames until the context is cancelled.
func (g *generator) run(ctx context.Context) {
	topicIdx := 0
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return
		}

		topic := telemetry.KnownTopics[topicIdx%len(telemetry.KnownTopics)]
		topicIdx++

		msg := g.frame(topic)
		data, err := telemetry.EncodeMessageJSON(msg)
		if err != nil {
			log.Printf("encode frame: %v", err)
			continue
		}

		select {
		case g.hub.broadcast <- data:
		case <-ctx.Done():
			return
		}
	}
}

// frame builds one synthetic sample for a topic. Values follow slow
// sinusoids with noise so significant-change filtering has something
// realistic to chew on.
func (g *generator) frame(topic string) *telemetry.Message {
	elapsed := time.Since(g.start).Seconds()

	fields := make(map[string]any)
	switch topic {
	case telemetry.TopicCell:
		for i := 1; i <= 4; i++ {
			fields["v"+strconv.Itoa(i)] = g.wave(3.7, 0.15, elapsed, float64(i))
		}
	case telemetry.TopicThermistor:
		for i := 1; i <= 4; i++ {
			fields["t"+strconv.Itoa(i)] = g.wave(38, 6, elapsed/10, float64(i))
		}
	case telemetry.TopicPackCurrent:
		fields["current"] = g.wave(80, 60, elapsed/2, 0)
	case telemetry.TopicPackVoltage:
		fields["voltage"] = g.wave(400, 15, elapsed/5, 0)
	case telemetry.TopicINSIMU:
		fields["accel_x"] = g.wave(0, 1.8, elapsed, 1)
		fields["accel_y"] = g.wave(0, 1.2, elapsed, 2)
		fields["yaw_rate"] = g.wave(0, 25, elapsed, 3)
	case telemetry.TopicSuspension:
		for _, corner := range []string{"fl", "fr", "rl", "rr"} {
			fields[corner] = telemetry.Tagged{
				Tag:   corner,
				Value: g.wave(25, 12, elapsed*2, float64(len(corner))),
			}
		}
	default:
		fields["value"] = g.wave(50, 20, elapsed, 0)
	}

	return &telemetry.Message{
		ID:     uuid.NewString(),
		Topic:  topic,
		Time:   time.Now().UnixMilli(),
		Fields: fields,
	}
}

// wave returns a noisy sinusoid around a baseline.
func (g *generator) wave(base, amplitude, t, phase float64) float64 {
	noise := (g.rng.Float64() - 0.5) * amplitude * 0.05
	return base + amplitude*math.Sin(t+phase) + noise
}
