// Package telemetry publishes the robot status over MQTT.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/feed"
	"github.com/konkon3660/graduationP/internal/logger"
	"github.com/konkon3660/graduationP/internal/mqttbus"
)

// Snapshot is one published status message.
type Snapshot struct {
	Time     time.Time       `json:"ts"`
	Autoplay autoplay.Status `json:"autoplay"`
	Feed     *feed.Status    `json:"feed,omitempty"`
}

// Reporter publishes a snapshot every Interval and whenever Notify is called.
type Reporter struct {
	pub      mqttbus.Publisher
	topic    string
	interval time.Duration
	clock    clockwork.Clock
	source   func() Snapshot
	notify   chan struct{}
}

// NewReporter returns a stopped reporter. source is called on the reporter
// goroutine for each publish.
func NewReporter(pub mqttbus.Publisher, topic string, interval time.Duration, clock clockwork.Clock, source func() Snapshot) (*Reporter, error) {
	if pub == nil || source == nil {
		return nil, errors.New("telemetry: publisher and source are required")
	}
	if interval <= 0 {
		return nil, errors.New("telemetry: interval must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reporter{
		pub:      pub,
		topic:    topic,
		interval: interval,
		clock:    clock,
		source:   source,
		notify:   make(chan struct{}, 1),
	}, nil
}

// Notify requests an immediate publish. It never blocks; requests arriving
// while one is pending are merged.
func (r *Reporter) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Run publishes until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.publish()
		case <-r.notify:
			r.publish()
		}
	}
}

func (r *Reporter) publish() {
	snap := r.source()
	if snap.Time.IsZero() {
		snap.Time = r.clock.Now()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		logger.Warnf("[telemetry] encode status: %v", err)
		return
	}
	if err := r.pub.Publish(r.topic, payload); err != nil {
		logger.Debugf("[telemetry] publish %s: %v", r.topic, err)
	}
}
