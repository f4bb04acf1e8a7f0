// Package status provides a thread-safe status tracker for the incubator daemon.
// It is read by the HTTP handlers and written by the control loop.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/incubator/internal/logic"
)

// DefaultAlertHistory is how many recent alerts are kept when none is configured.
const DefaultAlertHistory = 20

// Config contains daemon configuration for display.
type Config struct {
	SampleMs   int64
	PublishMs  int64
	Broker     string
	TopicRoot  string
	HTTPAddr   string
	Thresholds logic.Thresholds
}

// Counts are cumulative loop counters since start.
type Counts struct {
	Samples           int
	Faults            int
	Alerts            int
	Publishes         int
	PublishesSkipped  int
	PublishErrors     int
	Commands          int
	CommandsMalformed int
}

// AlertRecord is one escalated alert.
type AlertRecord struct {
	Time         time.Time
	TemperatureC float64
	HumidityPct  float64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	// Reading is the latest valid reading; Reading.Valid is false until one arrives.
	Reading         logic.Reading
	LastSampleValid bool
	State           logic.ActuatorState
	Phase           string
	Simulating      bool
	Counts          Counts
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Config          Config
	// Alerts holds the most recent alerts, oldest first.
	Alerts []AlertRecord
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	alerts *alertRing
}

// NewTracker creates a Tracker keeping up to history recent alerts.
func NewTracker(startTime time.Time, cfg Config, history int) *Tracker {
	if history < 1 {
		history = DefaultAlertHistory
	}
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		alerts: newAlertRing(history),
	}
}

// Show displays a valid reading and the state it produced.
func (t *Tracker) Show(r logic.Reading, s logic.ActuatorState) {
	t.mu.Lock()
	t.snap.Reading = r
	t.snap.LastSampleValid = true
	t.snap.State = s
	t.mu.Unlock()
}

// RecordSample counts a valid sample.
func (t *Tracker) RecordSample() {
	t.mu.Lock()
	t.snap.LastSampleValid = true
	t.snap.Counts.Samples++
	t.mu.Unlock()
}

// RecordFault records an invalid sample. The last valid reading is kept.
func (t *Tracker) RecordFault() {
	t.mu.Lock()
	t.snap.LastSampleValid = false
	t.snap.Counts.Samples++
	t.snap.Counts.Faults++
	t.mu.Unlock()
}

// RecordAlert appends to the alert history.
func (t *Tracker) RecordAlert(ev logic.AlertEvent, at time.Time) {
	t.mu.Lock()
	t.alerts.push(AlertRecord{Time: at, TemperatureC: ev.TemperatureC, HumidityPct: ev.HumidityPct})
	t.snap.Counts.Alerts++
	t.mu.Unlock()
}

// RecordPublish counts a publish cycle. skipped wins over err.
func (t *Tracker) RecordPublish(skipped bool, err error) {
	t.mu.Lock()
	switch {
	case skipped:
		t.snap.Counts.PublishesSkipped++
	case err != nil:
		t.snap.Counts.PublishErrors++
	default:
		t.snap.Counts.Publishes++
	}
	t.mu.Unlock()
}

// RecordCommand counts a received command.
func (t *Tracker) RecordCommand(malformed bool) {
	t.mu.Lock()
	t.snap.Counts.Commands++
	if malformed {
		t.snap.Counts.CommandsMalformed++
	}
	t.mu.Unlock()
}

// SetPhase sets the current cycle phase name.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	t.snap.Phase = phase
	t.mu.Unlock()
}

// SetSimulating sets whether the high-temperature override is active.
func (t *Tracker) SetSimulating(on bool) {
	t.mu.Lock()
	t.snap.Simulating = on
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Alerts = t.alerts.list()
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
