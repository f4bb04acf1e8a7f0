// Package controller runs the incubator's sample and publish schedule.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"

	"github.com/sweeney/incubator/internal/gpio"
	"github.com/sweeney/incubator/internal/history"
	"github.com/sweeney/incubator/internal/logic"
	"github.com/sweeney/incubator/internal/metrics"
	"github.com/sweeney/incubator/internal/mqtt"
	"github.com/sweeney/incubator/internal/sensor"
	"github.com/sweeney/incubator/internal/status"
)

// Cycle phases.
const (
	PhaseIdle        = "idle"
	PhaseSampling    = "sampling"
	PhaseControlling = "controlling"
	PhaseEscalating  = "escalating"
)

const (
	eventSample   = "sample"
	eventEvaluate = "evaluate"
	eventEscalate = "escalate"
	eventFinish   = "finish"
)

// Escalator handles an alert. *alert.Escalator satisfies it.
type Escalator interface {
	Escalate(ev logic.AlertEvent)
}

// Display shows each evaluated reading. *status.Tracker satisfies it.
type Display interface {
	Show(r logic.Reading, s logic.ActuatorState)
}

// Config wires a Controller. Display, Status, Recorder and Metrics are optional.
type Config struct {
	Source    sensor.Source
	Outputs   gpio.Outputs
	Publisher mqtt.Publisher
	Escalator Escalator
	Inbox     *Inbox

	Thresholds      logic.Thresholds
	SampleInterval  time.Duration
	PublishInterval time.Duration

	Display  Display
	Status   *status.Tracker
	Recorder history.Recorder
	Metrics  *metrics.Metrics
	Log      logr.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller owns the actuator state and drives one sample/publish schedule.
// It is not safe for concurrent use; only the Inbox is shared.
type Controller struct {
	cfg Config
	log logr.Logger
	fsm *fsm.FSM

	state     logic.ActuatorState
	latest    logic.Reading // latest valid reading
	lastFault bool
	simulate  bool

	start       time.Time
	lastSample  time.Time
	sampled     bool
	lastPublish time.Time
}

// New validates cfg and creates a Controller.
func New(cfg Config) (*Controller, error) {
	var errs []error
	if cfg.Source == nil {
		errs = append(errs, errors.New("source is required"))
	}
	if cfg.Outputs == nil {
		errs = append(errs, errors.New("outputs are required"))
	}
	if cfg.Publisher == nil {
		errs = append(errs, errors.New("publisher is required"))
	}
	if cfg.Escalator == nil {
		errs = append(errs, errors.New("escalator is required"))
	}
	if cfg.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("sample interval must be positive, got %v", cfg.SampleInterval))
	}
	if cfg.PublishInterval < cfg.SampleInterval {
		errs = append(errs, fmt.Errorf("publish interval %v is shorter than sample interval %v", cfg.PublishInterval, cfg.SampleInterval))
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}

	if cfg.Inbox == nil {
		cfg.Inbox = NewInbox()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Controller{
		cfg: cfg,
		log: cfg.Log.WithName("controller"),
	}
	c.fsm = fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventSample, Src: []string{PhaseIdle}, Dst: PhaseSampling},
			{Name: eventEvaluate, Src: []string{PhaseSampling}, Dst: PhaseControlling},
			{Name: eventEscalate, Src: []string{PhaseControlling}, Dst: PhaseEscalating},
			{Name: eventFinish, Src: []string{PhaseSampling, PhaseControlling, PhaseEscalating}, Dst: PhaseIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if c.cfg.Status != nil {
					c.cfg.Status.SetPhase(e.Dst)
				}
			},
		},
	)
	return c, nil
}

// Phase reports the current cycle phase.
func (c *Controller) Phase() string {
	return c.fsm.Current()
}

// State returns the current actuator state.
func (c *Controller) State() logic.ActuatorState {
	return c.state
}

// Simulating reports whether the high-temperature override is active.
func (c *Controller) Simulating() bool {
	return c.simulate
}

// Start resets the schedule at now and drives every output off.
// The first sample happens on the first Tick; the first publish one
// publish interval after now.
func (c *Controller) Start(now time.Time) error {
	c.start = now
	c.lastPublish = now
	c.sampled = false
	c.state = logic.ActuatorState{}

	if c.cfg.Status != nil {
		c.cfg.Status.SetPhase(c.Phase())
	}
	return errors.Join(
		c.cfg.Outputs.Apply(c.state),
		c.cfg.Outputs.SetBuzzer(false),
	)
}

// Tick runs whichever cycles are due at now: sampling first, then publishing.
func (c *Controller) Tick(now time.Time) {
	if c.cfg.Status != nil {
		c.cfg.Status.SetMQTTConnected(c.cfg.Publisher.IsConnected())
	}
	if !c.sampled || now.Sub(c.lastSample) >= c.cfg.SampleInterval {
		c.lastSample = now
		c.sampled = true
		c.sampleCycle(now)
	}
	if now.Sub(c.lastPublish) >= c.cfg.PublishInterval {
		c.lastPublish = now
		c.publishCycle(now)
	}
}

// Run starts the controller and calls Tick for every value on tick until
// ctx is cancelled. The clock is read once per tick.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time) error {
	if err := c.Start(c.cfg.Now()); err != nil {
		c.log.Error(err, "initial output state")
	}
	c.log.Info("running",
		"sampleInterval", c.cfg.SampleInterval.String(),
		"publishInterval", c.cfg.PublishInterval.String())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			c.Tick(c.cfg.Now())
		}
	}
}

func (c *Controller) sampleCycle(now time.Time) {
	c.transition(eventSample)
	defer c.transition(eventFinish)

	if cmd, ok := c.cfg.Inbox.Take(); ok {
		if cmd.SimulateHighTemperature != c.simulate {
			c.log.Info("simulate high temperature", "enabled", cmd.SimulateHighTemperature)
		}
		c.simulate = cmd.SimulateHighTemperature
		if c.cfg.Status != nil {
			c.cfg.Status.SetSimulating(c.simulate)
		}
	}

	r := c.cfg.Source.Sample(now)
	if c.simulate {
		r = r.WithTemperature(logic.SimulatedHighTemperature)
	}

	if !r.Valid {
		c.lastFault = true
		c.cfg.Metrics.ObserveSample(r, c.state)
		if c.cfg.Status != nil {
			c.cfg.Status.RecordFault()
		}
		c.log.Info("invalid reading, holding state")
		return
	}

	c.transition(eventEvaluate)
	next, alert := logic.Evaluate(r, c.state, c.cfg.Thresholds)
	c.state = next
	c.latest = r
	c.lastFault = false
	if c.cfg.Status != nil {
		c.cfg.Status.RecordSample()
	}

	c.log.V(1).Info("sample",
		"temperature", r.TemperatureC, "humidity", r.HumidityPct,
		"heater", next.HeaterOn, "humidityIndicator", next.HumidityIndicatorOn, "abnormal", next.Abnormal)

	if err := c.cfg.Outputs.Apply(next); err != nil {
		c.log.Error(err, "apply outputs")
	}
	c.cfg.Metrics.ObserveSample(r, next)

	if alert != nil {
		c.transition(eventEscalate)
		c.cfg.Escalator.Escalate(*alert)
		if c.cfg.Status != nil {
			c.cfg.Status.RecordAlert(*alert, now)
		}
		if c.cfg.Recorder != nil {
			c.cfg.Recorder.RecordAlert(*alert, now)
		}
	}

	if c.cfg.Display != nil {
		c.cfg.Display.Show(r, next)
	}
}

func (c *Controller) publishCycle(now time.Time) {
	if !c.latest.Valid || c.lastFault {
		c.publishSkipped("no current reading")
		return
	}

	if c.cfg.Recorder != nil {
		c.cfg.Recorder.RecordTelemetry(c.latest, c.state, now)
	}

	if !c.cfg.Publisher.IsConnected() {
		c.publishSkipped("disconnected")
		return
	}

	temp, hum := mqtt.FromTelemetry(logic.Telemetry(c.latest, c.state, now.Sub(c.start)))
	err := c.cfg.Publisher.PublishTelemetry(temp, hum)
	switch {
	case errors.Is(err, mqtt.ErrTransportUnavailable):
		c.publishSkipped(err.Error())
	case err != nil:
		c.log.Error(err, "publish telemetry")
		c.cfg.Metrics.Publish(metrics.ResultError)
		if c.cfg.Status != nil {
			c.cfg.Status.RecordPublish(false, err)
		}
	default:
		c.log.V(1).Info("published", "temperature", temp.Value, "humidity", hum.Value, "heater", temp.Heater)
		c.cfg.Metrics.Publish(metrics.ResultOK)
		if c.cfg.Status != nil {
			c.cfg.Status.RecordPublish(false, nil)
		}
	}
}

func (c *Controller) publishSkipped(reason string) {
	c.log.V(1).Info("publish skipped", "reason", reason)
	c.cfg.Metrics.Publish(metrics.ResultSkipped)
	if c.cfg.Status != nil {
		c.cfg.Status.RecordPublish(true, nil)
	}
}

func (c *Controller) transition(event string) {
	if err := c.fsm.Event(context.Background(), event); err != nil {
		c.log.V(1).Info("phase transition", "event", event, "from", c.fsm.Current(), "error", err.Error())
	}
}
