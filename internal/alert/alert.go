// Package alert turns an alert classification into a buzzer pulse and an
// alert message.
package alert

import (
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/sweeney/incubator/internal/logic"
	"github.com/sweeney/incubator/internal/metrics"
	"github.com/sweeney/incubator/internal/mqtt"
)

// DefaultPulse is how long the buzzer sounds per alert.
const DefaultPulse = 500 * time.Millisecond

// Buzzer is the audible output. gpio.Outputs satisfies it.
type Buzzer interface {
	SetBuzzer(on bool) error
}

// Notifier delivers the alert message. mqtt.Publisher satisfies it.
type Notifier interface {
	PublishAlert(alert mqtt.AlertPayload) error
}

// Escalator sounds the buzzer and publishes the alert.
type Escalator struct {
	buzzer   Buzzer
	notifier Notifier
	pulse    time.Duration
	sleep    func(time.Duration)
	metrics  *metrics.Metrics
	log      logr.Logger
}

// Option configures an Escalator.
type Option func(*Escalator)

// WithPulse overrides DefaultPulse.
func WithPulse(d time.Duration) Option {
	return func(e *Escalator) { e.pulse = d }
}

// WithSleep replaces time.Sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Escalator) { e.sleep = sleep }
}

// WithMetrics counts escalations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Escalator) { e.metrics = m }
}

// NewEscalator creates an Escalator.
func NewEscalator(b Buzzer, n Notifier, log logr.Logger, opts ...Option) *Escalator {
	e := &Escalator{
		buzzer:   b,
		notifier: n,
		pulse:    DefaultPulse,
		sleep:    time.Sleep,
		log:      log.WithName("alert"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Escalate blocks for one buzzer pulse, then publishes the alert.
// Failures are logged; the buzzer is always switched back off.
func (e *Escalator) Escalate(ev logic.AlertEvent) {
	e.metrics.Alert()
	e.log.Info("alert", "temperature", ev.TemperatureC, "humidity", ev.HumidityPct)

	if err := e.buzzer.SetBuzzer(true); err != nil {
		e.log.Error(err, "buzzer on")
	}
	e.sleep(e.pulse)
	if err := e.buzzer.SetBuzzer(false); err != nil {
		e.log.Error(err, "buzzer off")
	}

	err := e.notifier.PublishAlert(mqtt.NewAlertPayload(ev))
	switch {
	case errors.Is(err, mqtt.ErrTransportUnavailable):
		e.log.Info("alert not published", "reason", err.Error())
	case err != nil:
		e.log.Error(err, "publish alert")
	}
}
