// Package metrics exposes Prometheus collectors for the control loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/incubator/internal/logic"
)

const namespace = "incubator"

// Label values.
const (
	ResultValid     = "valid"
	ResultFault     = "fault"
	ResultOK        = "ok"
	ResultSkipped   = "skipped"
	ResultError     = "error"
	ResultAccepted  = "accepted"
	ResultIgnored   = "ignored"
	ResultMalformed = "malformed"
)

// Metrics holds the daemon's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	temperature prometheus.Gauge
	humidity    prometheus.Gauge
	heater      prometheus.Gauge
	abnormal    prometheus.Gauge
	samples     *prometheus.CounterVec
	alerts      prometheus.Counter
	publishes   *prometheus.CounterVec
	commands    *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Latest valid chamber temperature.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Latest valid chamber relative humidity.",
		}),
		heater: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heater_on",
			Help:      "Heater relay state (1=on).",
		}),
		abnormal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "abnormal",
			Help:      "Abnormal condition in the latest evaluation (1=abnormal).",
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Sensor samples by result (valid, fault).",
		}, []string{"result"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts escalated.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Telemetry publish cycles by result (ok, skipped, error).",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Remote commands by result (accepted, ignored, malformed).",
		}, []string{"result"}),
	}

	m.Registry.MustRegister(
		m.temperature, m.humidity, m.heater, m.abnormal,
		m.samples, m.alerts, m.publishes, m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveSample records a sample and, when valid, the resulting state.
func (m *Metrics) ObserveSample(r logic.Reading, s logic.ActuatorState) {
	if m == nil {
		return
	}
	if !r.Valid {
		m.samples.WithLabelValues(ResultFault).Inc()
		return
	}
	m.samples.WithLabelValues(ResultValid).Inc()
	m.temperature.Set(r.TemperatureC)
	m.humidity.Set(r.HumidityPct)
	m.heater.Set(boolToFloat(s.HeaterOn))
	m.abnormal.Set(boolToFloat(s.Abnormal))
}

// Alert counts an escalated alert.
func (m *Metrics) Alert() {
	if m == nil {
		return
	}
	m.alerts.Inc()
}

// Publish counts a publish cycle outcome.
func (m *Metrics) Publish(result string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(result).Inc()
}

// Command counts a received remote command.
func (m *Metrics) Command(result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(result).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
