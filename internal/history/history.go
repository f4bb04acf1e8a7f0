// Package history records telemetry and alerts to InfluxDB.
package history

import (
	"errors"
	"time"

	"github.com/go-logr/logr"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/incubator/internal/logic"
)

// Measurement names.
const (
	MeasurementReading = "incubator_reading"
	MeasurementAlert   = "incubator_alert"
)

// Recorder stores published telemetry and alerts.
type Recorder interface {
	RecordTelemetry(r logic.Reading, s logic.ActuatorState, at time.Time)
	RecordAlert(ev logic.AlertEvent, at time.Time)
	Close() error
}

// Config selects the InfluxDB bucket to write to.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Device tags every point.
	Device string
}

// pointWriter is the subset of api.WriteAPI used here.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxRecorder writes points through the non-blocking InfluxDB write API.
// Points are batched by the client; write errors are logged asynchronously.
type InfluxRecorder struct {
	client influxdb2.Client
	writer pointWriter
	device string
	log    logr.Logger
	done   chan struct{}
}

// NewInfluxRecorder creates a recorder for cfg.
func NewInfluxRecorder(cfg Config, log logr.Logger) (*InfluxRecorder, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx url, org and bucket are required")
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(20).SetFlushInterval(10_000))
	w := client.WriteAPI(cfg.Org, cfg.Bucket)

	rec := &InfluxRecorder{
		client: client,
		writer: w,
		device: cfg.Device,
		log:    log.WithName("history"),
		done:   make(chan struct{}),
	}
	errs := w.Errors()
	go func() {
		defer close(rec.done)
		for err := range errs {
			rec.log.Error(err, "influx write")
		}
	}()
	return rec, nil
}

// RecordTelemetry writes one reading point.
func (h *InfluxRecorder) RecordTelemetry(r logic.Reading, s logic.ActuatorState, at time.Time) {
	h.writer.WritePoint(readingPoint(h.device, r, s, at))
}

// RecordAlert writes one alert point.
func (h *InfluxRecorder) RecordAlert(ev logic.AlertEvent, at time.Time) {
	h.writer.WritePoint(alertPoint(h.device, ev, at))
}

// Close flushes pending points and closes the client.
func (h *InfluxRecorder) Close() error {
	h.writer.Flush()
	if h.client != nil {
		h.client.Close()
		<-h.done
	}
	return nil
}

func readingPoint(device string, r logic.Reading, s logic.ActuatorState, at time.Time) *write.Point {
	return influxdb2.NewPoint(MeasurementReading,
		map[string]string{"device": device},
		map[string]interface{}{
			"temperature":        r.TemperatureC,
			"humidity":           r.HumidityPct,
			"heater":             s.HeaterOn,
			"humidity_indicator": s.HumidityIndicatorOn,
			"abnormal":           s.Abnormal,
		},
		at)
}

func alertPoint(device string, ev logic.AlertEvent, at time.Time) *write.Point {
	return influxdb2.NewPoint(MeasurementAlert,
		map[string]string{"device": device},
		map[string]interface{}{
			"temperature": ev.TemperatureC,
			"humidity":    ev.HumidityPct,
		},
		at)
}
