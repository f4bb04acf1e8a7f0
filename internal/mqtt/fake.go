package mqtt

import "encoding/json"

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// Temperatures and Humidities contain the telemetry that was published.
	Temperatures []TemperaturePayload
	Humidities   []HumidityPayload

	// Alerts contains all alerts that were published.
	Alerts []AlertPayload

	// Statuses contains all lifecycle messages that were published.
	Statuses []StatusPayload

	// Payloads contains the JSON of every message, in publish order.
	Payloads [][]byte

	// PublishError, if set, is returned by every publish method.
	PublishError error

	// Connected controls IsConnected. While false, publishes fail with
	// ErrTransportUnavailable, as RealClient does.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a connected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// PublishTelemetry records both records.
func (f *FakePublisher) PublishTelemetry(temp TemperaturePayload, hum HumidityPayload) error {
	if err := f.check(); err != nil {
		return err
	}
	f.Temperatures = append(f.Temperatures, temp)
	f.Humidities = append(f.Humidities, hum)
	f.record(temp)
	f.record(hum)
	return nil
}

// PublishAlert records the alert.
func (f *FakePublisher) PublishAlert(alert AlertPayload) error {
	if err := f.check(); err != nil {
		return err
	}
	f.Alerts = append(f.Alerts, alert)
	f.record(alert)
	return nil
}

// PublishStatus records the lifecycle message.
func (f *FakePublisher) PublishStatus(status StatusPayload) error {
	if err := f.check(); err != nil {
		return err
	}
	f.Statuses = append(f.Statuses, status)
	f.record(status)
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded messages and restores a connected, error-free fake.
func (f *FakePublisher) Reset() {
	f.Temperatures = nil
	f.Humidities = nil
	f.Alerts = nil
	f.Statuses = nil
	f.Payloads = nil
	f.PublishError = nil
	f.Connected = true
	f.Closed = false
}

func (f *FakePublisher) check() error {
	if f.PublishError != nil {
		return f.PublishError
	}
	if !f.Connected {
		return ErrTransportUnavailable
	}
	return nil
}

func (f *FakePublisher) record(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	f.Payloads = append(f.Payloads, data)
}
