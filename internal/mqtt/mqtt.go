// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/incubator/internal/logic"
)

// DefaultTopicRoot is the topic prefix used by the original incubator firmware.
const DefaultTopicRoot = "smartincubator"

// Lifecycle values carried by StatusPayload.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	// ErrTransportUnavailable is returned when the broker connection is down
	// or the publish breaker is open.
	ErrTransportUnavailable = errors.New("mqtt transport unavailable")

	// ErrMalformedCommand is returned by DecodeCommand for payloads it cannot use.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrUnknownCommand is returned by DecodeCommand for a well-formed object
	// that carries no key the controller understands.
	ErrUnknownCommand = errors.New("no recognised command")
)

// Topics are the four topics the controller uses.
type Topics struct {
	Temperature string
	Humidity    string
	Status      string
	Control     string
}

// NewTopics derives the topic set from a root prefix.
func NewTopics(root string) Topics {
	return Topics{
		Temperature: root + "/temperature",
		Humidity:    root + "/humidity",
		Status:      root + "/status",
		Control:     root + "/control",
	}
}

// Publisher publishes incubator messages.
type Publisher interface {
	// PublishTelemetry sends one temperature and one humidity record.
	PublishTelemetry(temp TemperaturePayload, hum HumidityPayload) error

	// PublishAlert sends an alert to the status topic.
	PublishAlert(alert AlertPayload) error

	// PublishStatus sends a lifecycle message to the status topic.
	PublishStatus(status StatusPayload) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// TemperaturePayload is published on <root>/temperature.
type TemperaturePayload struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Heater bool    `json:"heater"`
	Time   int64   `json:"time"`
}

// HumidityPayload is published on <root>/humidity.
type HumidityPayload struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Time  int64   `json:"time"`
}

// AlertPayload is published on <root>/status when the policy escalates.
type AlertPayload struct {
	Alert       bool    `json:"alert"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// StatusPayload announces the controller coming online or going offline.
type StatusPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FromTelemetry converts encoded telemetry into wire payloads.
func FromTelemetry(t logic.TemperatureTelemetry, h logic.HumidityTelemetry) (TemperaturePayload, HumidityPayload) {
	return TemperaturePayload{
			Value:  t.Value,
			Unit:   t.Unit,
			Heater: t.Heater,
			Time:   t.Time,
		}, HumidityPayload{
			Value: h.Value,
			Unit:  h.Unit,
			Time:  h.Time,
		}
}

// NewAlertPayload builds the alert message for an event.
func NewAlertPayload(ev logic.AlertEvent) AlertPayload {
	return AlertPayload{
		Alert:       true,
		Temperature: ev.TemperatureC,
		Humidity:    ev.HumidityPct,
	}
}

// NewStatusPayload builds a lifecycle message stamped with t.
func NewStatusPayload(status, reason string, t time.Time) StatusPayload {
	return StatusPayload{
		Status:    status,
		Timestamp: t.UTC().Format(time.RFC3339),
		Reason:    reason,
	}
}

// commandKey is the only control key the controller understands.
const commandKey = "simulate_high_temp"

// DecodeCommand parses a control-topic payload such as {"simulate_high_temp": true}.
// Unknown keys are ignored. An object without simulate_high_temp yields
// ErrUnknownCommand; anything that is not a JSON object, or a non-boolean
// simulate_high_temp, yields ErrMalformedCommand.
func DecodeCommand(data []byte) (logic.Command, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return logic.Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if raw == nil {
		return logic.Command{}, fmt.Errorf("%w: not an object", ErrMalformedCommand)
	}
	v, ok := raw[commandKey]
	if !ok {
		return logic.Command{}, ErrUnknownCommand
	}
	var flag *bool
	if err := json.Unmarshal(v, &flag); err != nil || flag == nil {
		return logic.Command{}, fmt.Errorf("%w: %s must be a boolean", ErrMalformedCommand, commandKey)
	}
	return logic.Command{SimulateHighTemperature: *flag}, nil
}
