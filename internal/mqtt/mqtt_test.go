package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/incubator/internal/logic"
)

func TestNewTopics(t *testing.T) {
	got := NewTopics(DefaultTopicRoot)
	want := Topics{
		Temperature: "smartincubator/temperature",
		Humidity:    "smartincubator/humidity",
		Status:      "smartincubator/status",
		Control:     "smartincubator/control",
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if NewTopics("farm/egg1").Control != "farm/egg1/control" {
		t.Errorf("custom root not applied: %+v", NewTopics("farm/egg1"))
	}
}

func TestTemperaturePayloadJSON(t *testing.T) {
	temp, _ := FromTelemetry(
		logic.TemperatureTelemetry{Value: 37.5, Unit: "C", Heater: true, Time: 120},
		logic.HumidityTelemetry{Value: 60.2, Unit: "%", Time: 120},
	)
	data, err := json.Marshal(temp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"value":37.5,"unit":"C","heater":true,"time":120}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestHumidityPayloadJSON(t *testing.T) {
	_, hum := FromTelemetry(
		logic.TemperatureTelemetry{Value: 37.5, Unit: "C", Time: 8},
		logic.HumidityTelemetry{Value: 60.2, Unit: "%", Time: 8},
	)
	data, err := json.Marshal(hum)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"value":60.2,"unit":"%","time":8}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestAlertPayloadJSON(t *testing.T) {
	data, err := json.Marshal(NewAlertPayload(logic.AlertEvent{TemperatureC: 39.5, HumidityPct: 60}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"alert":true,"temperature":39.5,"humidity":60}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestStatusPayloadJSON(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600))

	data, err := json.Marshal(NewStatusPayload(StatusOnline, "", ts))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `{"status":"online","timestamp":"2026-03-04T04:06:07Z"}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	data, _ = json.Marshal(NewStatusPayload(StatusOffline, "SIGTERM", ts))
	if want := `{"status":"offline","timestamp":"2026-03-04T04:06:07Z","reason":"SIGTERM"}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"enable", `{"simulate_high_temp": true}`, true},
		{"disable", `{"simulate_high_temp": false}`, false},
		{"extra keys ignored", `{"simulate_high_temp": true, "foo": 1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecodeCommand([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.SimulateHighTemperature != tt.want {
				t.Errorf("got %v, want %v", cmd.SimulateHighTemperature, tt.want)
			}
		})
	}
}

func TestDecodeCommandMalformed(t *testing.T) {
	payloads := []string{
		``,
		`not json`,
		`[true]`,
		`null`,
		`"simulate_high_temp"`,
		`{"simulate_high_temp": "yes"}`,
		`{"simulate_high_temp": 1}`,
		`{"simulate_high_temp": null}`,
	}
	for _, p := range payloads {
		if _, err := DecodeCommand([]byte(p)); !errors.Is(err, ErrMalformedCommand) {
			t.Errorf("payload %q: got %v, want ErrMalformedCommand", p, err)
		}
	}
}

func TestDecodeCommandUnknown(t *testing.T) {
	for _, p := range []string{`{}`, `{"fan_speed": 2}`, `{"other": true}`} {
		_, err := DecodeCommand([]byte(p))
		if !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("payload %q: got %v, want ErrUnknownCommand", p, err)
		}
		if errors.Is(err, ErrMalformedCommand) {
			t.Errorf("payload %q: well-formed object reported as malformed", p)
		}
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()
	if !f.IsConnected() {
		t.Fatal("new fake should be connected")
	}

	if err := f.PublishTelemetry(TemperaturePayload{Value: 37}, HumidityPayload{Value: 60}); err != nil {
		t.Fatalf("PublishTelemetry: %v", err)
	}
	if err := f.PublishAlert(AlertPayload{Alert: true}); err != nil {
		t.Fatalf("PublishAlert: %v", err)
	}
	if err := f.PublishStatus(StatusPayload{Status: StatusOnline}); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	if len(f.Temperatures) != 1 || len(f.Humidities) != 1 || len(f.Alerts) != 1 || len(f.Statuses) != 1 {
		t.Errorf("unexpected record counts: %+v", f)
	}
	if len(f.Payloads) != 4 {
		t.Errorf("expected 4 payloads, got %d", len(f.Payloads))
	}
}

func TestFakePublisherDisconnected(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = false

	if err := f.PublishAlert(AlertPayload{Alert: true}); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("got %v, want ErrTransportUnavailable", err)
	}
	if len(f.Alerts) != 0 {
		t.Error("nothing should be recorded while disconnected")
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("boom")

	if err := f.PublishTelemetry(TemperaturePayload{}, HumidityPayload{}); err == nil {
		t.Error("expected error")
	}

	f.Reset()
	if f.PublishError != nil || !f.Connected || len(f.Payloads) != 0 {
		t.Errorf("Reset did not restore fake: %+v", f)
	}
}

var _ Publisher = (*FakePublisher)(nil)
var _ Publisher = (*RealClient)(nil)
