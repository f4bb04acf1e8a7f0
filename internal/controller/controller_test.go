package controller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/incubator/internal/alert"
	"github.com/sweeney/incubator/internal/gpio"
	"github.com/sweeney/incubator/internal/logic"
	"github.com/sweeney/incubator/internal/metrics"
	"github.com/sweeney/incubator/internal/mqtt"
	"github.com/sweeney/incubator/internal/sensor"
	"github.com/sweeney/incubator/internal/status"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// at returns t0 plus n ticks of 100ms.
func at(n int) time.Time {
	return t0.Add(time.Duration(n) * 100 * time.Millisecond)
}

type fakeRecorder struct {
	telemetry []logic.Reading
	alerts    []logic.AlertEvent
	closed    bool
}

func (f *fakeRecorder) RecordTelemetry(r logic.Reading, _ logic.ActuatorState, _ time.Time) {
	f.telemetry = append(f.telemetry, r)
}
func (f *fakeRecorder) RecordAlert(ev logic.AlertEvent, _ time.Time) { f.alerts = append(f.alerts, ev) }
func (f *fakeRecorder) Close() error                                 { f.closed = true; return nil }

type fixture struct {
	src      *sensor.FakeSource
	out      *gpio.FakeOutputs
	pub      *mqtt.FakePublisher
	inbox    *Inbox
	tracker  *status.Tracker
	recorder *fakeRecorder
	metrics  *metrics.Metrics
	ctrl     *Controller
}

func newFixture(t *testing.T, samples ...sensor.Sample) *fixture {
	t.Helper()
	f := &fixture{
		src:      sensor.NewFakeSource(samples...),
		out:      gpio.NewFakeOutputs(),
		pub:      mqtt.NewFakePublisher(),
		inbox:    NewInbox(),
		tracker:  status.NewTracker(t0, status.Config{}, 10),
		recorder: &fakeRecorder{},
		metrics:  metrics.New(),
	}
	esc := alert.NewEscalator(f.out, f.pub, logr.Discard(),
		alert.WithSleep(func(time.Duration) {}),
		alert.WithMetrics(f.metrics))

	ctrl, err := New(Config{
		Source:          f.src,
		Outputs:         f.out,
		Publisher:       f.pub,
		Escalator:       esc,
		Inbox:           f.inbox,
		Thresholds:      logic.DefaultThresholds(),
		SampleInterval:  2 * time.Second,
		PublishInterval: 10 * time.Second,
		Display:         f.tracker,
		Status:          f.tracker,
		Recorder:        f.recorder,
		Metrics:         f.metrics,
		Log:             logr.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.ctrl = ctrl
	if err := ctrl.Start(t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return f
}

// run ticks every 100ms from tick from through tick to inclusive.
func (f *fixture) run(from, to int) {
	for i := from; i <= to; i++ {
		f.ctrl.Tick(at(i))
	}
}

func TestNewValidates(t *testing.T) {
	valid := func() Config {
		return Config{
			Source:          sensor.NewFakeSource(),
			Outputs:         gpio.NewFakeOutputs(),
			Publisher:       mqtt.NewFakePublisher(),
			Escalator:       alert.NewEscalator(gpio.NewFakeOutputs(), mqtt.NewFakePublisher(), logr.Discard()),
			Thresholds:      logic.DefaultThresholds(),
			SampleInterval:  2 * time.Second,
			PublishInterval: 10 * time.Second,
			Log:             logr.Discard(),
		}
	}
	if _, err := New(valid()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no source", func(c *Config) { c.Source = nil }},
		{"no outputs", func(c *Config) { c.Outputs = nil }},
		{"no publisher", func(c *Config) { c.Publisher = nil }},
		{"no escalator", func(c *Config) { c.Escalator = nil }},
		{"zero sample interval", func(c *Config) { c.SampleInterval = 0 }},
		{"publish faster than sample", func(c *Config) { c.PublishInterval = time.Second }},
		{"bad thresholds", func(c *Config) { c.Thresholds.TempMin = 40 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStartDrivesOutputsOff(t *testing.T) {
	f := newFixture(t)

	if len(f.out.States) != 1 || f.out.States[0] != (logic.ActuatorState{}) {
		t.Errorf("expected a single all-off Apply, got %+v", f.out.States)
	}
	if len(f.out.BuzzerEdges) != 1 || f.out.BuzzerEdges[0] {
		t.Errorf("expected buzzer driven off, got %v", f.out.BuzzerEdges)
	}
	if f.ctrl.Phase() != PhaseIdle {
		t.Errorf("phase: got %q, want idle", f.ctrl.Phase())
	}
}

func TestFirstTickSamples(t *testing.T) {
	f := newFixture(t, sensor.Sample{TemperatureC: 25, HumidityPct: 60})
	f.ctrl.Tick(t0)

	if f.src.Calls != 1 {
		t.Fatalf("expected a sample on the first tick, got %d", f.src.Calls)
	}
	want := logic.ActuatorState{HeaterOn: true}
	if f.ctrl.State() != want {
		t.Errorf("state: got %+v, want %+v", f.ctrl.State(), want)
	}
	lv := f.out.Levels()
	if !lv.Heater || !lv.RedLED || lv.BlueLED {
		t.Errorf("levels: got %+v", lv)
	}
	if len(f.pub.Temperatures) != 0 {
		t.Error("nothing should be published before the first publish interval")
	}
}

func TestScheduleCadence(t *testing.T) {
	f := newFixture(t, sensor.Sample{TemperatureC: 37.6, HumidityPct: 60})
	f.run(0, 200) // 20s at 100ms ticks

	if f.src.Calls != 11 {
		t.Errorf("samples: got %d, want 11 (every 2s from t=0)", f.src.Calls)
	}
	if len(f.pub.Temperatures) != 2 || len(f.pub.Humidities) != 2 {
		t.Errorf("publishes: got %d/%d, want 2 (t=10s, t=20s)", len(f.pub.Temperatures), len(f.pub.Humidities))
	}
}

func TestSampleBeforePublishInSameTick(t *testing.T) {
	// Sixth sample lands on the same tick as the first publish.
	f := newFixture(t,
		sensor.Sample{TemperatureC: 25, HumidityPct: 60},
		sensor.Sample{TemperatureC: 25, HumidityPct: 60},
		sensor.Sample{TemperatureC: 25, HumidityPct: 60},
		sensor.Sample{TemperatureC: 25, HumidityPct: 60},
		sensor.Sample{TemperatureC: 25, HumidityPct: 60},
		sensor.Sample{TemperatureC: 36.9, HumidityPct: 58},
	)
	f.run(0, 100)

	if len(f.pub.Temperatures) != 1 {
		t.Fatalf("expected one publish, got %d", len(f.pub.Temperatures))
	}
	if got := f.pub.Temperatures[0].Value; got != 36.9 {
		t.Errorf("published temperature: got %v, want 36.9 from the same tick", got)
	}
}

func TestPublishedTelemetry(t *testing.T) {
	f := newFixture(t, sensor.Sample{TemperatureC: 25, HumidityPct: 61.5})
	f.run(0, 100)

	if len(f.pub.Temperatures) != 1 {
		t.Fatalf("expected one publish, got %d", len(f.pub.Temperatures))
	}
	wantTemp := mqtt.TemperaturePayload{Value: 25, Unit: "C", Heater: true, Time: 10}
	if f.pub.Temperatures[0] != wantTemp {
		t.Errorf("temperature: got %+v, want %+v", f.pub.Temperatures[0], wantTemp)
	}
	wantHum := mqtt.HumidityPayload{Value: 61.5, Unit: "%", Time: 10}
	if f.pub.Humidities[0] != wantHum {
		t.Errorf("humidity: got %+v, want %+v", f.pub.Humidities[0], wantHum)
	}
	if len(f.recorder.telemetry) != 1 {
		t.Errorf("expected telemetry recorded once, got %d", len(f.recorder.telemetry))
	}
}

func TestInvalidReadingHoldsState(t *testing.T) {
	f := newFixture(t,
		sensor.Sample{TemperatureC: 25, HumidityPct: 40},
		sensor.Sample{Fault: true},
	)
	f.ctrl.Tick(at(0))
	before := f.ctrl.State()
	applies := len(f.out.States)

	f.run(1, 100)

	if f.ctrl.State() != before {
		t.Errorf("state changed on invalid reading: before %+v, after %+v", before, f.ctrl.State())
	}
	if len(f.out.States) != applies {
		t.Errorf("outputs touched on invalid reading: %d extra applies", len(f.out.States)-applies)
	}
	if len(f.pub.Temperatures) != 0 {
		t.Errorf("no telemetry expected while the sensor is faulted, got %d", len(f.pub.Temperatures))
	}
	if len(f.recorder.telemetry) != 0 {
		t.Error("no history expected while the sensor is faulted")
	}
	snap := f.tracker.Snapshot()
	if snap.Counts.Faults != 5 || snap.Counts.PublishesSkipped != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
}

func TestNoPublishBeforeFirstValidReading(t *testing.T) {
	f := newFixture(t) // every reading invalid
	f.run(0, 100)

	if len(f.pub.Temperatures) != 0 {
		t.Errorf("expected no telemetry, got %d", len(f.pub.Temperatures))
	}
	if len(f.out.States) != 1 {
		t.Errorf("only the startup Apply expected, got %d", len(f.out.States))
	}
}

func TestPublishResumesAfterRecovery(t *testing.T) {
	f := newFixture(t,
		sensor.Sample{Fault: true},
		sensor.Sample{Fault: true},
		sensor.Sample{Fault: true},
		sensor.Sample{Fault: true},
		sensor.Sample{Fault: true},
		sensor.Sample{TemperatureC: 37.5, HumidityPct: 60},
	)
	f.run(0, 100)

	if len(f.pub.Temperatures) != 1 || f.pub.Temperatures[0].Value != 37.5 {
		t.Errorf("expected one publish of the recovered reading, got %+v", f.pub.Temperatures)
	}
}

func TestDisconnectedPublishIsNoop(t *testing.T) {
	f := newFixture(t, sensor.Sample{TemperatureC: 25, HumidityPct: 60})
	f.pub.Connected = false
	f.run(0, 100)

	if len(f.pub.Payloads) != 0 {
		t.Errorf("expected nothing published while disconnected, got %d", len(f.pub.Payloads))
	}
	if !f.ctrl.State().HeaterOn {
		t.Error("control must continue while disconnected")
	}
	snap := f.tracker.Snapshot()
	if snap.MQTTConnected {
		t.Error("tracker should report MQTT disconnected")
	}
	if snap.Counts.PublishesSkipped != 1 || snap.Counts.PublishErrors != 0 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
	if len(f.recorder.telemetry) != 1 {
		t.Error("history should still be recorded while MQTT is down")
	}

	f.pub.Connected = true
	f.run(101, 200)
	if len(f.pub.Temperatures) != 1 {
		t.Errorf("expected publish after reconnect, got %d", len(f.pub.Temperatures))
	}
}

func TestSimultaneousAlertsSinglePulse(t *testing.T) {
	f := newFixture(t, sensor.Sample{TemperatureC: 40, HumidityPct: 90})
	f.ctrl.Tick(t0)

	if got := f.out.Pulses(); got != 1 {
		t.Errorf("buzzer pulses: got %d, want 1", got)
	}
	if len(f.pub.Alerts) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(f.pub.Alerts))
	}
	want := mqtt.AlertPayload{Alert: true, Temperature: 40, Humidity: 90}
	if f.pub.Alerts[0] != want {
		t.Errorf("alert: got %+v, want %+v", f.pub.Alerts[0], want)
	}
	if len(f.recorder.alerts) != 1 {
		t.Errorf("recorded alerts: got %d, want 1", len(f.recorder.alerts))
	}
}

func TestOverheatAlertsEachCycle(t *testing.T) {
	f := newFixture(t,
		sensor.Sample{TemperatureC: 39.5, HumidityPct: 60},
		sensor.Sample{TemperatureC: 39.5, HumidityPct: 60},
		sensor.Sample{TemperatureC: 37.6, HumidityPct: 60},
	)
	f.run(0, 40)

	// Re-triggered while above the margin; the dead band holds abnormal
	// without escalating again.
	if len(f.pub.Alerts) != 2 {
		t.Errorf("alerts: got %d, want 2", len(f.pub.Alerts))
	}
	if !f.ctrl.State().Abnormal || f.ctrl.State().HeaterOn {
		t.Errorf("state: got %+v", f.ctrl.State())
	}
}

func TestSimulateCommandOverridesSensor(t *testing.T) {
	f := newFixture(t, sensor.Sample{TemperatureC: 25, HumidityPct: 60})
	f.inbox.Stage(logic.Command{SimulateHighTemperature: true})
	f.ctrl.Tick(t0)

	s := f.ctrl.State()
	if s.HeaterOn || !s.Abnormal {
		t.Errorf("expected heater OFF and abnormal, got %+v", s)
	}
	if len(f.pub.Alerts) != 1 || f.pub.Alerts[0].Temperature != logic.SimulatedHighTemperature {
		t.Fatalf("expected alert at %.1f, got %+v", logic.SimulatedHighTemperature, f.pub.Alerts)
	}
	if f.pub.Alerts[0].Humidity != 60 {
		t.Errorf("humidity should come from the sensor, got %v", f.pub.Alerts[0].Humidity)
	}
	if !f.tracker.Snapshot().Simulating {
		t.Error("tracker should report simulation active")
	}
}

func TestCommandAppliedAtNextCycle(t *testing.T) {
	f := newFixture(t, sensor.Sample{TemperatureC: 25, HumidityPct: 60})
	f.ctrl.Tick(at(0))

	f.inbox.Stage(logic.Command{SimulateHighTemperature: true})
	f.run(1, 19)
	if !f.ctrl.State().HeaterOn {
		t.Fatal("command must not take effect before the next sample cycle")
	}

	f.ctrl.Tick(at(20))
	if f.ctrl.State().HeaterOn {
		t.Error("override should apply at the next sample cycle")
	}

	// Sticky until cleared.
	f.run(21, 40)
	if !f.ctrl.Simulating() || f.ctrl.State().HeaterOn {
		t.Error("override should persist across cycles")
	}

	f.inbox.Stage(logic.Command{SimulateHighTemperature: false})
	f.run(41, 60)
	if f.ctrl.Simulating() || !f.ctrl.State().HeaterOn {
		t.Errorf("expected sensor control restored, state %+v", f.ctrl.State())
	}
}

func TestSimulateDoesNotMaskFault(t *testing.T) {
	f := newFixture(t, sensor.Sample{Fault: true})
	f.inbox.Stage(logic.Command{SimulateHighTemperature: true})
	f.ctrl.Tick(t0)

	if f.ctrl.State() != (logic.ActuatorState{}) {
		t.Errorf("invalid reading must still be skipped, got %+v", f.ctrl.State())
	}
	if len(f.pub.Alerts) != 0 {
		t.Error("no alert expected from an invalid reading")
	}
}

type phaseEscalator struct {
	ctrl   *Controller
	phases []string
}

func (p *phaseEscalator) Escalate(logic.AlertEvent) { p.phases = append(p.phases, p.ctrl.Phase()) }

type phaseDisplay struct {
	ctrl   *Controller
	phases []string
}

func (p *phaseDisplay) Show(logic.Reading, logic.ActuatorState) {
	p.phases = append(p.phases, p.ctrl.Phase())
}

func TestCyclePhases(t *testing.T) {
	esc := &phaseEscalator{}
	disp := &phaseDisplay{}
	tracker := status.NewTracker(t0, status.Config{}, 1)
	ctrl, err := New(Config{
		Source:          sensor.NewFakeSource(sensor.Sample{TemperatureC: 25, HumidityPct: 60}, sensor.Sample{TemperatureC: 40, HumidityPct: 60}),
		Outputs:         gpio.NewFakeOutputs(),
		Publisher:       mqtt.NewFakePublisher(),
		Escalator:       esc,
		Thresholds:      logic.DefaultThresholds(),
		SampleInterval:  2 * time.Second,
		PublishInterval: 10 * time.Second,
		Display:         disp,
		Status:          tracker,
		Log:             logr.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	esc.ctrl, disp.ctrl = ctrl, ctrl
	_ = ctrl.Start(t0)

	ctrl.Tick(at(0))
	ctrl.Tick(at(20))

	if len(esc.phases) != 1 || esc.phases[0] != PhaseEscalating {
		t.Errorf("escalator phases: got %v", esc.phases)
	}
	if want := []string{PhaseControlling, PhaseEscalating}; len(disp.phases) != 2 || disp.phases[0] != want[0] || disp.phases[1] != want[1] {
		t.Errorf("display phases: got %v, want %v", disp.phases, want)
	}
	if ctrl.Phase() != PhaseIdle {
		t.Errorf("phase after cycle: got %q, want idle", ctrl.Phase())
	}
	if tracker.Snapshot().Phase != PhaseIdle {
		t.Errorf("tracker phase: got %q", tracker.Snapshot().Phase)
	}
}

func TestMetricsRecorded(t *testing.T) {
	f := newFixture(t,
		sensor.Sample{TemperatureC: 39.5, HumidityPct: 60},
		sensor.Sample{Fault: true},
		sensor.Sample{TemperatureC: 37.6, HumidityPct: 60},
	)
	f.run(0, 100)

	expected := `
# HELP incubator_alerts_total Alerts escalated.
# TYPE incubator_alerts_total counter
incubator_alerts_total 1
# HELP incubator_samples_total Sensor samples by result (valid, fault).
# TYPE incubator_samples_total counter
incubator_samples_total{result="fault"} 1
incubator_samples_total{result="valid"} 5
# HELP incubator_publishes_total Telemetry publish cycles by result (ok, skipped, error).
# TYPE incubator_publishes_total counter
incubator_publishes_total{result="ok"} 1
`
	if err := testutil.GatherAndCompare(f.metrics.Registry, strings.NewReader(expected),
		"incubator_alerts_total", "incubator_samples_total", "incubator_publishes_total"); err != nil {
		t.Error(err)
	}
}

func TestStatusCountsWithoutDisplay(t *testing.T) {
	tracker := status.NewTracker(t0, status.Config{}, 1)
	ctrl, err := New(Config{
		Source: sensor.NewFakeSource(
			sensor.Sample{TemperatureC: 37.6, HumidityPct: 60},
			sensor.Sample{Fault: true},
			sensor.Sample{TemperatureC: 37.6, HumidityPct: 60},
		),
		Outputs:         gpio.NewFakeOutputs(),
		Publisher:       mqtt.NewFakePublisher(),
		Escalator:       alert.NewEscalator(gpio.NewFakeOutputs(), mqtt.NewFakePublisher(), logr.Discard()),
		Thresholds:      logic.DefaultThresholds(),
		SampleInterval:  2 * time.Second,
		PublishInterval: 10 * time.Second,
		Status:          tracker,
		Log:             logr.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ctrl.Start(t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i <= 40; i++ {
		ctrl.Tick(at(i))
	}

	snap := tracker.Snapshot()
	if snap.Counts.Samples != 3 || snap.Counts.Faults != 1 {
		t.Errorf("counts: got %+v, want 3 samples with 1 fault", snap.Counts)
	}
	if !snap.LastSampleValid {
		t.Error("expected LastSampleValid after recovery")
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t, sensor.Sample{TemperatureC: 25, HumidityPct: 60})
	f.ctrl.cfg.Now = func() time.Time { return t0 }

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(ctx, tick) }()

	tick <- time.Time{}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if f.src.Calls != 1 {
		t.Errorf("expected one sample, got %d", f.src.Calls)
	}
	if !f.ctrl.State().HeaterOn {
		t.Error("expected heater ON after the tick")
	}
}

func TestInboxLastWriteWins(t *testing.T) {
	in := NewInbox()
	if _, ok := in.Take(); ok {
		t.Fatal("empty inbox should have nothing pending")
	}

	in.Stage(logic.Command{SimulateHighTemperature: true})
	in.Stage(logic.Command{SimulateHighTemperature: false})
	cmd, ok := in.Take()
	if !ok || cmd.SimulateHighTemperature {
		t.Errorf("expected the latest command, got %+v ok=%v", cmd, ok)
	}
	if _, ok := in.Take(); ok {
		t.Error("Take should clear the inbox")
	}
}

func TestInboxConcurrent(t *testing.T) {
	in := NewInbox()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			in.Stage(logic.Command{SimulateHighTemperature: i%2 == 0})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			in.Take()
		}
	}()
	wg.Wait()
}

func TestCommandHandler(t *testing.T) {
	in := NewInbox()
	m := metrics.New()
	tracker := status.NewTracker(t0, status.Config{}, 1)
	handle := CommandHandler(in, m, tracker, logr.Discard())

	handle([]byte(`{"simulate_high_temp": "maybe"}`))
	if _, ok := in.Take(); ok {
		t.Fatal("malformed command must not be staged")
	}

	handle([]byte(`{"simulate_high_temp": true}`))
	handle([]byte(`{"fan_speed": 2}`))
	cmd, ok := in.Take()
	if !ok || !cmd.SimulateHighTemperature {
		t.Errorf("unrecognised command must not replace the staged one, got %+v ok=%v", cmd, ok)
	}

	c := tracker.Snapshot().Counts
	if c.Commands != 3 || c.CommandsMalformed != 1 {
		t.Errorf("counts: got %+v", c)
	}

	expected := `
# HELP incubator_commands_total Remote commands by result (accepted, ignored, malformed).
# TYPE incubator_commands_total counter
incubator_commands_total{result="accepted"} 1
incubator_commands_total{result="ignored"} 1
incubator_commands_total{result="malformed"} 1
`
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "incubator_commands_total"); err != nil {
		t.Error(err)
	}
}

func TestCommandHandlerNilCollaborators(t *testing.T) {
	in := NewInbox()
	CommandHandler(in, nil, nil, logr.Discard())([]byte(`{"simulate_high_temp": false}`))
	if _, ok := in.Take(); !ok {
		t.Error("expected command staged")
	}
}
