package sensor

import "testing"

func TestFakeSourceSequence(t *testing.T) {
	f := NewFakeSource(
		Sample{TemperatureC: 25, HumidityPct: 60},
		Sample{Fault: true},
		Sample{TemperatureC: 37.6, HumidityPct: 58},
	)

	r := f.Sample(sampleTime)
	if !r.Valid || r.TemperatureC != 25 || r.HumidityPct != 60 {
		t.Errorf("sample 0: got %+v", r)
	}
	r = f.Sample(sampleTime)
	if r.Valid {
		t.Errorf("sample 1: expected fault, got %+v", r)
	}
	r = f.Sample(sampleTime)
	if !r.Valid || r.TemperatureC != 37.6 {
		t.Errorf("sample 2: got %+v", r)
	}
	// Exhausted: repeats last
	r = f.Sample(sampleTime)
	if !r.Valid || r.TemperatureC != 37.6 {
		t.Errorf("sample 3 (repeat): got %+v", r)
	}
	if f.Calls != 4 {
		t.Errorf("Calls: got %d, want 4", f.Calls)
	}
}

func TestFakeSourceNoSamples(t *testing.T) {
	if r := NewFakeSource().Sample(sampleTime); r.Valid {
		t.Error("expected invalid reading with no samples")
	}
}

func TestFakeSourceReset(t *testing.T) {
	f := NewFakeSource(Sample{TemperatureC: 1, HumidityPct: 50}, Sample{TemperatureC: 2, HumidityPct: 50})
	f.Sample(sampleTime)
	f.Reset()
	if r := f.Sample(sampleTime); r.TemperatureC != 1 {
		t.Errorf("after reset: got %v, want 1", r.TemperatureC)
	}
}
