package sensor

import (
	"time"

	"github.com/sweeney/incubator/internal/logic"
)

// Sample is a scripted sensor value. Fault makes the reading invalid.
type Sample struct {
	TemperatureC float64
	HumidityPct  float64
	Fault        bool
}

// FakeSource is a test double that returns scripted readings.
type FakeSource struct {
	// Samples contains scripted values. Each call to Sample consumes the next.
	Samples []Sample
	// Calls counts Sample invocations.
	Calls int
	index int
}

// NewFakeSource creates a FakeSource with the given samples.
func NewFakeSource(samples ...Sample) *FakeSource {
	return &FakeSource{Samples: samples}
}

// Sample returns the next scripted reading stamped with now.
// If samples are exhausted, returns the last sample repeatedly.
// With no samples configured every reading is invalid.
func (f *FakeSource) Sample(now time.Time) logic.Reading {
	f.Calls++
	if len(f.Samples) == 0 {
		return logic.InvalidReading(now)
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	if s.Fault {
		return logic.InvalidReading(now)
	}
	return logic.Reading{
		TemperatureC: s.TemperatureC,
		HumidityPct:  s.HumidityPct,
		Valid:        true,
		Time:         now,
	}
}

// Reset rewinds the script.
func (f *FakeSource) Reset() {
	f.index = 0
	f.Calls = 0
}
