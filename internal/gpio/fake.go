package gpio

import "github.com/sweeney/incubator/internal/logic"

// FakeOutputs is a test double that records every output change.
type FakeOutputs struct {
	// States contains every actuator state passed to Apply, in order.
	States []logic.ActuatorState
	// BuzzerEdges contains every value passed to SetBuzzer, in order.
	BuzzerEdges []bool
	// Buzzer is the current buzzer level.
	Buzzer bool
	// ApplyError, if set, will be returned by Apply (the state is still recorded).
	ApplyError error
	// BuzzerError, if set, will be returned by SetBuzzer.
	BuzzerError error
	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutputs creates a FakeOutputs for testing.
func NewFakeOutputs() *FakeOutputs {
	return &FakeOutputs{}
}

// Apply records the state.
func (f *FakeOutputs) Apply(state logic.ActuatorState) error {
	f.States = append(f.States, state)
	return f.ApplyError
}

// SetBuzzer records the buzzer edge.
func (f *FakeOutputs) SetBuzzer(on bool) error {
	if f.BuzzerError != nil {
		return f.BuzzerError
	}
	f.BuzzerEdges = append(f.BuzzerEdges, on)
	f.Buzzer = on
	return nil
}

// Close marks the outputs as closed and everything off.
func (f *FakeOutputs) Close() error {
	f.Closed = true
	f.Buzzer = false
	return nil
}

// Levels returns the output levels for the last applied state.
func (f *FakeOutputs) Levels() Levels {
	if len(f.States) == 0 {
		return Levels{}
	}
	return LevelsFor(f.States[len(f.States)-1])
}

// Pulses counts completed on/off buzzer pulses.
func (f *FakeOutputs) Pulses() int {
	n := 0
	for i := 1; i < len(f.BuzzerEdges); i++ {
		if f.BuzzerEdges[i-1] && !f.BuzzerEdges[i] {
			n++
		}
	}
	return n
}

// Reset clears recorded output changes.
func (f *FakeOutputs) Reset() {
	f.States = nil
	f.BuzzerEdges = nil
	f.Buzzer = false
	f.ApplyError = nil
	f.BuzzerError = nil
	f.Closed = false
}
