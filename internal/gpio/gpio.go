// Package gpio drives the incubator's physical outputs with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/incubator/internal/logic"

// Outputs drives the heater relay, indicator LEDs and buzzer.
type Outputs interface {
	// Apply sets the relay and indicators from the actuator state.
	Apply(state logic.ActuatorState) error
	// SetBuzzer switches the buzzer on or off.
	SetBuzzer(on bool) error
	// Close drives every output off and releases GPIO resources.
	Close() error
}

// Default line offsets (BCM numbering)
const (
	DefaultPinHeater  = 17
	DefaultPinRedLED  = 27
	DefaultPinBlueLED = 22
	DefaultPinBuzzer  = 18
)

// Pins describes where each output is wired.
type Pins struct {
	Chip    string
	Heater  int
	RedLED  int
	BlueLED int
	Buzzer  int
	// RelayActiveLow is true for relay modules energised by a low input.
	RelayActiveLow bool
}

// Levels are the logical (active = true) output levels.
type Levels struct {
	Heater  bool
	RedLED  bool
	BlueLED bool
}

// LevelsFor maps an actuator state to output levels.
// The red LED mirrors the heater; the blue LED shows humidity out of band.
func LevelsFor(s logic.ActuatorState) Levels {
	return Levels{
		Heater:  s.HeaterOn,
		RedLED:  s.HeaterOn,
		BlueLED: s.HumidityIndicatorOn,
	}
}
