//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/incubator/internal/logic"
)

// RealOutputs drives actual hardware using Linux GPIO character device.
type RealOutputs struct {
	chip    *gpiocdev.Chip
	heater  *gpiocdev.Line
	redLED  *gpiocdev.Line
	blueLED *gpiocdev.Line
	buzzer  *gpiocdev.Line
	pins    Pins
}

// NewRealOutputs requests all output lines, initially inactive (heater off).
func NewRealOutputs(pins Pins) (*RealOutputs, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", pins.Chip, err)
	}
	o := &RealOutputs{chip: chip, pins: pins}

	heaterOpts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if pins.RelayActiveLow {
		heaterOpts = append(heaterOpts, gpiocdev.AsActiveLow)
	}
	if o.heater, err = chip.RequestLine(pins.Heater, heaterOpts...); err != nil {
		o.Close()
		return nil, fmt.Errorf("request heater pin %d: %w", pins.Heater, err)
	}
	if o.redLED, err = chip.RequestLine(pins.RedLED, gpiocdev.AsOutput(0)); err != nil {
		o.Close()
		return nil, fmt.Errorf("request red LED pin %d: %w", pins.RedLED, err)
	}
	if o.blueLED, err = chip.RequestLine(pins.BlueLED, gpiocdev.AsOutput(0)); err != nil {
		o.Close()
		return nil, fmt.Errorf("request blue LED pin %d: %w", pins.BlueLED, err)
	}
	if o.buzzer, err = chip.RequestLine(pins.Buzzer, gpiocdev.AsOutput(0)); err != nil {
		o.Close()
		return nil, fmt.Errorf("request buzzer pin %d: %w", pins.Buzzer, err)
	}
	return o, nil
}

// Apply sets relay and LED levels. Every line is written even if one fails.
func (o *RealOutputs) Apply(state logic.ActuatorState) error {
	lv := LevelsFor(state)
	var errs []error
	if err := o.heater.SetValue(boolToValue(lv.Heater)); err != nil {
		errs = append(errs, fmt.Errorf("set heater: %w", err))
	}
	if err := o.redLED.SetValue(boolToValue(lv.RedLED)); err != nil {
		errs = append(errs, fmt.Errorf("set red LED: %w", err))
	}
	if err := o.blueLED.SetValue(boolToValue(lv.BlueLED)); err != nil {
		errs = append(errs, fmt.Errorf("set blue LED: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("apply outputs: %v", errs)
	}
	return nil
}

// SetBuzzer switches the buzzer line.
func (o *RealOutputs) SetBuzzer(on bool) error {
	if err := o.buzzer.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set buzzer: %w", err)
	}
	return nil
}

// Close drives all outputs inactive and releases the lines. It is safe to call twice.
// Lines are then reconfigured as inputs biased so that an active-low relay
// module stays de-energised while nothing owns the pin.
func (o *RealOutputs) Close() error {
	var errs []error

	release := func(name string, line *gpiocdev.Line, bias gpiocdev.LineConfigOption) {
		if line == nil {
			return
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", name, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, bias); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}

	heaterBias := gpiocdev.LineConfigOption(gpiocdev.WithPullDown)
	if o.pins.RelayActiveLow {
		heaterBias = gpiocdev.WithPullUp
	}
	release("heater", o.heater, heaterBias)
	release("red LED", o.redLED, gpiocdev.WithPullDown)
	release("blue LED", o.blueLED, gpiocdev.WithPullDown)
	release("buzzer", o.buzzer, gpiocdev.WithPullDown)

	o.heater, o.redLED, o.blueLED, o.buzzer = nil, nil, nil, nil

	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		o.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func boolToValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
