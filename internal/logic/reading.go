// Package logic contains the pure control policy for the incubator chamber.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// SimulatedHighTemperature is the synthetic temperature injected while the
// simulate_high_temp command is active. It is above TempMax+TempAbnormalMargin
// for the default thresholds.
const SimulatedHighTemperature = 39.5

// Reading is one temperature/humidity sample.
// When Valid is false the numeric fields are zero and must not be used.
type Reading struct {
	TemperatureC float64
	HumidityPct  float64
	Valid        bool
	Time         time.Time
}

// InvalidReading returns a fault reading taken at t.
func InvalidReading(t time.Time) Reading {
	return Reading{Time: t}
}

// WithTemperature returns a copy of r with the temperature replaced.
// An invalid reading stays invalid.
func (r Reading) WithTemperature(t float64) Reading {
	if !r.Valid {
		return r
	}
	r.TemperatureC = t
	return r
}

// ActuatorState is the set of physical outputs driven by the policy.
type ActuatorState struct {
	HeaterOn            bool
	HumidityIndicatorOn bool
	// Abnormal is TempAbnormal OR the humidity abnormal condition of the
	// latest evaluation.
	Abnormal bool
	// TempAbnormal is the temperature component of Abnormal. It is held
	// unchanged while the temperature is inside the dead band.
	TempAbnormal bool
}

// AlertEvent carries the reading that triggered an abnormal classification.
type AlertEvent struct {
	TemperatureC float64
	HumidityPct  float64
}

// Command is a remote command staged for the next sample cycle.
type Command struct {
	SimulateHighTemperature bool
}

// Thresholds are the control bands. Fixed at startup.
type Thresholds struct {
	TempMin            float64
	TempMax            float64
	HumMin             float64
	HumMax             float64
	TempAbnormalMargin float64
	HumAbnormalMargin  float64
}

// Default threshold values for chicken egg incubation.
const (
	DefaultTempMin            = 37.3
	DefaultTempMax            = 38.0
	DefaultHumMin             = 55.0
	DefaultHumMax             = 65.0
	DefaultTempAbnormalMargin = 1.0
	DefaultHumAbnormalMargin  = 10.0
)

// DefaultThresholds returns the standard incubation bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TempMin:            DefaultTempMin,
		TempMax:            DefaultTempMax,
		HumMin:             DefaultHumMin,
		HumMax:             DefaultHumMax,
		TempAbnormalMargin: DefaultTempAbnormalMargin,
		HumAbnormalMargin:  DefaultHumAbnormalMargin,
	}
}

// Validate checks that bands are ordered and margins are non-negative.
func (th Thresholds) Validate() error {
	var errs []error
	if th.TempMin >= th.TempMax {
		errs = append(errs, fmt.Errorf("temp-min %.2f must be below temp-max %.2f", th.TempMin, th.TempMax))
	}
	if th.HumMin >= th.HumMax {
		errs = append(errs, fmt.Errorf("hum-min %.2f must be below hum-max %.2f", th.HumMin, th.HumMax))
	}
	if th.TempAbnormalMargin < 0 {
		errs = append(errs, fmt.Errorf("temp abnormal margin %.2f is negative", th.TempAbnormalMargin))
	}
	if th.HumAbnormalMargin < 0 {
		errs = append(errs, fmt.Errorf("humidity abnormal margin %.2f is negative", th.HumAbnormalMargin))
	}
	return errors.Join(errs...)
}
