package logic

import "time"

// TemperatureTelemetry is the temperature record published each publish cycle.
type TemperatureTelemetry struct {
	Value  float64
	Unit   string
	Heater bool
	Time   int64 // whole seconds of uptime
}

// HumidityTelemetry is the humidity record published each publish cycle.
type HumidityTelemetry struct {
	Value float64
	Unit  string
	Time  int64
}

// Telemetry renders the latest reading and state into the two publish records.
func Telemetry(r Reading, s ActuatorState, uptime time.Duration) (TemperatureTelemetry, HumidityTelemetry) {
	secs := int64(uptime / time.Second)
	return TemperatureTelemetry{
			Value:  r.TemperatureC,
			Unit:   "C",
			Heater: s.HeaterOn,
			Time:   secs,
		}, HumidityTelemetry{
			Value: r.HumidityPct,
			Unit:  "%",
			Time:  secs,
		}
}
