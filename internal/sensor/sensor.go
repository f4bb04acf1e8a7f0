// Package sensor samples the chamber's temperature/humidity transducer.
// The real implementation reads the Linux IIO dht11 driver (DHT22 compatible).
// The fake implementation allows testing without hardware.
package sensor

import (
	"time"

	"github.com/sweeney/incubator/internal/logic"
)

// Source produces one reading per call.
type Source interface {
	// Sample never fails: a hardware fault yields a reading with Valid=false.
	Sample(now time.Time) logic.Reading
}

// Physical limits of the DHT22. Values outside are treated as faults.
const (
	MinTemperatureC = -40.0
	MaxTemperatureC = 80.0
	MinHumidityPct  = 0.0
	MaxHumidityPct  = 100.0
)
