package sensor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/sweeney/incubator/internal/logic"
)

// IIO attribute files written by the dht11 driver, in milli-units.
const (
	tempFile     = "in_temp_input"
	humidityFile = "in_humidityrelative_input"
)

// ErrOutOfRange is returned for values outside the transducer's physical range.
var ErrOutOfRange = errors.New("value out of sensor range")

// IIOSource reads a DHT22 through /sys/bus/iio/devices/iio:deviceN.
type IIOSource struct {
	dir      string
	log      logr.Logger
	readFile func(string) ([]byte, error)
}

// NewIIOSource creates a source for the given IIO device directory.
func NewIIOSource(dir string, log logr.Logger) *IIOSource {
	return &IIOSource{
		dir:      dir,
		log:      log.WithName("sensor"),
		readFile: os.ReadFile,
	}
}

// Sample reads temperature then humidity. Any failure makes the whole reading invalid.
func (s *IIOSource) Sample(now time.Time) logic.Reading {
	temp, err := s.readWithRetry(tempFile)
	if err == nil && (temp < MinTemperatureC || temp > MaxTemperatureC) {
		err = fmt.Errorf("temperature %.1f: %w", temp, ErrOutOfRange)
	}
	if err != nil {
		s.log.Error(err, "sensor fault", "attribute", tempFile)
		return logic.InvalidReading(now)
	}

	hum, err := s.readWithRetry(humidityFile)
	if err == nil && (hum < MinHumidityPct || hum > MaxHumidityPct) {
		err = fmt.Errorf("humidity %.1f: %w", hum, ErrOutOfRange)
	}
	if err != nil {
		s.log.Error(err, "sensor fault", "attribute", humidityFile)
		return logic.InvalidReading(now)
	}

	return logic.Reading{
		TemperatureC: temp,
		HumidityPct:  hum,
		Valid:        true,
		Time:         now,
	}
}

// readWithRetry retries once: the dht11 driver routinely fails a single
// transfer with EIO or a checksum error.
func (s *IIOSource) readWithRetry(name string) (float64, error) {
	v, err := s.readMilli(name)
	if err == nil {
		return v, nil
	}
	s.log.V(1).Info("sensor read failed, retrying", "attribute", name, "error", err.Error())
	return s.readMilli(name)
}

func (s *IIOSource) readMilli(name string) (float64, error) {
	data, err := s.readFile(filepath.Join(s.dir, name))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	raw, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%s is not a number", name)
	}
	return raw / 1000, nil
}
