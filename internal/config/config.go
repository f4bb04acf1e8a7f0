// Package config loads daemon settings from flags, INCUBATOR_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/incubator/internal/gpio"
	"github.com/sweeney/incubator/internal/log"
	"github.com/sweeney/incubator/internal/logic"
)

// EnvPrefix is prepended to every environment variable, e.g. INCUBATOR_MQTT_BROKER.
const EnvPrefix = "INCUBATOR"

// Config is the complete daemon configuration.
type Config struct {
	SampleInterval  time.Duration `mapstructure:"sample-interval"`
	PublishInterval time.Duration `mapstructure:"publish-interval"`
	Tick            time.Duration `mapstructure:"tick"`
	AlertPulse      time.Duration `mapstructure:"alert-pulse"`
	AlertHistory    int           `mapstructure:"alert-history"`
	HTTPAddr        string        `mapstructure:"http"`

	MQTT       MQTTConfig      `mapstructure:"mqtt"`
	Sensor     SensorConfig    `mapstructure:"sensor"`
	GPIO       GPIOConfig      `mapstructure:"gpio"`
	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Influx     InfluxConfig    `mapstructure:"influx"`
	Log        *log.Options    `mapstructure:"log"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker          string `mapstructure:"broker"`
	ClientID        string `mapstructure:"client-id"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TopicRoot       string `mapstructure:"topic-root"`
	ConnectAttempts int    `mapstructure:"connect-attempts"`
}

// SensorConfig points at the IIO device exposed by the dht11 kernel driver.
type SensorConfig struct {
	Device string `mapstructure:"device"`
}

// GPIOConfig holds BCM line offsets for the outputs.
type GPIOConfig struct {
	Chip           string `mapstructure:"chip"`
	Heater         int    `mapstructure:"heater"`
	RedLED         int    `mapstructure:"red-led"`
	BlueLED        int    `mapstructure:"blue-led"`
	Buzzer         int    `mapstructure:"buzzer"`
	RelayActiveLow bool   `mapstructure:"relay-active-low"`
}

// ThresholdConfig mirrors logic.Thresholds for file/env loading.
type ThresholdConfig struct {
	TempMin            float64 `mapstructure:"temp-min"`
	TempMax            float64 `mapstructure:"temp-max"`
	HumMin             float64 `mapstructure:"hum-min"`
	HumMax             float64 `mapstructure:"hum-max"`
	TempAbnormalMargin float64 `mapstructure:"temp-abnormal-margin"`
	HumAbnormalMargin  float64 `mapstructure:"hum-abnormal-margin"`
}

// InfluxConfig enables the reading history sink when URL is set.
type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// NewDefault returns the configuration used when nothing is overridden.
func NewDefault() *Config {
	th := logic.DefaultThresholds()
	return &Config{
		SampleInterval:  2 * time.Second,
		PublishInterval: 10 * time.Second,
		Tick:            100 * time.Millisecond,
		AlertPulse:      500 * time.Millisecond,
		AlertHistory:    20,
		HTTPAddr:        ":80",
		MQTT: MQTTConfig{
			Broker:          "tcp://localhost:1883",
			ClientID:        "smart_egg_incubator_01",
			TopicRoot:       "smartincubator",
			ConnectAttempts: 5,
		},
		Sensor: SensorConfig{
			Device: "/sys/bus/iio/devices/iio:device0",
		},
		GPIO: GPIOConfig{
			Chip:           "gpiochip0",
			Heater:         gpio.DefaultPinHeater,
			RedLED:         gpio.DefaultPinRedLED,
			BlueLED:        gpio.DefaultPinBlueLED,
			Buzzer:         gpio.DefaultPinBuzzer,
			RelayActiveLow: true,
		},
		Thresholds: ThresholdConfig{
			TempMin:            th.TempMin,
			TempMax:            th.TempMax,
			HumMin:             th.HumMin,
			HumMax:             th.HumMax,
			TempAbnormalMargin: th.TempAbnormalMargin,
			HumAbnormalMargin:  th.HumAbnormalMargin,
		},
		Influx: InfluxConfig{
			Org:    "incubator",
			Bucket: "incubator",
		},
		Log: log.NewOptions(),
	}
}

// AddFlags registers every setting on fs, using c's values as defaults.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&c.SampleInterval, "sample-interval", c.SampleInterval, "Sensor sampling interval")
	fs.DurationVar(&c.PublishInterval, "publish-interval", c.PublishInterval, "Telemetry publish interval")
	fs.DurationVar(&c.Tick, "tick", c.Tick, "Control loop tick; both intervals are checked on every tick")
	fs.DurationVar(&c.AlertPulse, "alert-pulse", c.AlertPulse, "Buzzer pulse length for an alert")
	fs.IntVar(&c.AlertHistory, "alert-history", c.AlertHistory, "Number of recent alerts kept for the status page")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP status address (empty to disable)")

	fs.StringVar(&c.MQTT.Broker, "mqtt.broker", c.MQTT.Broker, "MQTT broker address")
	fs.StringVar(&c.MQTT.ClientID, "mqtt.client-id", c.MQTT.ClientID, "MQTT client ID")
	fs.StringVar(&c.MQTT.Username, "mqtt.username", c.MQTT.Username, "MQTT username")
	fs.StringVar(&c.MQTT.Password, "mqtt.password", c.MQTT.Password, "MQTT password")
	fs.StringVar(&c.MQTT.TopicRoot, "mqtt.topic-root", c.MQTT.TopicRoot, "Root of the temperature/humidity/status/control topics")
	fs.IntVar(&c.MQTT.ConnectAttempts, "mqtt.connect-attempts", c.MQTT.ConnectAttempts, "Connection attempts to wait for at startup before running offline")

	fs.StringVar(&c.Sensor.Device, "sensor.device", c.Sensor.Device, "IIO device directory of the DHT22")

	fs.StringVar(&c.GPIO.Chip, "gpio.chip", c.GPIO.Chip, "GPIO chip name")
	fs.IntVar(&c.GPIO.Heater, "gpio.heater", c.GPIO.Heater, "BCM line of the heater relay")
	fs.IntVar(&c.GPIO.RedLED, "gpio.red-led", c.GPIO.RedLED, "BCM line of the red (heating) LED")
	fs.IntVar(&c.GPIO.BlueLED, "gpio.blue-led", c.GPIO.BlueLED, "BCM line of the blue (humidity) LED")
	fs.IntVar(&c.GPIO.Buzzer, "gpio.buzzer", c.GPIO.Buzzer, "BCM line of the buzzer")
	fs.BoolVar(&c.GPIO.RelayActiveLow, "gpio.relay-active-low", c.GPIO.RelayActiveLow, "Heater relay module is energised by a low level")

	fs.Float64Var(&c.Thresholds.TempMin, "thresholds.temp-min", c.Thresholds.TempMin, "Heater turns on below this temperature (C)")
	fs.Float64Var(&c.Thresholds.TempMax, "thresholds.temp-max", c.Thresholds.TempMax, "Heater turns off above this temperature (C)")
	fs.Float64Var(&c.Thresholds.HumMin, "thresholds.hum-min", c.Thresholds.HumMin, "Lower edge of the humidity band (%)")
	fs.Float64Var(&c.Thresholds.HumMax, "thresholds.hum-max", c.Thresholds.HumMax, "Upper edge of the humidity band (%)")
	fs.Float64Var(&c.Thresholds.TempAbnormalMargin, "thresholds.temp-abnormal-margin", c.Thresholds.TempAbnormalMargin, "Degrees above temp-max that raise an alert")
	fs.Float64Var(&c.Thresholds.HumAbnormalMargin, "thresholds.hum-abnormal-margin", c.Thresholds.HumAbnormalMargin, "Points outside the humidity band that raise an alert")

	fs.StringVar(&c.Influx.URL, "influx.url", c.Influx.URL, "InfluxDB URL for reading history (empty to disable)")
	fs.StringVar(&c.Influx.Token, "influx.token", c.Influx.Token, "InfluxDB token")
	fs.StringVar(&c.Influx.Org, "influx.org", c.Influx.Org, "InfluxDB organisation")
	fs.StringVar(&c.Influx.Bucket, "influx.bucket", c.Influx.Bucket, "InfluxDB bucket")

	c.Log.AddFlags(fs)
}

// Load resolves the configuration. Precedence: flags set on the command line,
// environment, config file, flag defaults.
func Load(fs *pflag.FlagSet, file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := NewDefault()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("sample-interval must be positive, got %v", c.SampleInterval))
	}
	if c.PublishInterval < c.SampleInterval {
		errs = append(errs, fmt.Errorf("publish-interval %v must not be shorter than sample-interval %v", c.PublishInterval, c.SampleInterval))
	}
	if c.Tick <= 0 || c.Tick > c.SampleInterval {
		errs = append(errs, fmt.Errorf("tick %v must be positive and no longer than sample-interval", c.Tick))
	}
	if c.AlertPulse < 0 || c.AlertPulse >= c.SampleInterval {
		errs = append(errs, fmt.Errorf("alert-pulse %v must be shorter than sample-interval", c.AlertPulse))
	}
	if c.AlertHistory < 1 {
		errs = append(errs, fmt.Errorf("alert-history must be at least 1, got %d", c.AlertHistory))
	}
	if c.MQTT.TopicRoot == "" {
		errs = append(errs, errors.New("mqtt.topic-root must not be empty"))
	}
	if c.MQTT.ConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("mqtt.connect-attempts must be at least 1, got %d", c.MQTT.ConnectAttempts))
	}
	if err := c.LogicThresholds().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Log != nil {
		if err := c.Log.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pins returns the GPIO wiring.
func (c *Config) Pins() gpio.Pins {
	return gpio.Pins{
		Chip:           c.GPIO.Chip,
		Heater:         c.GPIO.Heater,
		RedLED:         c.GPIO.RedLED,
		BlueLED:        c.GPIO.BlueLED,
		Buzzer:         c.GPIO.Buzzer,
		RelayActiveLow: c.GPIO.RelayActiveLow,
	}
}

// LogicThresholds converts the loaded bands into the policy's value type.
func (c *Config) LogicThresholds() logic.Thresholds {
	return logic.Thresholds{
		TempMin:            c.Thresholds.TempMin,
		TempMax:            c.Thresholds.TempMax,
		HumMin:             c.Thresholds.HumMin,
		HumMax:             c.Thresholds.HumMax,
		TempAbnormalMargin: c.Thresholds.TempAbnormalMargin,
		HumAbnormalMargin:  c.Thresholds.HumAbnormalMargin,
	}
}
