// Package config loads and validates the detector's startup configuration.
// Values are layered defaults → YAML file → BATDETECT_* environment → flags.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/bat-detector/internal/gpio"
)

// EnvPrefix is the prefix for environment overrides (BATDETECT_QUIET_TICKS, ...).
const EnvPrefix = "BATDETECT"

// DefaultQuietTicks is the default quiet interval: 10ms of 1µs ticks.
const DefaultQuietTicks = 10000

// ErrNoDetectors is returned when no detector inputs are configured.
var ErrNoDetectors = errors.New("config: no detectors configured")

// Config is the complete startup configuration.
type Config struct {
	Chip          string        `mapstructure:"chip" validate:"required"`
	QuietTicks    uint32        `mapstructure:"quiet_ticks" validate:"gt=0"`
	QueueCapacity int           `mapstructure:"queue_capacity" validate:"gte=0"`
	ActivityPin   int           `mapstructure:"activity_pin" validate:"gte=-1"`
	Heartbeat     time.Duration `mapstructure:"heartbeat" validate:"gte=0"`
	MetricsFile   string        `mapstructure:"metrics_file"`
	Detectors     []Detector    `mapstructure:"detectors" validate:"dive"`
}

// Detector configures one monitored input.
type Detector struct {
	// Pin is the BCM offset of the detector input.
	Pin int `mapstructure:"pin" validate:"gte=0"`
	// LEDPin is the per-line indicator, -1 for none.
	LEDPin int `mapstructure:"led_pin" validate:"gte=-1"`
	// QuietTicks overrides the global quiet interval when non-zero.
	QuietTicks uint32 `mapstructure:"quiet_ticks"`
}

// Quiet returns the effective quiet interval for d.
func (c Config) Quiet(d Detector) uint32 {
	if d.QuietTicks != 0 {
		return d.QuietTicks
	}
	return c.QuietTicks
}

// Pins returns the detector input pins in configuration order.
func (c Config) Pins() []int {
	pins := make([]int, len(c.Detectors))
	for i, d := range c.Detectors {
		pins[i] = d.Pin
	}
	return pins
}

// Outputs returns every configured indicator pin, each listed once.
func (c Config) Outputs() []int {
	var out []int
	seen := map[int]bool{}
	add := func(pin int) {
		if pin != gpio.NoOutput && !seen[pin] {
			seen[pin] = true
			out = append(out, pin)
		}
	}
	add(c.ActivityPin)
	for _, d := range c.Detectors {
		add(d.LEDPin)
	}
	return out
}

// DefaultDetectors returns the stock three-detector board wiring.
func DefaultDetectors() []Detector {
	return []Detector{
		{Pin: gpio.DefaultPinDetector1, LEDPin: gpio.DefaultPinGreenLED},
		{Pin: gpio.DefaultPinDetector2, LEDPin: gpio.DefaultPinRedLED},
		{Pin: gpio.DefaultPinDetector3, LEDPin: gpio.DefaultPinYellowLED},
	}
}

// SetDefaults installs default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("chip", gpio.DefaultChip)
	v.SetDefault("quiet_ticks", DefaultQuietTicks)
	v.SetDefault("queue_capacity", 0)
	v.SetDefault("activity_pin", gpio.DefaultPinBlueLED)
	v.SetDefault("heartbeat", 15*time.Minute)
	v.SetDefault("metrics_file", "")
}

// Load reads the configuration held by v. If file is non-empty it is read
// as YAML first. detectorSpecs, if non-empty, replace the detectors from the
// file (see ParseDetector). The result is validated.
func Load(v *viper.Viper, file string, detectorSpecs []string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	switch {
	case len(detectorSpecs) > 0:
		cfg.Detectors = cfg.Detectors[:0]
		for _, spec := range detectorSpecs {
			d, err := ParseDetector(spec)
			if err != nil {
				return Config{}, err
			}
			cfg.Detectors = append(cfg.Detectors, d)
		}
	case !v.IsSet("detectors"):
		cfg.Detectors = DefaultDetectors()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseDetector parses "pin", "pin:led" or "pin:led:quiet". A missing or
// "-" led means no indicator; a missing quiet inherits the global value.
func ParseDetector(spec string) (Detector, error) {
	parts := strings.Split(spec, ":")
	if len(parts) > 3 {
		return Detector{}, fmt.Errorf("detector %q: expected pin[:led[:quiet]]", spec)
	}

	d := Detector{LEDPin: gpio.NoOutput}

	pin, err := strconv.Atoi(parts[0])
	if err != nil {
		return Detector{}, fmt.Errorf("detector %q: bad pin: %w", spec, err)
	}
	d.Pin = pin

	if len(parts) > 1 && parts[1] != "" && parts[1] != "-" {
		led, err := strconv.Atoi(parts[1])
		if err != nil {
			return Detector{}, fmt.Errorf("detector %q: bad led pin: %w", spec, err)
		}
		d.LEDPin = led
	}

	if len(parts) > 2 && parts[2] != "" {
		q, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return Detector{}, fmt.Errorf("detector %q: bad quiet ticks: %w", spec, err)
		}
		d.QuietTicks = uint32(q)
	}
	return d, nil
}
