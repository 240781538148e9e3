package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// set by the build through ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	AdapterPeriph   = "periph"
	AdapterGobot    = "gobot"
	AdapterMCP2221  = "mcp2221"
	AdapterEmulator = "emulator"
)

const (
	ModePeriodic = "periodic"
	ModeLowPower = "low-power"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Bus     Bus     `yaml:"bus"`
	Sensor  Sensor  `yaml:"sensor"`
	Monitor Monitor `yaml:"monitor"`
	HTTP    HTTP    `yaml:"http"`
}

type Bus struct {
	// Adapter is one of periph, gobot, mcp2221 or emulator.
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name, e.g. "/dev/i2c-1" or "1".
	Device string `yaml:"device,omitempty"`
	// Number selects the gobot bus; -1 uses the board default.
	Number int `yaml:"number"`
}

type Sensor struct {
	Address byte   `yaml:"address"`
	Mode    string `yaml:"mode"`
	// optional settings applied before measuring starts
	Altitude          *float32 `yaml:"altitude,omitempty"`
	TemperatureOffset *float32 `yaml:"temperature_offset,omitempty"`
	AmbientPressure   *float32 `yaml:"ambient_pressure,omitempty"`
}

type Monitor struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type HTTP struct {
	Listen      string `yaml:"listen"`
	MetricsPath string `yaml:"metrics_path"`
	StreamPath  string `yaml:"stream_path"`
}

func Default() Config {
	return Config{
		Bus: Bus{
			Adapter: AdapterPeriph,
			Number:  -1,
		},
		Sensor: Sensor{
			Address: 0x62,
			Mode:    ModePeriodic,
		},
		Monitor: Monitor{
			PollInterval: time.Second,
		},
		HTTP: HTTP{
			Listen:      ":9120",
			MetricsPath: "/metrics",
			StreamPath:  "/stream",
		},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Bus.Adapter {
	case AdapterPeriph, AdapterGobot, AdapterMCP2221, AdapterEmulator:
	default:
		return fmt.Errorf("%w: unknown bus adapter %q", ErrInvalid, c.Bus.Adapter)
	}
	if c.Sensor.Address == 0 || c.Sensor.Address > 0x7f {
		return fmt.Errorf("%w: sensor address %#x is not a 7-bit address", ErrInvalid, c.Sensor.Address)
	}
	switch c.Sensor.Mode {
	case ModePeriodic, ModeLowPower:
	default:
		return fmt.Errorf("%w: unknown measurement mode %q", ErrInvalid, c.Sensor.Mode)
	}
	if c.Sensor.Altitude != nil && (*c.Sensor.Altitude < 0 || *c.Sensor.Altitude > 3000) {
		return fmt.Errorf("%w: altitude %g m out of range 0-3000", ErrInvalid, *c.Sensor.Altitude)
	}
	if c.Sensor.TemperatureOffset != nil && (*c.Sensor.TemperatureOffset < 0 || *c.Sensor.TemperatureOffset > 20) {
		return fmt.Errorf("%w: temperature offset %g °C out of range 0-20", ErrInvalid, *c.Sensor.TemperatureOffset)
	}
	if c.Sensor.AmbientPressure != nil && (*c.Sensor.AmbientPressure < 700 || *c.Sensor.AmbientPressure > 1200) {
		return fmt.Errorf("%w: ambient pressure %g hPa out of range 700-1200", ErrInvalid, *c.Sensor.AmbientPressure)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalid)
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("%w: missing listen address", ErrInvalid)
	}
	return nil
}
