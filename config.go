package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
)

const DefaultConfigPath = "pinloop.toml"

var ErrInvalidConfig = errors.New("invalid config")

// Flags are the command line options. Non-empty values win over both the
// config file and the environment.
type Flags struct {
	ConfigPath string
	Demo       string
	Driver     string
	LogLevel   string
	Version    bool
	Systemd    bool
}

func ParseFlags(name string, args []string) (Flags, error) {
	var f Flags
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.StringVar(&f.ConfigPath, "config", "", "Path to the config file (default "+DefaultConfigPath+")")
	set.StringVar(&f.Demo, "demo", "", "Demo to run at startup")
	set.StringVar(&f.Driver, "driver", "", "GPIO driver: sim or rpio")
	set.StringVar(&f.LogLevel, "log-level", "", "Log level")
	set.BoolVar(&f.Version, "version", false, "Print version")
	set.BoolVar(&f.Systemd, "systemd", false, "Print systemd service file")
	err := set.Parse(args)
	return f, err
}

// PinEntry is one [[pins]] table. The pin is set up at boot; a demo or a
// later Setup for the same number replaces it.
type PinEntry struct {
	Pin        int    `toml:"pin"`
	Mode       string `toml:"mode"`
	Pull       string `toml:"pull"`
	Interrupt  string `toml:"interrupt"`
	DebounceMS *int   `toml:"debounce_ms"`
}

func (p PinEntry) PinConfig() (loop.PinConfig, error) {
	var cfg loop.PinConfig
	var err error
	if cfg.Mode, err = gpio.ParseMode(p.Mode); err != nil {
		return cfg, err
	}
	if cfg.Pull, err = gpio.ParsePull(p.Pull); err != nil {
		return cfg, err
	}
	if cfg.Interrupt, err = gpio.ParseEdge(p.Interrupt); err != nil {
		return cfg, err
	}
	if p.DebounceMS != nil {
		if *p.DebounceMS <= 0 {
			return cfg, fmt.Errorf("debounce_ms must be positive, got %d", *p.DebounceMS)
		}
		cfg.Debounce = time.Duration(*p.DebounceMS) * time.Millisecond
	}
	return cfg, nil
}

type Config struct {
	Driver       string     `toml:"driver"`
	PinCount     int        `toml:"pin_count"`
	RingCapacity int        `toml:"ring_capacity"`
	DrainBatch   int        `toml:"drain_batch"`
	MaxTimers    int        `toml:"max_timers"`
	Host         string     `toml:"host"`
	Port         string     `toml:"port"`
	Demo         string     `toml:"demo"`
	LogLevel     string     `toml:"log_level"`
	Pins         []PinEntry `toml:"pins"`

	path string
}

func defaultConfig() Config {
	return Config{
		Driver:       "sim",
		PinCount:     40,
		RingCapacity: loop.DefaultRingCapacity,
		DrainBatch:   loop.DefaultDrainBatch,
		Host:         "127.0.0.1",
		Port:         "8040",
		LogLevel:     "info",
	}
}

// NewConfig layers defaults, the TOML file, the environment and flags, in
// that order. A missing file is fine unless its path was given explicitly.
func NewConfig(fs PinloopFS, flags Flags, getenv func(string) string) (*Config, error) {
	c := defaultConfig()

	path := flags.ConfigPath
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	abs, err := expandPath(fs, path)
	if err != nil {
		return nil, err
	}

	raw, err := afero.ReadFile(fs, abs)
	switch {
	case err == nil:
		if err := toml.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, abs, err)
		}
		c.path = abs
	case errors.Is(err, os.ErrNotExist) && !explicit:
		log.Debug().Str("path", abs).Msg("No config file, using defaults")
	default:
		return nil, err
	}

	if v := getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := getenv("PINLOOP_DRIVER"); v != "" {
		c.Driver = v
	}

	if flags.Driver != "" {
		c.Driver = flags.Driver
	}
	if flags.Demo != "" {
		c.Demo = flags.Demo
	}
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.PinCount < 1 || c.PinCount > 64 {
		return fmt.Errorf("%w: pin_count must be between 1 and 64, got %d", ErrInvalidConfig, c.PinCount)
	}
	if c.RingCapacity < 1 {
		return fmt.Errorf("%w: ring_capacity must be positive, got %d", ErrInvalidConfig, c.RingCapacity)
	}
	if c.DrainBatch < 1 {
		return fmt.Errorf("%w: drain_batch must be positive, got %d", ErrInvalidConfig, c.DrainBatch)
	}
	if c.MaxTimers < 0 {
		return fmt.Errorf("%w: max_timers cannot be negative", ErrInvalidConfig)
	}
	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		return fmt.Errorf("%w: bad port %q", ErrInvalidConfig, c.Port)
	}
	for i, p := range c.Pins {
		if _, err := p.PinConfig(); err != nil {
			return fmt.Errorf("%w: pins[%d] (pin %d): %w", ErrInvalidConfig, i, p.Pin, err)
		}
	}
	return nil
}

// Path is the config file that was loaded, or empty if none was.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

func (c *Config) RuntimeOptions() loop.Options {
	return loop.Options{
		RingCapacity: c.RingCapacity,
		DrainBatch:   c.DrainBatch,
		MaxTimers:    c.MaxTimers,
	}
}

// SetupPins configures every [[pins]] table on rt.
func (c *Config) SetupPins(rt *loop.Runtime) ([]*loop.Pin, error) {
	pins := make([]*loop.Pin, 0, len(c.Pins))
	for _, p := range c.Pins {
		cfg, err := p.PinConfig()
		if err != nil {
			return pins, err
		}
		pin, err := rt.Setup(p.Pin, cfg)
		if err != nil {
			return pins, err
		}
		pins = append(pins, pin)
	}
	return pins, nil
}
