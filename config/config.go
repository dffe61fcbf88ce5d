// Package config loads the YAML configuration shared by the autdctl commands.
//
// A configuration file selects the link, tunes the sender, places the devices
// and sets the log level. Every field is optional:
//
//	log:
//	  level: debug
//	link:
//	  kind: udp
//	  address: 192.168.1.10:9000
//	sender:
//	  send_interval: 1ms
//	  timeout: 200ms
//	  parallel: auto
//	  timer: fixed-schedule
//	  sleeper: context
//	geometry:
//	  devices:
//	    - origin: [0, 0, 0]
//	    - origin: [192, 0, 0]
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-autd/controller"
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/link/emulator"
	"github.com/arloliu/go-autd/link/remote"
	"github.com/arloliu/go-autd/link/serial"
	"github.com/arloliu/go-autd/link/udp"
	"github.com/arloliu/go-autd/logger"
	"github.com/arloliu/go-autd/sender"
)

// ErrInvalidConfig is returned for a configuration that cannot be applied.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Link kinds.
const (
	LinkEmulator = "emulator"
	LinkNop      = "nop"
	LinkUDP      = "udp"
	LinkSerial   = "serial"
	LinkRemote   = "remote"
)

// Device kinds.
const (
	DeviceAUTD3 = "autd3"
	DeviceGrid  = "grid"
)

// Timer and sleeper names.
const (
	TimerFixedSchedule = "fixed-schedule"
	TimerFixedDelay    = "fixed-delay"

	SleeperStd     = "std"
	SleeperSpin    = "spin"
	SleeperContext = "context"
)

// Config is the root of a configuration file.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Link       LinkConfig       `yaml:"link"`
	Sender     SenderConfig     `yaml:"sender"`
	Controller ControllerConfig `yaml:"controller"`
	Geometry   GeometryConfig   `yaml:"geometry"`
}

// LogConfig selects the log level and output format.
// An empty format follows the ENV environment variable.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LinkConfig selects and configures the transport.
type LinkConfig struct {
	Kind    string        `yaml:"kind"`
	Address string        `yaml:"address"`
	Device  string        `yaml:"device"`
	Baud    int           `yaml:"baud"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// Version is the firmware generation emulated by the emulator link.
	Version string `yaml:"version"`
}

// SenderConfig mirrors the sender options. Zero values keep the sender defaults.
type SenderConfig struct {
	SendInterval       *time.Duration `yaml:"send_interval"`
	ReceiveInterval    *time.Duration `yaml:"receive_interval"`
	Timeout            *time.Duration `yaml:"timeout"`
	Parallel           string         `yaml:"parallel"`
	ParallelThreshold  *int           `yaml:"parallel_threshold"`
	Strict             *bool          `yaml:"strict"`
	RetransmitInterval *time.Duration `yaml:"retransmit_interval"`
	Timer              string         `yaml:"timer"`
	Sleeper            string         `yaml:"sleeper"`
}

// ControllerConfig configures session setup.
type ControllerConfig struct {
	// Firmware forces the firmware generation instead of querying the devices.
	Firmware   string `yaml:"firmware"`
	Initialize *bool  `yaml:"initialize"`
}

// GeometryConfig places the devices.
type GeometryConfig struct {
	SoundSpeed float32        `yaml:"sound_speed"`
	Devices    []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one device. Kind defaults to autd3; a grid device
// takes its transducer layout from NX, NY and Pitch.
type DeviceConfig struct {
	Kind   string     `yaml:"kind"`
	Origin [3]float32 `yaml:"origin"`
	NX     int        `yaml:"nx"`
	NY     int        `yaml:"ny"`
	Pitch  float32    `yaml:"pitch"`
}

// Default returns the configuration used when no file is present: a single
// AUTD3 device behind the emulator link.
func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info"},
		Link: LinkConfig{Kind: LinkEmulator},
		Geometry: GeometryConfig{
			Devices: []DeviceConfig{{Kind: DeviceAUTD3}},
		},
	}
}

// DefaultPath returns the default config file path: ~/.autd/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".autd", "config.yaml")
	}

	return filepath.Join(home, ".autd", "config.yaml")
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns Default with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields that are not checked by the options they map to.
func (c *Config) Validate() error {
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	if _, ok := logger.ParseFormat(c.Log.Format); !ok {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	switch c.Link.Kind {
	case LinkEmulator, LinkNop:
	case LinkUDP:
		if c.Link.Address == "" {
			return fmt.Errorf("%w: udp link requires an address", ErrInvalidConfig)
		}
	case LinkSerial:
		if c.Link.Device == "" {
			return fmt.Errorf("%w: serial link requires a device", ErrInvalidConfig)
		}
	case LinkRemote:
		if c.Link.URL == "" {
			return fmt.Errorf("%w: remote link requires a url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown link kind %q", ErrInvalidConfig, c.Link.Kind)
	}
	if len(c.Geometry.Devices) == 0 {
		return fmt.Errorf("%w: no devices", ErrInvalidConfig)
	}

	return nil
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() logger.Level {
	level, _ := logger.ParseLevel(c.Log.Level)
	return level
}

// NewLogger creates a slog logger at the configured level, writing to stderr.
func (c *Config) NewLogger() logger.Logger {
	format, _ := logger.ParseFormat(c.Log.Format)
	return logger.NewSlogFormat(os.Stderr, format, c.LogLevel(), false)
}

// BuildGeometry builds the device geometry.
func (c *Config) BuildGeometry() (*geometry.Geometry, error) {
	specs := make([]geometry.DeviceSpec, 0, len(c.Geometry.Devices))
	for i, d := range c.Geometry.Devices {
		origin := geometry.Point3{X: d.Origin[0], Y: d.Origin[1], Z: d.Origin[2]}

		var spec geometry.DeviceSpec
		switch d.Kind {
		case "", DeviceAUTD3:
			spec = geometry.AUTD3(origin)
		case DeviceGrid:
			if d.NX <= 0 || d.NY <= 0 || d.Pitch <= 0 {
				return nil, fmt.Errorf("%w: device %d: grid requires positive nx, ny and pitch", ErrInvalidConfig, i)
			}
			spec = geometry.Grid(origin, d.NX, d.NY, d.Pitch)
		default:
			return nil, fmt.Errorf("%w: device %d: unknown kind %q", ErrInvalidConfig, i, d.Kind)
		}
		spec.SoundSpeed = c.Geometry.SoundSpeed
		specs = append(specs, spec)
	}

	return geometry.New(specs...)
}

// SenderOptions translates the sender section into sender options.
func (c *Config) SenderOptions() ([]sender.Option, error) {
	s := c.Sender

	var opts []sender.Option
	if s.SendInterval != nil {
		opts = append(opts, sender.WithSendInterval(*s.SendInterval))
	}
	if s.ReceiveInterval != nil {
		opts = append(opts, sender.WithReceiveInterval(*s.ReceiveInterval))
	}
	if s.Timeout != nil {
		opts = append(opts, sender.WithTimeout(*s.Timeout))
	}
	if s.Parallel != "" {
		mode, ok := sender.ParseParallelMode(s.Parallel)
		if !ok {
			return nil, fmt.Errorf("%w: unknown parallel mode %q", ErrInvalidConfig, s.Parallel)
		}
		opts = append(opts, sender.WithParallel(mode))
	}
	if s.ParallelThreshold != nil {
		opts = append(opts, sender.WithParallelThreshold(*s.ParallelThreshold))
	}
	if s.Strict != nil {
		opts = append(opts, sender.WithStrict(*s.Strict))
	}
	if s.RetransmitInterval != nil {
		opts = append(opts, sender.WithRetransmitInterval(*s.RetransmitInterval))
	}

	if s.Timer != "" || s.Sleeper != "" {
		strategy, err := timerStrategy(s.Timer, s.Sleeper)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sender.WithTimerStrategy(strategy))
	}

	return opts, nil
}

func timerStrategy(timer, sleeper string) (sender.TimerStrategy, error) {
	var sl sender.Sleeper
	switch sleeper {
	case "", SleeperContext:
		sl = sender.ContextSleeper{}
	case SleeperStd:
		sl = sender.StdSleeper{}
	case SleeperSpin:
		sl = sender.SpinSleeper{}
	default:
		return nil, fmt.Errorf("%w: unknown sleeper %q", ErrInvalidConfig, sleeper)
	}

	switch timer {
	case "", TimerFixedSchedule:
		return sender.FixedSchedule{Sleeper: sl}, nil
	case TimerFixedDelay:
		return sender.FixedDelay{Sleeper: sl}, nil
	default:
		return nil, fmt.Errorf("%w: unknown timer %q", ErrInvalidConfig, timer)
	}
}

// ControllerOptions translates the controller and sender sections into
// controller options.
func (c *Config) ControllerOptions(log logger.Logger) ([]controller.Option, error) {
	senderOpts, err := c.SenderOptions()
	if err != nil {
		return nil, err
	}

	opts := []controller.Option{controller.WithSenderOptions(senderOpts...)}
	if log != nil {
		opts = append(opts, controller.WithLogger(log))
	}
	if c.Controller.Firmware != "" {
		v, err := firmware.ParseVersion(c.Controller.Firmware)
		if err != nil {
			return nil, err
		}
		opts = append(opts, controller.WithFirmwareVersion(v))
	}
	if c.Controller.Initialize != nil && !*c.Controller.Initialize {
		opts = append(opts, controller.WithoutInitialize())
	}

	return opts, nil
}

// NewLink creates the configured link, closed.
func (c *Config) NewLink(log logger.Logger) (link.Link, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	l := c.Link
	switch l.Kind {
	case LinkEmulator:
		opts := []emulator.Option{emulator.WithLogger(log)}
		if l.Version != "" {
			v, err := firmware.ParseVersion(l.Version)
			if err != nil {
				return nil, err
			}
			opts = append(opts, emulator.WithVersion(v))
		}

		return asLink(emulator.New(opts...))
	case LinkNop:
		return link.NewNop(), nil
	case LinkUDP:
		return asLink(udp.New(l.Address, udp.WithLogger(log)))
	case LinkSerial:
		opts := []serial.Option{serial.WithLogger(log)}
		if l.Baud != 0 {
			opts = append(opts, serial.WithBaudRate(l.Baud))
		}

		return asLink(serial.New(l.Device, opts...))
	case LinkRemote:
		opts := []remote.Option{remote.WithLogger(log)}
		if l.Timeout != 0 {
			opts = append(opts, remote.WithTimeout(l.Timeout))
		}

		return asLink(remote.New(l.URL, opts...))
	default:
		return nil, fmt.Errorf("%w: unknown link kind %q", ErrInvalidConfig, l.Kind)
	}
}

// asLink converts a constructor result so that a failed construction yields a
// nil interface rather than a typed nil.
func asLink[T link.Link](l T, err error) (link.Link, error) {
	if err != nil {
		return nil, err
	}

	return l, nil
}
