package serial

import (
	"errors"

	bugst "go.bug.st/serial"

	"github.com/arloliu/go-autd/logger"
)

// DefaultBaudRate is the baud rate of the device bridge.
const DefaultBaudRate = 921600

// Opener opens the port named device at the given baud rate.
type Opener func(device string, baud int) (Port, error)

// Config holds the configuration of a serial link.
type Config struct {
	device string
	baud   int
	opener Opener
	logger logger.Logger
}

// NewConfig creates a configuration for the port named device (e.g. /dev/ttyUSB0).
func NewConfig(device string, opts ...Option) (*Config, error) {
	if device == "" {
		return nil, errors.New("serial: device must not be empty")
	}

	cfg := &Config{
		device: device,
		baud:   DefaultBaudRate,
		opener: OpenPort,
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// OpenPort opens a serial port with 8N1 framing. It is the default Opener.
func OpenPort(device string, baud int) (Port, error) {
	p, err := bugst.Open(device, &bugst.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Device returns the port name.
func (cfg *Config) Device() string { return cfg.device }

// BaudRate returns the configured baud rate.
func (cfg *Config) BaudRate() int { return cfg.baud }

// Option is a functional option for configuring a serial link.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the baud rate.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if baud <= 0 {
			return errors.New("serial: baud rate must be positive")
		}
		cfg.baud = baud

		return nil
	})
}

// WithOpener replaces the function that opens the port.
func WithOpener(open Opener) Option {
	return optFunc(func(cfg *Config) error {
		if open == nil {
			return errors.New("serial: opener must not be nil")
		}
		cfg.opener = open

		return nil
	})
}

// WithLogger sets the logger of the link.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("serial: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
