package controller

import (
	"errors"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/logger"
	"github.com/arloliu/go-autd/sender"
)

// Config holds the settings of a Controller.
type Config struct {
	senderOpts []sender.Option
	// version, when set, skips firmware version detection.
	version firmware.Version
	// initialize sends InitializeDevices on Open.
	initialize bool
	logger     logger.Logger
}

// NewConfig creates a controller configuration with default values and applies opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		initialize: true,
		logger:     logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// FirmwareVersion returns the forced firmware generation, if any.
func (cfg *Config) FirmwareVersion() (firmware.Version, bool) {
	return cfg.version, cfg.version.Valid()
}

// Initialize reports whether Open initializes the devices.
func (cfg *Config) Initialize() bool { return cfg.initialize }

// Option is a functional option for configuring a Controller.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithSenderOptions passes options to the sender of the controller.
func WithSenderOptions(opts ...sender.Option) Option {
	return optFunc(func(cfg *Config) error {
		cfg.senderOpts = append(cfg.senderOpts, opts...)
		return nil
	})
}

// WithFirmwareVersion builds datagrams for v instead of querying the devices.
func WithFirmwareVersion(v firmware.Version) Option {
	return optFunc(func(cfg *Config) error {
		if !v.Valid() {
			return firmware.ErrUnsupportedFirmware
		}
		cfg.version = v

		return nil
	})
}

// WithoutInitialize skips clearing and synchronizing the devices on Open.
func WithoutInitialize() Option {
	return optFunc(func(cfg *Config) error {
		cfg.initialize = false
		return nil
	})
}

// WithLogger sets the logger of the controller. Its sender logs through the
// same logger unless a sender option overrides it.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("controller: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
