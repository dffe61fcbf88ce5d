package emulator

import (
	"errors"
	"time"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/logger"
)

// Default emulated firmware identity.
const (
	DefaultCPUMinor      uint8 = 0x00
	DefaultFPGAFunctions uint8 = firmware.FPGAFunctionEmulator
)

// Config holds the configuration of an Emulator.
type Config struct {
	version   firmware.Version
	cpuMinor  uint8
	functions uint8
	now       func() uint64
	logger    logger.Logger
}

// NewConfig creates an emulator configuration emulating the latest firmware.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		version:   firmware.Latest,
		cpuMinor:  DefaultCPUMinor,
		functions: DefaultFPGAFunctions,
		now:       func() uint64 { return firmware.DCSysTime(time.Now()) },
		logger:    logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Version returns the emulated firmware generation.
func (cfg *Config) Version() firmware.Version { return cfg.version }

// Option is a functional option for configuring an Emulator.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithVersion sets the emulated firmware generation.
func WithVersion(v firmware.Version) Option {
	return optFunc(func(cfg *Config) error {
		if !v.Valid() {
			return firmware.ErrUnsupportedFirmware
		}
		cfg.version = v

		return nil
	})
}

// WithCPUMinor sets the minor version byte reported by FirmwareInfo.
func WithCPUMinor(minor uint8) Option {
	return optFunc(func(cfg *Config) error {
		cfg.cpuMinor = minor
		return nil
	})
}

// WithClock sets the device clock, in nanoseconds since firmware.DCEpoch.
func WithClock(now func() uint64) Option {
	return optFunc(func(cfg *Config) error {
		if now == nil {
			return errors.New("emulator: clock must not be nil")
		}
		cfg.now = now

		return nil
	})
}

// WithLogger sets the logger of the emulator.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("emulator: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
