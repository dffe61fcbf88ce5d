package udp

import (
	"errors"
	"time"

	"github.com/arloliu/go-autd/logger"
)

// Default values of a UDP link.
const (
	// DefaultDialTimeout bounds Open when the context carries no deadline.
	DefaultDialTimeout = 3 * time.Second
	// DefaultReadBufferSize is the socket receive buffer requested on Open.
	DefaultReadBufferSize = 1 << 16
)

// Config holds the configuration of a UDP link.
type Config struct {
	address        string
	localAddress   string
	dialTimeout    time.Duration
	readBufferSize int
	logger         logger.Logger
}

// NewConfig creates a configuration for a link sending to address ("host:port").
func NewConfig(address string, opts ...Option) (*Config, error) {
	if address == "" {
		return nil, errors.New("udp: address must not be empty")
	}

	cfg := &Config{
		address:        address,
		dialTimeout:    DefaultDialTimeout,
		readBufferSize: DefaultReadBufferSize,
		logger:         logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Address returns the remote address of the devices.
func (cfg *Config) Address() string { return cfg.address }

// Option is a functional option for configuring a UDP link.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithLocalAddress binds the link to a local address instead of an ephemeral port.
func WithLocalAddress(addr string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.localAddress = addr
		return nil
	})
}

// WithDialTimeout sets the timeout of Open.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("udp: dial timeout must be positive")
		}
		cfg.dialTimeout = d

		return nil
	})
}

// WithReadBufferSize sets the socket receive buffer size.
func WithReadBufferSize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size <= 0 {
			return errors.New("udp: read buffer size must be positive")
		}
		cfg.readBufferSize = size

		return nil
	})
}

// WithLogger sets the logger of the link.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("udp: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
