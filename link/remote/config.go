package remote

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arloliu/go-autd/logger"
)

// DefaultTimeout bounds every request whose context carries no deadline.
const DefaultTimeout = 5 * time.Second

// Config holds the configuration of a remote link.
type Config struct {
	url     string
	timeout time.Duration
	header  http.Header
	dialer  *websocket.Dialer
	logger  logger.Logger
}

// NewConfig creates a configuration for a link connecting to url (ws:// or wss://).
func NewConfig(url string, opts ...Option) (*Config, error) {
	if url == "" {
		return nil, errors.New("remote: url must not be empty")
	}

	cfg := &Config{
		url:     url,
		timeout: DefaultTimeout,
		dialer:  websocket.DefaultDialer,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// URL returns the server URL.
func (cfg *Config) URL() string { return cfg.url }

// Timeout returns the request timeout.
func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

// Option is a functional option for configuring a remote link.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithTimeout sets the timeout of requests whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("remote: timeout must be positive")
		}
		cfg.timeout = d

		return nil
	})
}

// WithHeader sets extra HTTP headers sent with the WebSocket handshake.
func WithHeader(h http.Header) Option {
	return optFunc(func(cfg *Config) error {
		cfg.header = h
		return nil
	})
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return optFunc(func(cfg *Config) error {
		if d == nil {
			return errors.New("remote: dialer must not be nil")
		}
		cfg.dialer = d

		return nil
	})
}

// WithLogger sets the logger of the link.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("remote: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
