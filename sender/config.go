package sender

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-autd/logger"
)

// Default sender settings.
const (
	DefaultSendInterval    = 1 * time.Millisecond
	DefaultReceiveInterval = 1 * time.Millisecond
	DefaultParallel        = ParallelAuto
	DefaultStrict          = true
	// DefaultRetransmitDivisor derives the retransmit interval from the timeout
	// of a send when no interval is set: frames are resent every timeout/4.
	DefaultRetransmitDivisor = 4
)

// Setting range limits.
const (
	MinInterval = 0
	MaxInterval = 1 * time.Second

	MinTimeout = 0
	MaxTimeout = 60 * time.Second

	MinRetransmitInterval = 1 * time.Millisecond
	MaxRetransmitInterval = 10 * time.Second
)

// Config holds the settings of a Sender.
//
// Settings may be changed at runtime through Sender.Apply; they take effect
// from the next Send.
type Config struct {
	mu sync.RWMutex

	// sendInterval is the pacing between two rounds of one send.
	sendInterval time.Duration
	// receiveInterval is the pacing between two acknowledgment polls.
	receiveInterval time.Duration

	// timeout overrides the timeout of every datagram when hasTimeout is set.
	timeout    time.Duration
	hasTimeout bool
	// parallelThreshold overrides the threshold of every datagram when hasThreshold is set.
	parallelThreshold int
	hasThreshold      bool

	parallel ParallelMode
	// strict disables the fire-and-forget behavior of a zero timeout.
	strict bool

	// retransmitInterval overrides the derived retransmit interval when
	// hasRetransmit is set. Zero disables retransmission.
	retransmitInterval time.Duration
	hasRetransmit      bool

	strategy TimerStrategy
	logger   logger.Logger
}

// NewConfig creates a sender configuration with default values and applies opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		sendInterval:    DefaultSendInterval,
		receiveInterval: DefaultReceiveInterval,
		parallel:        DefaultParallel,
		strict:          DefaultStrict,
		strategy:        FixedSchedule{Sleeper: ContextSleeper{}},
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *Config) SendInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.sendInterval
}

func (cfg *Config) ReceiveInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.receiveInterval
}

// Timeout returns the timeout override and whether one is set.
func (cfg *Config) Timeout() (time.Duration, bool) {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timeout, cfg.hasTimeout
}

// ParallelThreshold returns the threshold override and whether one is set.
func (cfg *Config) ParallelThreshold() (int, bool) {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.parallelThreshold, cfg.hasThreshold
}

func (cfg *Config) Parallel() ParallelMode {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.parallel
}

func (cfg *Config) Strict() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.strict
}

// RetransmitInterval returns the retransmit interval override and whether one is set.
func (cfg *Config) RetransmitInterval() (time.Duration, bool) {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.retransmitInterval, cfg.hasRetransmit
}

// retransmitFor returns the retransmit interval of a round with the given timeout.
// Without an override it is timeout/DefaultRetransmitDivisor, clamped to
// [MinRetransmitInterval, MaxRetransmitInterval]; a zero timeout never retransmits.
func (cfg *Config) retransmitFor(timeout time.Duration) time.Duration {
	if d, ok := cfg.RetransmitInterval(); ok {
		return d
	}
	if timeout <= 0 {
		return 0
	}

	return min(max(timeout/DefaultRetransmitDivisor, MinRetransmitInterval), MaxRetransmitInterval)
}

func (cfg *Config) TimerStrategy() TimerStrategy {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.strategy
}

func (cfg *Config) GetLogger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// Option is a functional option for configuring a Sender.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("sender: %s applied to nil config", o.name)
	}
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	return o.applyFunc(cfg)
}

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

func checkInterval(name string, d time.Duration) error {
	if d < MinInterval || d > MaxInterval {
		return fmt.Errorf("sender: %s %v out of range [%v, %v]", name, d, time.Duration(MinInterval), MaxInterval)
	}

	return nil
}

// WithSendInterval sets the pacing between two rounds of one send.
//
// The default value is 1ms.
func WithSendInterval(d time.Duration) Option {
	return newOptFunc("WithSendInterval", func(cfg *Config) error {
		if err := checkInterval("send interval", d); err != nil {
			return err
		}
		cfg.sendInterval = d

		return nil
	})
}

// WithReceiveInterval sets the pacing between two acknowledgment polls.
//
// The default value is 1ms.
func WithReceiveInterval(d time.Duration) Option {
	return newOptFunc("WithReceiveInterval", func(cfg *Config) error {
		if err := checkInterval("receive interval", d); err != nil {
			return err
		}
		cfg.receiveInterval = d

		return nil
	})
}

// WithTimeout overrides the acknowledgment timeout of every datagram.
//
// By default the timeout of the datagram is used.
func WithTimeout(d time.Duration) Option {
	return newOptFunc("WithTimeout", func(cfg *Config) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("sender: timeout %v out of range [%v, %v]", d, time.Duration(MinTimeout), MaxTimeout)
		}
		cfg.timeout = d
		cfg.hasTimeout = true

		return nil
	})
}

// WithDatagramTimeout removes a timeout override set by WithTimeout.
func WithDatagramTimeout() Option {
	return newOptFunc("WithDatagramTimeout", func(cfg *Config) error {
		cfg.timeout = 0
		cfg.hasTimeout = false

		return nil
	})
}

// WithParallelThreshold overrides the parallel threshold of every datagram.
func WithParallelThreshold(n int) Option {
	return newOptFunc("WithParallelThreshold", func(cfg *Config) error {
		if n < 0 {
			return fmt.Errorf("sender: parallel threshold %d must not be negative", n)
		}
		cfg.parallelThreshold = n
		cfg.hasThreshold = true

		return nil
	})
}

// WithParallel sets the parallel packing mode.
//
// The default value is ParallelAuto.
func WithParallel(mode ParallelMode) Option {
	return newOptFunc("WithParallel", func(cfg *Config) error {
		if !mode.valid() {
			return fmt.Errorf("sender: invalid parallel mode %d", mode)
		}
		cfg.parallel = mode

		return nil
	})
}

// WithStrict sets whether a zero timeout still requires acknowledgments.
//
// A non-strict sender returns success from a round with a zero timeout that
// was not acknowledged. The default value is true.
func WithStrict(strict bool) Option {
	return newOptFunc("WithStrict", func(cfg *Config) error {
		cfg.strict = strict

		return nil
	})
}

// WithRetransmitInterval resends the frames of an unacknowledged round, under
// the same message id, every d until the timeout expires. Devices that already
// processed the frames acknowledge them again without applying them twice.
//
// Zero disables retransmission. By default frames are resent every
// timeout/DefaultRetransmitDivisor.
func WithRetransmitInterval(d time.Duration) Option {
	return newOptFunc("WithRetransmitInterval", func(cfg *Config) error {
		if d != 0 && (d < MinRetransmitInterval || d > MaxRetransmitInterval) {
			return fmt.Errorf("sender: retransmit interval %v out of range [%v, %v]", d, MinRetransmitInterval, MaxRetransmitInterval)
		}
		cfg.retransmitInterval = d
		cfg.hasRetransmit = true

		return nil
	})
}

// WithDerivedRetransmit removes an override set by WithRetransmitInterval, so
// the interval is derived from the timeout again.
func WithDerivedRetransmit() Option {
	return newOptFunc("WithDerivedRetransmit", func(cfg *Config) error {
		cfg.retransmitInterval = 0
		cfg.hasRetransmit = false

		return nil
	})
}

// WithTimerStrategy sets how the sender paces rounds and polls.
//
// The default is FixedSchedule over a ContextSleeper.
func WithTimerStrategy(s TimerStrategy) Option {
	return newOptFunc("WithTimerStrategy", func(cfg *Config) error {
		if s == nil {
			return errors.New("sender: timer strategy must not be nil")
		}
		cfg.strategy = s

		return nil
	})
}

// WithLogger sets the logger of the sender.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("sender: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
