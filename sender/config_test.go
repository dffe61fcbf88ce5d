package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultSendInterval, cfg.SendInterval())
	assert.Equal(t, DefaultReceiveInterval, cfg.ReceiveInterval())
	_, ok := cfg.Timeout()
	assert.False(t, ok)
	_, ok = cfg.ParallelThreshold()
	assert.False(t, ok)
	assert.Equal(t, ParallelAuto, cfg.Parallel())
	assert.True(t, cfg.Strict())
	_, ok = cfg.RetransmitInterval()
	assert.False(t, ok)
	assert.IsType(t, FixedSchedule{}, cfg.TimerStrategy())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewConfig_Options(t *testing.T) {
	cfg, err := NewConfig(
		WithSendInterval(2*time.Millisecond),
		WithReceiveInterval(0),
		WithTimeout(0),
		WithParallelThreshold(8),
		WithParallel(ParallelOff),
		WithStrict(false),
		WithRetransmitInterval(5*time.Millisecond),
		WithTimerStrategy(FixedDelay{Sleeper: StdSleeper{}}),
	)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Millisecond, cfg.SendInterval())
	assert.Zero(t, cfg.ReceiveInterval())
	timeout, ok := cfg.Timeout()
	assert.True(t, ok)
	assert.Zero(t, timeout)
	threshold, ok := cfg.ParallelThreshold()
	assert.True(t, ok)
	assert.Equal(t, 8, threshold)
	assert.Equal(t, ParallelOff, cfg.Parallel())
	assert.False(t, cfg.Strict())
	retransmit, ok := cfg.RetransmitInterval()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, retransmit)
	assert.IsType(t, FixedDelay{}, cfg.TimerStrategy())

	require.NoError(t, WithDatagramTimeout().apply(cfg))
	_, ok = cfg.Timeout()
	assert.False(t, ok)

	require.NoError(t, WithDerivedRetransmit().apply(cfg))
	_, ok = cfg.RetransmitInterval()
	assert.False(t, ok)
}

func TestConfig_RetransmitFor(t *testing.T) {
	derived, err := NewConfig()
	require.NoError(t, err)
	disabled, err := NewConfig(WithRetransmitInterval(0))
	require.NoError(t, err)
	fixed, err := NewConfig(WithRetransmitInterval(7 * time.Millisecond))
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     *Config
		timeout time.Duration
		want    time.Duration
	}{
		{"quarter of the timeout", derived, 200 * time.Millisecond, 50 * time.Millisecond},
		{"clamped to the minimum", derived, 2 * time.Millisecond, MinRetransmitInterval},
		{"clamped to the maximum", derived, MaxTimeout, MaxRetransmitInterval},
		{"zero timeout never resends", derived, 0, 0},
		{"disabled", disabled, 200 * time.Millisecond, 0},
		{"override", fixed, 200 * time.Millisecond, 7 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.retransmitFor(tt.timeout))
		})
	}
}

func TestNewConfig_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"negative send interval", WithSendInterval(-time.Millisecond)},
		{"receive interval too long", WithReceiveInterval(2 * time.Second)},
		{"timeout too long", WithTimeout(MaxTimeout + time.Second)},
		{"negative threshold", WithParallelThreshold(-1)},
		{"unknown parallel mode", WithParallel(ParallelMode(9))},
		{"retransmit too short", WithRetransmitInterval(time.Microsecond)},
		{"nil strategy", WithTimerStrategy(nil)},
		{"nil logger", WithLogger(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			require.Error(t, err)
		})
	}

	require.Error(t, WithStrict(true).apply(nil))
}

func TestParallelMode_IsParallel(t *testing.T) {
	tests := []struct {
		mode      ParallelMode
		devices   int
		threshold int
		want      bool
	}{
		{ParallelAuto, 4, 4, false},
		{ParallelAuto, 5, 4, true},
		{ParallelAuto, 100, 1 << 30, false},
		{ParallelOn, 1, 4, true},
		{ParallelOff, 100, 0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mode.IsParallel(tt.devices, tt.threshold), "%s %d/%d", tt.mode, tt.devices, tt.threshold)
	}
}

func TestParseParallelMode(t *testing.T) {
	for _, mode := range []ParallelMode{ParallelAuto, ParallelOn, ParallelOff} {
		got, ok := ParseParallelMode(mode.String())
		require.True(t, ok)
		assert.Equal(t, mode, got)
	}
	_, ok := ParseParallelMode("sometimes")
	assert.False(t, ok)
}
