package datagram

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

func TestOption_Merge(t *testing.T) {
	a := Option{Timeout: 10 * time.Millisecond, ParallelThreshold: 8}
	b := Option{Timeout: 30 * time.Millisecond, ParallelThreshold: 2}

	assert.Equal(t, Option{Timeout: 30 * time.Millisecond, ParallelThreshold: 2}, a.Merge(b))
	assert.Equal(t, a.Merge(b), b.Merge(a))
	assert.Equal(t, a, identityOption().Merge(a))
	assert.Equal(t, Option{Timeout: 20 * time.Millisecond, ParallelThreshold: 4}, DefaultOption())
}

func TestPair_ErrorPosition(t *testing.T) {
	ctx := newTestContext(t, 1, 1)
	errBoom := errors.New("boom")

	tests := []struct {
		name string
		d    Datagram
		pos  PairPosition
	}{
		{"first", Pair(failing{err: errBoom}, Clear{}), First},
		{"second", Pair(Clear{}, failing{err: errBoom}), Second},
		{"both", Pair(failing{err: errBoom}, failing{err: errBoom}), First},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.d.OperationGenerator(ctx)
			var pe *PairError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.pos, pe.Position)
			require.ErrorIs(t, err, errBoom)
		})
	}
}

func TestPair_Slots(t *testing.T) {
	ctx := newTestContext(t, 2, 1)
	pairs := build(t, ctx, Pair(Clear{}, Synchronize{}))

	for _, p := range pairs {
		require.NotNil(t, p)
		assert.IsType(t, &operation.Clear{}, p.Op1)
		assert.IsType(t, &operation.Synchronize{}, p.Op2)
	}
	assert.Equal(t, HousekeepingTimeout, Pair(Clear{}, NewModulation(NewStatic())).Option().Timeout)
}

func TestGroup_Dispatch(t *testing.T) {
	ctx := newTestContext(t, 4, 1)
	keyOf := func(dev *geometry.Device) (string, bool) {
		switch dev.Idx() {
		case 0, 2:
			return "clear", true
		case 1:
			return "sync", true
		default:
			return "", false
		}
	}
	g := Group(keyOf, map[string]Datagram{"clear": Clear{}, "sync": Synchronize{}})

	pairs := build(t, ctx, g)
	assert.IsType(t, &operation.Clear{}, pairs[0].Op1)
	assert.IsType(t, &operation.Synchronize{}, pairs[1].Op1)
	assert.IsType(t, &operation.Clear{}, pairs[2].Op1)
	assert.Nil(t, pairs[3], "a device without key is excluded")
	assert.Equal(t, HousekeepingTimeout, g.Option().Timeout)
}

func TestGroup_KeyErrors(t *testing.T) {
	ctx := newTestContext(t, 2, 1)
	keyOf := func(dev *geometry.Device) (int, bool) { return dev.Idx(), true }

	_, err := Group(keyOf, map[int]Datagram{0: Clear{}}).OperationGenerator(ctx)
	require.ErrorIs(t, err, ErrUnknownKey)
	var ge *GroupError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 1, ge.Key)

	_, err = Group(keyOf, map[int]Datagram{0: Clear{}, 1: Clear{}, 7: Clear{}}).OperationGenerator(ctx)
	require.ErrorIs(t, err, ErrUnusedKey)
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 7, ge.Key)

	errBoom := errors.New("boom")
	_, err = Group(keyOf, map[int]Datagram{0: Clear{}, 1: failing{err: errBoom}}).OperationGenerator(ctx)
	require.ErrorIs(t, err, errBoom)
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 1, ge.Key)
}

func TestGroup_DisabledDeviceIsNotUnknown(t *testing.T) {
	ctx := newTestContext(t, 2, 1)
	ctx.Geometry.Device(1).Enable = false
	keyOf := func(dev *geometry.Device) (int, bool) { return dev.Idx(), true }

	pairs := build(t, ctx, Group(keyOf, map[int]Datagram{0: Clear{}}))
	assert.NotNil(t, pairs[0])
	assert.Nil(t, pairs[1])
}

func TestGroup_OptionFold(t *testing.T) {
	keyOf := func(dev *geometry.Device) (int, bool) { return dev.Idx(), true }
	g := Group(keyOf, map[int]Datagram{
		0: failing{opt: Option{Timeout: time.Second, ParallelThreshold: 9}},
		1: failing{opt: Option{Timeout: time.Millisecond, ParallelThreshold: 3}},
	})

	assert.Equal(t, Option{Timeout: time.Second, ParallelThreshold: 3}, g.Option())
	assert.Equal(t, Option{Timeout: 0, ParallelThreshold: math.MaxInt},
		Group(keyOf, map[int]Datagram{}).Option())
}

func TestBoxed_ConsumedOnce(t *testing.T) {
	ctx := newTestContext(t, 1, 1)
	b := Box(Clear{})
	assert.False(t, b.Consumed())

	_, err := b.OperationGenerator(ctx)
	require.NoError(t, err)
	assert.True(t, b.Consumed())

	if !debugBoxed {
		_, err = b.OperationGenerator(ctx)
		require.ErrorIs(t, err, ErrBoxedConsumed)
	} else {
		assert.Panics(t, func() { _, _ = b.OperationGenerator(ctx) })
	}
	assert.Equal(t, Clear{}.Option(), b.Option())
}

func TestDatagram_MaskExcludesDisabled(t *testing.T) {
	ctx := newTestContext(t, 3, 2)
	ctx.Geometry.Device(1).Enable = false

	pairs := build(t, ctx, NewGain(Null{}))
	assert.NotNil(t, pairs[0])
	assert.Nil(t, pairs[1])
	assert.NotNil(t, pairs[2])
}

func TestDatagram_ConstructionErrors(t *testing.T) {
	twoPoints := []geometry.Point3{{Z: 100}, {Z: 110}}

	tests := []struct {
		name    string
		version firmware.Version
		d       Datagram
		want    error
	}{
		{"modulation too short", firmware.V12, NewModulation(CustomModulation{Buffer: []uint8{1}, Config: firmware.Freq4K}), ErrModulationSizeOutOfRange},
		{"modulation too long on v10", firmware.V10, NewModulation(CustomModulation{Buffer: make([]uint8, 32769), Config: firmware.Freq4K}), ErrModulationSizeOutOfRange},
		{"modulation zero divider", firmware.V12, NewModulation(CustomModulation{Buffer: []uint8{1, 2}}), ErrSamplingFreqDivInvalid},
		{"sine above nyquist", firmware.V12, NewModulation(NewSine(2001)), ErrModulationFreqOutOfRange},
		{"gpio on v10", firmware.V10, WithSegment(NewModulation(NewStatic()), firmware.S1, firmware.GPIO(firmware.GPIOIn0)), firmware.ErrUnsupportedTransitionMode},
		{"gain with sync idx", firmware.V12, WithSegment(NewGain(Null{}), firmware.S1, firmware.SyncIdx()), ErrInvalidGainTransition},
		{"gain swap with sys time", firmware.V12, SwapSegment{mode: segment.ModeGain, segment: firmware.S1, transition: firmware.SysTime(1)}, ErrInvalidGainTransition},
		{"swap with later", firmware.V12, SwapModulation(firmware.S1, firmware.Later()), firmware.ErrUnsupportedTransitionMode},
		{"foci stm too short", firmware.V12, NewFociSTM(firmware.Freq4K, geometry.Point3{}), ErrSTMSizeOutOfRange},
		{"foci stm zero divider", firmware.V12, NewFociSTM(firmware.SamplingConfig{}, twoPoints...), ErrSamplingFreqDivInvalid},
		{"foci stm mixed foci", firmware.V12, FociSTM{Config: firmware.Freq4K, Points: []operation.ControlPoints{
			{Foci: []operation.Focus{{}}},
			{Foci: []operation.Focus{{}, {}}},
		}}, ErrFociSTMNumFociOutOfRange},
		{"foci stm too many foci", firmware.V12, FociSTM{Config: firmware.Freq4K, Points: []operation.ControlPoints{
			{Foci: make([]operation.Focus, 9)},
			{Foci: make([]operation.Focus, 9)},
		}}, ErrFociSTMNumFociOutOfRange},
		{"gain stm too short", firmware.V12, NewGainSTM(firmware.Freq4K, Null{}), ErrSTMSizeOutOfRange},
		{"gain drive count", firmware.V12, NewGain(Custom{Table: [][]firmware.Drive{{}}}), ErrGainTransducerCountMismatch},
		{"silencer zero", firmware.V12, Silencer{Config: FixedUpdateRate{Intensity: 0, Phase: 1}}, ErrSilencerInvalidValue},
		{"output mask on v12", firmware.V12, OutputMask{Enabled: func(*geometry.Device, geometry.Transducer) bool { return true }}, firmware.ErrUnsupportedOperation},
		{"gpio sync diff on v11", firmware.V11, GPIOOutputs(func(*geometry.Device, firmware.GPIOOut) firmware.GPIOOutput {
			return firmware.GPIOOutput{Type: firmware.GPIOOutputSyncDiff}
		}), firmware.ErrUnsupportedOperation},
		{"pulse width too long", firmware.V10, PulseWidthEncoder{Table: func(uint8) uint16 { return 256 }}, ErrPulseWidthOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewBuildContext(newTestGeometry(t, 1, 2), tt.version, nil)
			_, err := tt.d.OperationGenerator(ctx)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGlitchless_TargetsInactiveSegment(t *testing.T) {
	geo := newTestGeometry(t, 2, 2)
	mirrors := []*segment.Machine{segment.New(), segment.New()}
	require.NoError(t, mirrors[1].Write(segment.ModeGain, firmware.S1, firmware.Infinite(), firmware.Immediate(), 0))
	ctx := NewBuildContext(geo, firmware.Latest, mirrors)

	pairs := build(t, ctx, Glitchless(NewGain(Uniform{Drive: firmware.Drive{Intensity: 1}}), firmware.Immediate()))
	assert.Equal(t, firmware.S1, writtenSegment(t, pairs[0].Op1))
	assert.Equal(t, firmware.S0, writtenSegment(t, pairs[1].Op1))

	pairs = build(t, ctx, Glitchless(NewModulation(NewStatic()), firmware.SyncIdx()))
	assert.Equal(t, firmware.S1, writtenSegment(t, pairs[0].Op1))
	assert.Equal(t, firmware.S1, writtenSegment(t, pairs[1].Op1))
}

func TestWithSegment_Target(t *testing.T) {
	ctx := newTestContext(t, 1, 2)
	pairs := build(t, ctx, WithLoopBehavior(NewModulation(NewStatic()), firmware.Finite(3), firmware.S1, firmware.Later()))

	e, ok := pairs[0].Op1.(segment.Effector)
	require.True(t, ok)
	eff, done := e.SegmentEffect()
	assert.False(t, done)
	assert.Equal(t, firmware.S1, eff.Segment)
	assert.Equal(t, uint16(2), eff.Loop.Rep())
	assert.True(t, eff.Transition.IsLater())
}
