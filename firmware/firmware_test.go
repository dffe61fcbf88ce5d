package firmware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionFromCPUMajor(t *testing.T) {
	tests := []struct {
		major uint8
		want  Version
	}{
		{0xA2, V10},
		{0xA3, V11},
		{0xA4, V12},
		{0xA5, V12_1},
	}
	for _, tt := range tests {
		v, err := VersionFromCPUMajor(tt.major)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v)
		assert.Equal(t, tt.major, v.CPUMajor())
	}

	_, err := VersionFromCPUMajor(0xA1)
	require.ErrorIs(t, err, ErrUnsupportedFirmware)
}

func TestVersion_Features(t *testing.T) {
	assert.False(t, V10.SupportsTransition(GPIO(GPIOIn0)))
	assert.True(t, V11.SupportsTransition(GPIO(GPIOIn0)))
	assert.True(t, V10.SupportsTransition(SysTime(1)))
	require.ErrorIs(t, V10.CheckTransition(GPIO(GPIOIn1)), ErrUnsupportedTransitionMode)

	assert.False(t, V12.SupportsOutputMask())
	assert.True(t, V12_1.SupportsOutputMask())

	assert.Equal(t, 32768, V11.Limits().ModBufSizeMax)
	assert.Equal(t, 65536, V12.Limits().ModBufSizeMax)
	assert.Equal(t, 8192, V10.Limits().FociSTMBufSizeMax)
	assert.Equal(t, 256, V10.UltrasoundPeriod())
	assert.Equal(t, 512, V12.UltrasoundPeriod())
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("v12.1")
	require.NoError(t, err)
	assert.Equal(t, V12_1, v)
	assert.Equal(t, "v12.1", v.String())

	_, err = ParseVersion("v9")
	require.ErrorIs(t, err, ErrUnsupportedFirmware)
}

func TestNewError(t *testing.T) {
	tests := []struct {
		code uint8
		want error
	}{
		{0x01, ErrNotSupportedTag},
		{0x02, ErrInvalidMessageID},
		{0x03, ErrInvalidInfoType},
		{0x04, ErrInvalidGainSTMMode},
		{0x05, ErrInvalidSegmentTransition},
		{0x06, ErrMissTransitionTime},
		{0x07, ErrInvalidSilencerSettings},
		{0x08, ErrInvalidTransitionMode},
		{0x7F, ErrUnknownFirmwareError},
		{0x00, ErrUnknownFirmwareError},
	}
	for _, tt := range tests {
		err := NewError(2, tt.code)
		require.ErrorIs(t, err, tt.want)
		assert.Equal(t, 2, err.Device)

		var fwErr *Error
		require.True(t, errors.As(error(err), &fwErr))
		assert.Equal(t, tt.code, fwErr.Code)
	}

	code, ok := CodeOf(ErrMissTransitionTime)
	assert.True(t, ok)
	assert.Equal(t, CodeMissTransitionTime, code)
}

func TestTransitionFromWire(t *testing.T) {
	m, ok := TransitionFromWire(0x01, 1234)
	require.True(t, ok)
	assert.Equal(t, SysTime(1234), m)

	m, ok = TransitionFromWire(0xFF, 99)
	require.True(t, ok)
	assert.Equal(t, Immediate(), m)

	_, ok = TransitionFromWire(0x02, 7)
	assert.False(t, ok)

	_, ok = TransitionFromWire(0x33, 0)
	assert.False(t, ok)
}

func TestInfo_String(t *testing.T) {
	info := Info{Idx: 0, CPUMajor: 0xA4, CPUMinor: 0x23, FPGAMajor: 0xA4, FPGAMinor: 0x23, FPGAFunctions: FPGAFunctionEmulator}
	assert.Equal(t, "0: CPU = v12.2.3, FPGA = v12.2.3 [Emulator]", info.String())

	v, err := info.Version()
	require.NoError(t, err)
	assert.Equal(t, V12, v)
}

func TestPhaseFromRad(t *testing.T) {
	assert.Equal(t, uint8(0), PhaseFromRad(0))
	assert.Equal(t, uint8(128), PhaseFromRad(3.141592653589793))
	assert.Equal(t, uint8(0), PhaseFromRad(2*3.141592653589793))
	assert.Equal(t, uint8(192), PhaseFromRad(-3.141592653589793/2))
}

func TestSamplingConfig(t *testing.T) {
	assert.InDelta(t, 4000.0, Freq4K.Freq(), 1e-9)
	assert.Equal(t, uint16(40), FreqNearest(1000).FreqDiv)
	assert.Zero(t, SamplingConfig{}.Freq())
	assert.True(t, Infinite().IsInfinite())
	assert.Equal(t, uint16(2), Finite(3).Rep())
}

func TestGPIOOutput_Encode(t *testing.T) {
	out := GPIOOutput{Type: GPIOOutputSysTimeGe, Value: 0xFFFF_0000_0000_0001}
	word := out.Encode()
	assert.Equal(t, uint64(0x61FF_0000_0000_0001), word)
	assert.Equal(t, GPIOOutput{Type: GPIOOutputSysTimeGe, Value: 0x00FF_0000_0000_0001}, DecodeGPIOOutput(word))
}

func TestCPUGPIOPort_Encode(t *testing.T) {
	for _, p := range []CPUGPIOPort{{}, {PA5: true}, {PA7: true}, {PA5: true, PA7: true}} {
		assert.Equal(t, p, DecodeCPUGPIOPort(p.Encode()))
	}
	assert.Equal(t, uint8(0x20), CPUGPIOPort{PA5: true}.Encode())
}

func TestVersion_SupportsGPIOOutput(t *testing.T) {
	assert.False(t, V11.SupportsGPIOOutput(GPIOOutputSyncDiff))
	assert.True(t, V12.SupportsGPIOOutput(GPIOOutputSyncDiff))
	assert.True(t, V10.SupportsGPIOOutput(GPIOOutputPwmOut))
}
