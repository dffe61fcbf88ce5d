package operation

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/segment"
)

func TestSingleFrameOperations_DoneAfterOnePack(t *testing.T) {
	geo := newTestGeometry(t, 1, 10)
	dev := geo.Device(0)

	ops := map[string]Operation{
		"clear":            NewClear(),
		"sync":             NewSynchronize(),
		"firmware info":    NewFirmwareInfo(firmware.InfoCPUMajor),
		"force fan":        NewForceFan(true),
		"reads fpga state": NewReadsFPGAState(true),
		"silencer":         NewSilencer(false, true, 10, 40),
		"gain":             NewGain(firmware.S0, firmware.Immediate(), makeDrives(10, 0)),
		"swap modulation":  NewSwapSegment(segment.ModeModulation, firmware.S1, firmware.SyncIdx()),
		"swap gain":        NewSwapSegment(segment.ModeGain, firmware.S1, firmware.Immediate()),
		"phase correction": NewPhaseCorrection(make([]uint8, 10)),
		"output mask":      NewOutputMask(firmware.S0, make([]bool, 10)),
		"emulate gpio in":  NewEmulateGPIOIn([firmware.NumGPIO]bool{}),
		"gpio outputs":     NewGPIOOutputs([firmware.NumGPIO]firmware.GPIOOutput{}),
		"cpu gpio outputs": NewCPUGPIOOutputs(firmware.CPUGPIOPort{}),
		"pulse width":      NewPulseWidthEncoder(make([]uint16, PulseWidthTableSize), true),
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, link.PayloadSize)
			assert.False(t, op.IsDone())

			n, err := op.Pack(dev, buf)
			require.NoError(t, err)
			assert.Equal(t, op.RequiredSize(dev), n)
			assert.Zero(t, n%2, "blocks are 2-byte aligned")
			assert.True(t, op.IsDone())

			_, err = op.Pack(dev, buf)
			require.ErrorIs(t, err, ErrAlreadyDone)
		})
	}
}

func TestNop(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	var op Nop

	assert.Zero(t, op.RequiredSize(geo.Device(0)))
	assert.True(t, op.IsDone())
	n, err := op.Pack(geo.Device(0), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGain_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 3)
	dev := geo.Device(0)
	buf := make([]byte, 16)

	op := NewGain(firmware.S1, firmware.Immediate(), []firmware.Drive{{Phase: 1, Intensity: 2}, {Phase: 3, Intensity: 4}, {Phase: 5, Intensity: 6}})
	n, err := op.Pack(dev, buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte{firmware.TagGain, 1, firmware.FlagGainUpdate, 0, 1, 2, 3, 4, 5, 6}, buf[:n])

	later := NewGain(firmware.S0, firmware.Later(), []firmware.Drive{{}, {}, {}})
	_, err = later.Pack(dev, buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0), buf[2])

	eff, done := later.SegmentEffect()
	assert.True(t, done)
	assert.Equal(t, segment.ModeGain, eff.Mode)
}

func TestGain_TransducerCountMismatch(t *testing.T) {
	geo := newTestGeometry(t, 1, 3)
	buf := make([]byte, 16)

	op := NewGain(firmware.S0, firmware.Immediate(), []firmware.Drive{{}, {}})
	_, err := op.Pack(geo.Device(0), buf)
	require.ErrorIs(t, err, ErrGainTransducerCountMismatch)
	assert.False(t, op.IsDone())
	assert.Equal(t, make([]byte, 16), buf, "nothing is written on error")
}

func TestSilencer_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	buf := make([]byte, 8)

	_, err := NewSilencer(true, true, 0x0102, 0x0304).Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{firmware.TagSilencer, 0x03, 0x02, 0x01, 0x04, 0x03}, buf[:6])
}

func TestSwapSegment_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	buf := make([]byte, 16)

	op := NewSwapSegment(segment.ModeFociSTM, firmware.S1, firmware.SysTime(0x0102030405060708))
	n, err := op.Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, firmware.TagFociSTMSwapSegment, buf[0])
	assert.Equal(t, byte(1), buf[1])
	assert.Equal(t, uint8(firmware.TransitionSysTime), buf[2])
	assert.Equal(t, uint64(0x0102030405060708), binary.LittleEndian.Uint64(buf[8:16]))

	gain := NewSwapSegment(segment.ModeGain, firmware.S0, firmware.Immediate())
	n, err = gain.Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{firmware.TagGainSwapSegment, 0}, buf[:2])
}

func TestOutputMask_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 10)
	buf := make([]byte, 8)
	mask := []bool{true, false, false, false, false, false, false, false, true, true}

	n, err := NewOutputMask(firmware.S1, mask).Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{firmware.TagOutputMask, 1, 0x01, 0x03}, buf[:4])
}

func TestPhaseCorrection_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 3)
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	n, err := NewPhaseCorrection([]uint8{7, 8, 9}).Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{firmware.TagPhaseCorrection, 0, 7, 8, 9, 0}, buf[:6])
}

func TestEmulateGPIOIn_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	op := NewEmulateGPIOIn([firmware.NumGPIO]bool{true, false, true, true})
	buf := make([]byte, link.PayloadSize)

	n, err := op.Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, firmware.TagEmulateGPIOIn, buf[0])
	assert.Equal(t, byte(0b1101), buf[1])
}

func TestCPUGPIOOutputs_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	buf := make([]byte, link.PayloadSize)

	_, err := NewCPUGPIOOutputs(firmware.CPUGPIOPort{PA5: true, PA7: true}).Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, firmware.TagCPUGPIOOutputs, buf[0])
	assert.Equal(t, byte(0xA0), buf[1])

	_, err = NewCPUGPIOOutputs(firmware.CPUGPIOPort{PA7: true}).Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0x80), buf[1])
}

func TestGPIOOutputs_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	outs := [firmware.NumGPIO]firmware.GPIOOutput{
		{Type: firmware.GPIOOutputBaseSignal},
		{Type: firmware.GPIOOutputSysTimeEq, Value: 0x0123_4567_89AB_CDEF},
		{Type: firmware.GPIOOutputPwmOut, Value: 7},
		{},
	}
	buf := make([]byte, link.PayloadSize)
	for i := range buf {
		buf[i] = 0xFF
	}

	n, err := NewGPIOOutputs(outs).Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, firmware.TagGPIOOutputs, buf[0])
	assert.Equal(t, make([]byte, 7), buf[1:8])
	assert.Equal(t, uint64(0x01)<<56, binary.LittleEndian.Uint64(buf[8:]))
	assert.Equal(t, uint64(0x60)<<56|0x0023_4567_89AB_CDEF, binary.LittleEndian.Uint64(buf[16:]), "value is cut to 56 bits")
	assert.Equal(t, uint64(0xE0)<<56|7, binary.LittleEndian.Uint64(buf[24:]))
	assert.Zero(t, binary.LittleEndian.Uint64(buf[32:]))
}
