package operation

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
)

// expectedModulationPacks is ceil over the per-frame capacities: the head frame
// carries at most 254 samples, continuation frames PayloadSize-4.
func expectedModulationPacks(n int) int {
	if n <= modulationHeadMaxSamples {
		return 1
	}
	rest := n - modulationHeadMaxSamples
	per := link.PayloadSize - modulationSubseqSize

	return 1 + (rest+per-1)/per
}

func TestModulation_Reconstruct(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	dev := geo.Device(0)

	for _, n := range []int{2, 253, 254, 255, 872, 873, 2000, 32768} {
		samples := makeSamples(n)
		op := NewModulation(samples, firmware.Freq4K, firmware.Infinite(), firmware.S1, firmware.Immediate())

		var got []uint8
		packs := 0
		for !op.IsDone() {
			buf := make([]byte, link.PayloadSize)
			_, err := op.Pack(dev, buf)
			require.NoError(t, err)

			flag := buf[1]
			if packs == 0 {
				require.NotZero(t, flag&firmware.FlagBegin)
				size := int(buf[2])
				assert.Equal(t, uint8(firmware.TransitionImmediate), buf[3])
				assert.Equal(t, uint16(10), binary.LittleEndian.Uint16(buf[4:6]))
				assert.Equal(t, uint16(0xFFFF), binary.LittleEndian.Uint16(buf[6:8]))
				got = append(got, buf[modulationHeadSize:modulationHeadSize+size]...)
			} else {
				require.Zero(t, flag&firmware.FlagBegin)
				size := int(binary.LittleEndian.Uint16(buf[2:4]))
				got = append(got, buf[modulationSubseqSize:modulationSubseqSize+size]...)
			}
			assert.NotZero(t, flag&firmware.FlagSegment)
			packs++

			if op.IsDone() {
				assert.NotZero(t, flag&firmware.FlagEnd)
				assert.NotZero(t, flag&firmware.FlagTransition)
			} else {
				assert.Zero(t, flag&firmware.FlagEnd)
			}
		}

		assert.Equal(t, expectedModulationPacks(n), packs, "samples=%d", n)
		assert.Equal(t, samples, got, "samples=%d", n)
	}
}

func TestModulation_LaterHasNoTransitionFlag(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	op := NewModulation(makeSamples(4), firmware.Freq4K, firmware.Infinite(), firmware.S0, firmware.Later())

	buf := make([]byte, link.PayloadSize)
	n, err := op.Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, modulationHeadSize+4, n)
	assert.Equal(t, firmware.FlagBegin|firmware.FlagEnd, buf[1])
	assert.Equal(t, uint8(firmware.TransitionLater), buf[3])
}

func TestModulation_OddSizeIsPadded(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	op := NewModulation(makeSamples(3), firmware.Freq4K, firmware.Infinite(), firmware.S0, firmware.Immediate())

	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := op.Pack(geo.Device(0), buf)
	require.NoError(t, err)
	assert.Equal(t, modulationHeadSize+4, n)
	assert.Equal(t, byte(0), buf[modulationHeadSize+3])
}

func TestModulation_ProgressOnlyAdvancesOnPack(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	op := NewModulation(makeSamples(1000), firmware.Freq4K, firmware.Infinite(), firmware.S0, firmware.Immediate())

	_, err := op.Pack(geo.Device(0), make([]byte, link.PayloadSize))
	require.NoError(t, err)
	sent := op.Sent()

	// observing state is free of side effects
	_ = op.RequiredSize(geo.Device(0))
	_ = op.IsDone()
	_, _ = op.SegmentEffect()
	assert.Equal(t, sent, op.Sent())
}

func TestFociSTM_Reconstruct(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	dev := geo.Device(0)

	const numPoints = 300
	const numFoci = 2
	points := make([]ControlPoints, numPoints)
	for i := range points {
		points[i] = ControlPoints{
			Intensity: uint8(i),
			Foci: []Focus{
				{Pos: geometry.Point3{X: float32(i) * 0.5, Y: -10, Z: 150}},
				{Pos: geometry.Point3{X: -float32(i) * 0.25, Y: 20, Z: 100}, Offset: 0x80},
			},
		}
	}

	op := NewFociSTM(points, numFoci, firmware.SamplingConfig{FreqDiv: 40}, firmware.Infinite(), firmware.S0, firmware.SyncIdx())

	var decoded []ControlPoints
	packs := 0
	for !op.IsDone() {
		buf := make([]byte, link.PayloadSize)
		n, err := op.Pack(dev, buf)
		require.NoError(t, err)

		hdr := fociSTMSubseqSize
		if packs == 0 {
			hdr = fociSTMHeadSize
			assert.Equal(t, byte(numFoci), buf[5])
			assert.Equal(t, uint16(21760), binary.LittleEndian.Uint16(buf[6:8]))
			assert.Equal(t, uint16(40), binary.LittleEndian.Uint16(buf[8:10]))
		}
		sendNum := int(buf[2])
		assert.Equal(t, hdr+sendNum*numFoci*fociSTMFocusSize, n)

		for s := 0; s < sendNum; s++ {
			var cp ControlPoints
			for f := 0; f < numFoci; f++ {
				off := hdr + (s*numFoci+f)*fociSTMFocusSize
				pos, value := DecodeFocus(binary.LittleEndian.Uint64(buf[off:]))
				if f == 0 {
					cp.Intensity = value
				}
				cp.Foci = append(cp.Foci, Focus{Pos: pos, Offset: value})
			}
			decoded = append(decoded, cp)
		}
		packs++
	}

	perFirst := (link.PayloadSize - fociSTMHeadSize) / (numFoci * fociSTMFocusSize)
	perNext := (link.PayloadSize - fociSTMSubseqSize) / (numFoci * fociSTMFocusSize)
	expected := 1 + (numPoints-perFirst+perNext-1)/perNext
	assert.Equal(t, expected, packs)

	require.Len(t, decoded, numPoints)
	for i, cp := range decoded {
		assert.Equal(t, points[i].Intensity, cp.Intensity)
		assert.Equal(t, uint8(0x80), cp.Foci[1].Offset)
		for f := range cp.Foci {
			assert.InDelta(t, points[i].Foci[f].Pos.X, cp.Foci[f].Pos.X, 0.0125)
			assert.InDelta(t, points[i].Foci[f].Pos.Y, cp.Foci[f].Pos.Y, 0.0125)
			assert.InDelta(t, points[i].Foci[f].Pos.Z, cp.Foci[f].Pos.Z, 0.0125)
		}
	}
}

func TestFociSTM_PointOutOfRange(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	points := []ControlPoints{
		{Foci: []Focus{{Pos: geometry.Point3{Z: 100}}}},
		{Foci: []Focus{{Pos: geometry.Point3{X: 4000}}}},
	}
	op := NewFociSTM(points, 1, firmware.Freq4K, firmware.Infinite(), firmware.S0, firmware.Immediate())

	buf := make([]byte, link.PayloadSize)
	_, err := op.Pack(geo.Device(0), buf)
	require.ErrorIs(t, err, ErrFociSTMPointOutOfRange)
	assert.Equal(t, make([]byte, link.PayloadSize), buf, "nothing is written on error")
	assert.Zero(t, op.Sent())
}

func TestGainSTM_Modes(t *testing.T) {
	geo := newTestGeometry(t, 1, 4)
	dev := geo.Device(0)
	patterns := [][]firmware.Drive{
		makeDrives(4, 0x10),
		makeDrives(4, 0x20),
		makeDrives(4, 0x30),
		makeDrives(4, 0x40),
		makeDrives(4, 0x50),
	}

	tests := []struct {
		mode  firmware.GainSTMMode
		packs int
	}{
		{firmware.GainSTMPhaseIntensityFull, 5},
		{firmware.GainSTMPhaseFull, 3},
		{firmware.GainSTMPhaseHalf, 2},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			op := NewGainSTM(patterns, tt.mode, firmware.Freq4K, firmware.Infinite(), firmware.S1, firmware.Immediate())

			var frames [][]byte
			for !op.IsDone() {
				buf := make([]byte, link.PayloadSize)
				n, err := op.Pack(dev, buf)
				require.NoError(t, err)
				hdr := gainSTMSubseqSize
				if len(frames) == 0 {
					hdr = gainSTMHeadSize
				}
				assert.Equal(t, hdr+2*dev.NumTransducers(), n)
				frames = append(frames, buf)
			}
			require.Len(t, frames, tt.packs)

			head := frames[0]
			assert.Equal(t, firmware.TagGainSTM, head[0])
			assert.Equal(t, uint8(tt.mode), head[2])
			assert.Equal(t, byte(1), head[16])

			switch tt.mode {
			case firmware.GainSTMPhaseIntensityFull:
				assert.Equal(t, patterns[0][2].Phase, head[gainSTMHeadSize+4])
				assert.Equal(t, patterns[0][2].Intensity, head[gainSTMHeadSize+5])
				assert.Equal(t, patterns[4][0].Phase, frames[4][gainSTMSubseqSize])
			case firmware.GainSTMPhaseFull:
				assert.Equal(t, patterns[0][1].Phase, head[gainSTMHeadSize+2])
				assert.Equal(t, patterns[1][1].Phase, head[gainSTMHeadSize+3])
				assert.Equal(t, byte(1), frames[2][3], "last frame carries one pattern")
			case firmware.GainSTMPhaseHalf:
				b := head[gainSTMHeadSize]
				assert.Equal(t, patterns[0][0].Phase>>4, b&0x0F)
				assert.Equal(t, patterns[1][0].Phase>>4, b>>4)
			}

			assert.NotZero(t, frames[len(frames)-1][1]&firmware.FlagEnd)
		})
	}
}

func TestPulseWidthEncoder_Pack(t *testing.T) {
	geo := newTestGeometry(t, 1, 1)
	table := make([]uint16, PulseWidthTableSize)
	for i := range table {
		table[i] = uint16(i)
	}

	t.Run("narrow", func(t *testing.T) {
		op := NewPulseWidthEncoder(table, false)
		assert.Equal(t, 2+256, op.RequiredSize(geo.Device(0)))
		buf := make([]byte, link.PayloadSize)
		n, err := op.Pack(geo.Device(0), buf)
		require.NoError(t, err)
		assert.True(t, op.IsDone())
		assert.Equal(t, 2+256, n)
		assert.Equal(t, firmware.TagConfigPulseWidthEncoderV10, buf[0])
		assert.Zero(t, buf[1])
		assert.Equal(t, byte(200), buf[2+200])

		_, err = op.Pack(geo.Device(0), buf)
		require.ErrorIs(t, err, ErrAlreadyDone)
	})

	t.Run("wide", func(t *testing.T) {
		op := NewPulseWidthEncoder(table, true)
		assert.Equal(t, 2+512, op.RequiredSize(geo.Device(0)))
		buf := make([]byte, link.PayloadSize)
		n, err := op.Pack(geo.Device(0), buf)
		require.NoError(t, err)
		assert.Equal(t, 2+512, n)
		assert.Equal(t, firmware.TagConfigPulseWidthEncoderV11, buf[0])
		got := make([]uint16, PulseWidthTableSize)
		for i := range got {
			got[i] = binary.LittleEndian.Uint16(buf[2+2*i:])
		}
		assert.Equal(t, table, got)
	})

	t.Run("buffer too small", func(t *testing.T) {
		op := NewPulseWidthEncoder(table, true)
		_, err := op.Pack(geo.Device(0), make([]byte, 104))
		require.ErrorIs(t, err, ErrBufferTooSmall)
		assert.False(t, op.IsDone())
	})

	t.Run("short table", func(t *testing.T) {
		op := NewPulseWidthEncoder(table[:10], false)
		_, err := op.Pack(geo.Device(0), make([]byte, link.PayloadSize))
		require.ErrorIs(t, err, ErrTransducerCountMismatch)
	})
}
