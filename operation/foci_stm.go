package operation

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/segment"
)

const (
	fociSTMHeadSize   = 24
	fociSTMSubseqSize = 4
	fociSTMFocusSize  = 8

	// FociSTMFixedNumUnit is the length of one fixed-point unit, in mm.
	FociSTMFixedNumUnit float32 = 0.025
	// FociSTMFixedNumWidth is the bit width of each coordinate.
	FociSTMFixedNumWidth = 18

	fociSTMFixedNumUpper = 1<<(FociSTMFixedNumWidth-1) - 1
	fociSTMFixedNumLower = -(1 << (FociSTMFixedNumWidth - 1))
	fociSTMFixedNumMask  = 1<<FociSTMFixedNumWidth - 1
)

// Focus is one focal point of a FociSTM step, in global coordinates.
type Focus struct {
	Pos geometry.Point3
	// Offset is the phase offset of this focus relative to the first focus of the step.
	// The first focus carries the step intensity instead.
	Offset uint8
}

// ControlPoints is one FociSTM step.
type ControlPoints struct {
	Foci      []Focus
	Intensity uint8
}

// FociSTM streams a sequence of multi-focus steps into an STM bank.
//
// Head layout: [tag][flag][send_num][segment][transition_mode][num_foci][sound_speed u16]
// [freq_div u16][rep u16][pad x4][transition_value u64]. Subseq layout:
// [tag][flag][send_num][segment]. Each focus is an 8-byte little-endian bitfield.
type FociSTM struct {
	points     []ControlPoints
	numFoci    int
	config     firmware.SamplingConfig
	loop       firmware.LoopBehavior
	segment    firmware.Segment
	transition firmware.TransitionMode
	sent       int
}

// NewFociSTM creates a FociSTM operation. Every step must have numFoci foci.
func NewFociSTM(points []ControlPoints, numFoci int, config firmware.SamplingConfig, loop firmware.LoopBehavior,
	seg firmware.Segment, transition firmware.TransitionMode,
) *FociSTM {
	return &FociSTM{
		points:     points,
		numFoci:    numFoci,
		config:     config,
		loop:       loop,
		segment:    seg,
		transition: transition,
	}
}

func (o *FociSTM) RequiredSize(*geometry.Device) int {
	if o.sent == 0 {
		return fociSTMHeadSize + fociSTMFocusSize*o.numFoci
	}

	return fociSTMSubseqSize + fociSTMFocusSize*o.numFoci
}

func (o *FociSTM) IsDone() bool { return o.sent == len(o.points) }

// Sent returns the number of steps written so far.
func (o *FociSTM) Sent() int { return o.sent }

func (o *FociSTM) Pack(dev *geometry.Device, buf []byte) (int, error) {
	if o.IsDone() {
		return 0, ErrAlreadyDone
	}
	if len(buf) < o.RequiredSize(dev) {
		return 0, ErrBufferTooSmall
	}

	isFirst := o.sent == 0
	hdr := fociSTMSubseqSize
	if isFirst {
		hdr = fociSTMHeadSize
	}
	stepSize := fociSTMFocusSize * o.numFoci
	sendNum := min(len(o.points)-o.sent, (len(buf)-hdr)/stepSize, math.MaxUint8)

	encoded := make([]uint64, 0, sendNum*o.numFoci)
	for _, cp := range o.points[o.sent : o.sent+sendNum] {
		for j, f := range cp.Foci {
			value := f.Offset
			if j == 0 {
				value = cp.Intensity
			}
			bits, err := encodeFocus(dev, f.Pos, value)
			if err != nil {
				return 0, err
			}
			encoded = append(encoded, bits)
		}
	}

	isLast := o.sent+sendNum == len(o.points)
	flag := uint8(0)
	if isFirst {
		flag |= firmware.FlagBegin
	}
	if isLast {
		flag |= firmware.FlagEnd
		if !o.transition.IsLater() {
			flag |= firmware.FlagTransition
		}
	}

	buf[0] = firmware.TagFociSTM
	buf[1] = flag
	buf[2] = uint8(sendNum) //nolint:gosec // bounded by MaxUint8
	buf[3] = uint8(o.segment)
	if isFirst {
		buf[4] = o.transition.Mode()
		buf[5] = uint8(o.numFoci) //nolint:gosec // validated at build time
		binary.LittleEndian.PutUint16(buf[6:8], soundSpeedField(dev.SoundSpeed()))
		binary.LittleEndian.PutUint16(buf[8:10], o.config.FreqDiv)
		binary.LittleEndian.PutUint16(buf[10:12], o.loop.Rep())
		clear(buf[12:16])
		binary.LittleEndian.PutUint64(buf[16:24], o.transition.Value())
	}
	for i, bits := range encoded {
		binary.LittleEndian.PutUint64(buf[hdr+fociSTMFocusSize*i:], bits)
	}
	o.sent += sendNum

	return hdr + len(encoded)*fociSTMFocusSize, nil
}

// SegmentEffect reports the STM write once the last chunk is packed.
func (o *FociSTM) SegmentEffect() (segment.Effect, bool) {
	return segment.Effect{
		Kind:       segment.EffectWrite,
		Mode:       segment.ModeFociSTM,
		Segment:    o.segment,
		Loop:       o.loop,
		Transition: o.transition,
	}, o.IsDone()
}

// soundSpeedField encodes a sound speed in mm/s as m/s with six fractional bits.
func soundSpeedField(mmPerSec float32) uint16 {
	v := math.Round(float64(mmPerSec) / 1000 * 64)

	return uint16(min(max(v, 0), math.MaxUint16))
}

func toFixed(v float32) (int32, bool) {
	f := math.Round(float64(v / FociSTMFixedNumUnit))
	if f < fociSTMFixedNumLower || f > fociSTMFixedNumUpper {
		return 0, false
	}

	return int32(f), true
}

// encodeFocus packs a focus into x[0:18] y[18:36] z[36:54] value[54:62].
func encodeFocus(dev *geometry.Device, pos geometry.Point3, value uint8) (uint64, error) {
	local := dev.ToLocal(pos)
	x, okX := toFixed(local.X)
	y, okY := toFixed(local.Y)
	z, okZ := toFixed(local.Z)
	if !okX || !okY || !okZ {
		return 0, fmt.Errorf("%w: (%g, %g, %g) on device %d", ErrFociSTMPointOutOfRange, local.X, local.Y, local.Z, dev.Idx())
	}

	bits := uint64(uint32(x) & fociSTMFixedNumMask)
	bits |= uint64(uint32(y)&fociSTMFixedNumMask) << 18
	bits |= uint64(uint32(z)&fociSTMFixedNumMask) << 36
	bits |= uint64(value) << 54

	return bits, nil
}

// DecodeFocus unpacks a focus bitfield into local coordinates (mm) and its value byte.
func DecodeFocus(bits uint64) (geometry.Point3, uint8) {
	signExtend := func(v uint64) float32 {
		n := int32(v & fociSTMFixedNumMask) //nolint:gosec // masked to 18 bits
		if n&(1<<(FociSTMFixedNumWidth-1)) != 0 {
			n -= 1 << FociSTMFixedNumWidth
		}
		return float32(n) * FociSTMFixedNumUnit
	}

	return geometry.Point3{
		X: signExtend(bits),
		Y: signExtend(bits >> 18),
		Z: signExtend(bits >> 36),
	}, uint8(bits >> 54) //nolint:gosec // 8-bit field
}
