package operation

import (
	"encoding/binary"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/segment"
)

const (
	modulationHeadSize   = 16
	modulationSubseqSize = 4
	// the head carries an 8-bit size field
	modulationHeadMaxSamples = 254
)

// Modulation streams an amplitude modulation buffer into a modulation bank.
//
// Head layout:   [tag][flag][size u8][transition_mode][freq_div u16][rep u16][transition_value u64]
// Subseq layout: [tag][flag][size u16]
type Modulation struct {
	samples    []uint8
	config     firmware.SamplingConfig
	loop       firmware.LoopBehavior
	segment    firmware.Segment
	transition firmware.TransitionMode
	sent       int
}

// NewModulation creates a Modulation operation. The samples are shared, not copied.
func NewModulation(samples []uint8, config firmware.SamplingConfig, loop firmware.LoopBehavior,
	seg firmware.Segment, transition firmware.TransitionMode,
) *Modulation {
	return &Modulation{
		samples:    samples,
		config:     config,
		loop:       loop,
		segment:    seg,
		transition: transition,
	}
}

func (o *Modulation) RequiredSize(*geometry.Device) int {
	if o.sent == 0 {
		return modulationHeadSize + 2
	}

	return modulationSubseqSize + 2
}

func (o *Modulation) IsDone() bool { return o.sent == len(o.samples) }

// Sent returns the number of samples written so far.
func (o *Modulation) Sent() int { return o.sent }

func (o *Modulation) Pack(dev *geometry.Device, buf []byte) (int, error) {
	if o.IsDone() {
		return 0, ErrAlreadyDone
	}
	if len(buf) < o.RequiredSize(dev) {
		return 0, ErrBufferTooSmall
	}

	isFirst := o.sent == 0
	hdr := modulationSubseqSize
	if isFirst {
		hdr = modulationHeadSize
	}
	size := min(len(o.samples)-o.sent, len(buf)-hdr)
	if isFirst {
		size = min(size, modulationHeadMaxSamples)
	}
	isLast := o.sent+size == len(o.samples)

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
	if o.segment == firmware.S1 {
		flag |= firmware.FlagSegment
	}

	buf[0] = firmware.TagModulation
	buf[1] = flag
	if isFirst {
		buf[2] = uint8(size) //nolint:gosec // bounded by modulationHeadMaxSamples
		buf[3] = o.transition.Mode()
		binary.LittleEndian.PutUint16(buf[4:6], o.config.FreqDiv)
		binary.LittleEndian.PutUint16(buf[6:8], o.loop.Rep())
		binary.LittleEndian.PutUint64(buf[8:16], o.transition.Value())
	} else {
		binary.LittleEndian.PutUint16(buf[2:4], uint16(size)) //nolint:gosec // bounded by the payload size
	}
	copy(buf[hdr:hdr+size], o.samples[o.sent:o.sent+size])
	o.sent += size

	n := hdr + size
	if n%2 != 0 && n < len(buf) {
		buf[n] = 0
	}

	return min(evenSize(n), len(buf)), nil
}

// SegmentEffect reports the modulation write once the last chunk is packed.
func (o *Modulation) SegmentEffect() (segment.Effect, bool) {
	return segment.Effect{
		Kind:       segment.EffectWrite,
		Mode:       segment.ModeModulation,
		Segment:    o.segment,
		Loop:       o.loop,
		Transition: o.transition,
	}, o.IsDone()
}
