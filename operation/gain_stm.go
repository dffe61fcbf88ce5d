package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/segment"
)

const (
	gainSTMHeadSize   = 20
	gainSTMSubseqSize = 4
)

// GainSTM streams a sequence of gain patterns into an STM bank.
//
// Head layout: [tag][flag][mode][transition_mode][freq_div u16][rep u16]
// [transition_value u64][segment][send_num][pad u16]. Subseq layout:
// [tag][flag][segment][send_num]. The body is two bytes per transducer; how
// many patterns share it depends on the GainSTMMode.
type GainSTM struct {
	patterns   [][]firmware.Drive
	mode       firmware.GainSTMMode
	config     firmware.SamplingConfig
	loop       firmware.LoopBehavior
	segment    firmware.Segment
	transition firmware.TransitionMode
	sent       int
}

// NewGainSTM creates a GainSTM operation over the device's patterns.
func NewGainSTM(patterns [][]firmware.Drive, mode firmware.GainSTMMode, config firmware.SamplingConfig,
	loop firmware.LoopBehavior, seg firmware.Segment, transition firmware.TransitionMode,
) *GainSTM {
	return &GainSTM{
		patterns:   patterns,
		mode:       mode,
		config:     config,
		loop:       loop,
		segment:    seg,
		transition: transition,
	}
}

func (o *GainSTM) RequiredSize(dev *geometry.Device) int {
	if o.sent == 0 {
		return gainSTMHeadSize + 2*dev.NumTransducers()
	}

	return gainSTMSubseqSize + 2*dev.NumTransducers()
}

func (o *GainSTM) IsDone() bool { return o.sent == len(o.patterns) }

// Sent returns the number of patterns written so far.
func (o *GainSTM) Sent() int { return o.sent }

func (o *GainSTM) Pack(dev *geometry.Device, buf []byte) (int, error) {
	if o.IsDone() {
		return 0, ErrAlreadyDone
	}
	size := o.RequiredSize(dev)
	if len(buf) < size {
		return 0, ErrBufferTooSmall
	}

	sendNum := min(len(o.patterns)-o.sent, o.mode.PatternsPerFrame())
	chunk := o.patterns[o.sent : o.sent+sendNum]
	for _, p := range chunk {
		if len(p) != dev.NumTransducers() {
			return 0, fmt.Errorf("%w: GainSTM pattern for device %d", ErrGainTransducerCountMismatch, dev.Idx())
		}
	}

	isFirst := o.sent == 0
	isLast := o.sent+sendNum == len(o.patterns)
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

	buf[0] = firmware.TagGainSTM
	buf[1] = flag
	hdr := gainSTMSubseqSize
	if isFirst {
		hdr = gainSTMHeadSize
		buf[2] = uint8(o.mode)
		buf[3] = o.transition.Mode()
		binary.LittleEndian.PutUint16(buf[4:6], o.config.FreqDiv)
		binary.LittleEndian.PutUint16(buf[6:8], o.loop.Rep())
		binary.LittleEndian.PutUint64(buf[8:16], o.transition.Value())
		buf[16] = uint8(o.segment)
		buf[17] = uint8(sendNum) //nolint:gosec // at most 4
		clear(buf[18:20])
	} else {
		buf[2] = uint8(o.segment)
		buf[3] = uint8(sendNum) //nolint:gosec // at most 4
	}

	body := buf[hdr:size]
	clear(body)
	switch o.mode {
	case firmware.GainSTMPhaseFull:
		for i, p := range chunk {
			for t, d := range p {
				body[2*t+i] = d.Phase
			}
		}
	case firmware.GainSTMPhaseHalf:
		for i, p := range chunk {
			shift := 4 * (i % 2)
			for t, d := range p {
				body[2*t+i/2] |= (d.Phase >> 4) << shift
			}
		}
	default:
		for t, d := range chunk[0] {
			body[2*t] = d.Phase
			body[2*t+1] = d.Intensity
		}
	}
	o.sent += sendNum

	return size, nil
}

// SegmentEffect reports the STM write once the last chunk is packed.
func (o *GainSTM) SegmentEffect() (segment.Effect, bool) {
	return segment.Effect{
		Kind:       segment.EffectWrite,
		Mode:       segment.ModeGainSTM,
		Segment:    o.segment,
		Loop:       o.loop,
		Transition: o.transition,
	}, o.IsDone()
}
