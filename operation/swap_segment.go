package operation

import (
	"encoding/binary"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/segment"
)

const (
	gainSwapSegmentSize = 2
	swapSegmentSize     = 16
)

// SwapSegment requests a transition to an already written bank.
//
// Gain layout: [tag][segment]. Other kinds:
// [tag][segment][transition_mode][pad x5][transition_value u64].
type SwapSegment struct {
	single
	mode       segment.Mode
	segment    firmware.Segment
	transition firmware.TransitionMode
}

// NewSwapSegment creates a SwapSegment operation for data of kind mode.
func NewSwapSegment(mode segment.Mode, seg firmware.Segment, transition firmware.TransitionMode) *SwapSegment {
	return &SwapSegment{mode: mode, segment: seg, transition: transition}
}

func (o *SwapSegment) tag() firmware.Tag {
	switch o.mode {
	case segment.ModeGain:
		return firmware.TagGainSwapSegment
	case segment.ModeFociSTM:
		return firmware.TagFociSTMSwapSegment
	case segment.ModeGainSTM:
		return firmware.TagGainSTMSwapSegment
	default:
		return firmware.TagModulationSwapSegment
	}
}

func (o *SwapSegment) RequiredSize(*geometry.Device) int {
	if o.mode == segment.ModeGain {
		return gainSwapSegmentSize
	}

	return swapSegmentSize
}

func (o *SwapSegment) Pack(dev *geometry.Device, buf []byte) (int, error) {
	size := o.RequiredSize(dev)
	if err := o.begin(buf, size); err != nil {
		return 0, err
	}

	buf[0] = o.tag()
	buf[1] = uint8(o.segment)
	if o.mode != segment.ModeGain {
		buf[2] = o.transition.Mode()
		clear(buf[3:8])
		binary.LittleEndian.PutUint64(buf[8:16], o.transition.Value())
	}
	o.done = true

	return size, nil
}

// SegmentEffect reports the swap.
func (o *SwapSegment) SegmentEffect() (segment.Effect, bool) {
	return segment.Effect{
		Kind:       segment.EffectSwap,
		Mode:       o.mode,
		Segment:    o.segment,
		Transition: o.transition,
	}, o.done
}
