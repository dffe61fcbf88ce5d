package operation

import (
	"fmt"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/segment"
)

const gainHeaderSize = 4

// Gain writes one drive per transducer into a gain bank.
//
// Layout: [tag][segment][flag][pad] followed by [phase][intensity] per transducer.
type Gain struct {
	single
	segment    firmware.Segment
	transition firmware.TransitionMode
	drives     []firmware.Drive
}

// NewGain creates a Gain operation. transition must be Immediate or Later.
func NewGain(seg firmware.Segment, transition firmware.TransitionMode, drives []firmware.Drive) *Gain {
	return &Gain{segment: seg, transition: transition, drives: drives}
}

func (o *Gain) RequiredSize(dev *geometry.Device) int {
	return gainHeaderSize + 2*dev.NumTransducers()
}

func (o *Gain) Pack(dev *geometry.Device, buf []byte) (int, error) {
	if len(o.drives) != dev.NumTransducers() {
		return 0, fmt.Errorf("%w: device %d has %d transducers, got %d drives",
			ErrGainTransducerCountMismatch, dev.Idx(), dev.NumTransducers(), len(o.drives))
	}
	size := o.RequiredSize(dev)
	if err := o.begin(buf, size); err != nil {
		return 0, err
	}

	buf[0] = firmware.TagGain
	buf[1] = uint8(o.segment)
	buf[2] = 0
	if !o.transition.IsLater() {
		buf[2] = firmware.FlagGainUpdate
	}
	buf[3] = 0
	for i, d := range o.drives {
		buf[gainHeaderSize+2*i] = d.Phase
		buf[gainHeaderSize+2*i+1] = d.Intensity
	}
	o.done = true

	return size, nil
}

// SegmentEffect reports the gain write.
func (o *Gain) SegmentEffect() (segment.Effect, bool) {
	return segment.Effect{
		Kind:       segment.EffectWrite,
		Mode:       segment.ModeGain,
		Segment:    o.segment,
		Loop:       firmware.Infinite(),
		Transition: o.transition,
	}, o.done
}
