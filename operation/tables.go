package operation

import (
	"fmt"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
)

const tableHeaderSize = 2

// PhaseCorrection adds a fixed phase offset to every transducer.
//
// Layout: [tag][pad] followed by one phase byte per transducer, padded to even.
type PhaseCorrection struct {
	single
	phases []uint8
}

// NewPhaseCorrection creates a PhaseCorrection operation.
func NewPhaseCorrection(phases []uint8) *PhaseCorrection {
	return &PhaseCorrection{phases: phases}
}

func (o *PhaseCorrection) RequiredSize(dev *geometry.Device) int {
	return evenSize(tableHeaderSize + dev.NumTransducers())
}

func (o *PhaseCorrection) Pack(dev *geometry.Device, buf []byte) (int, error) {
	if len(o.phases) != dev.NumTransducers() {
		return 0, fmt.Errorf("%w: phase correction for device %d", ErrTransducerCountMismatch, dev.Idx())
	}
	size := o.RequiredSize(dev)
	if err := o.begin(buf, size); err != nil {
		return 0, err
	}

	buf[0] = firmware.TagPhaseCorrection
	buf[1] = 0
	copy(buf[tableHeaderSize:], o.phases)
	clear(buf[tableHeaderSize+len(o.phases) : size])
	o.done = true

	return size, nil
}

// OutputMask enables or disables the output of individual transducers for one STM bank.
//
// Layout: [tag][segment] followed by a little-endian bitmap of ceil(n/8) bytes, padded to even.
type OutputMask struct {
	single
	segment firmware.Segment
	mask    []bool
}

// NewOutputMask creates an OutputMask operation.
func NewOutputMask(seg firmware.Segment, mask []bool) *OutputMask {
	return &OutputMask{segment: seg, mask: mask}
}

func (o *OutputMask) RequiredSize(dev *geometry.Device) int {
	return evenSize(tableHeaderSize + (dev.NumTransducers()+7)/8)
}

func (o *OutputMask) Pack(dev *geometry.Device, buf []byte) (int, error) {
	if len(o.mask) != dev.NumTransducers() {
		return 0, fmt.Errorf("%w: output mask for device %d", ErrTransducerCountMismatch, dev.Idx())
	}
	size := o.RequiredSize(dev)
	if err := o.begin(buf, size); err != nil {
		return 0, err
	}

	buf[0] = firmware.TagOutputMask
	buf[1] = uint8(o.segment)
	bitmap := buf[tableHeaderSize:size]
	clear(bitmap)
	for i, on := range o.mask {
		if on {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	o.done = true

	return size, nil
}
