package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
)

const (
	pulseWidthHeaderSize = 2
	// PulseWidthTableSize is the number of entries of the intensity-to-pulse-width table.
	PulseWidthTableSize = 256
)

// PulseWidthEncoder uploads the table mapping intensity to PWM pulse width
// in a single frame.
//
// Layout: [tag][pad] followed by 256 entries, u8 under TagConfigPulseWidthEncoderV10
// and u16 little-endian under TagConfigPulseWidthEncoderV11.
type PulseWidthEncoder struct {
	single
	table []uint16
	wide  bool
}

// NewPulseWidthEncoder creates a PulseWidthEncoder operation. wide selects 16-bit entries.
func NewPulseWidthEncoder(table []uint16, wide bool) *PulseWidthEncoder {
	return &PulseWidthEncoder{table: table, wide: wide}
}

func (o *PulseWidthEncoder) entrySize() int {
	if o.wide {
		return 2
	}

	return 1
}

func (o *PulseWidthEncoder) RequiredSize(*geometry.Device) int {
	return pulseWidthHeaderSize + PulseWidthTableSize*o.entrySize()
}

func (o *PulseWidthEncoder) Pack(dev *geometry.Device, buf []byte) (int, error) {
	if len(o.table) != PulseWidthTableSize {
		return 0, fmt.Errorf("%w: pulse width table has %d entries", ErrTransducerCountMismatch, len(o.table))
	}
	n := o.RequiredSize(dev)
	if err := o.begin(buf, n); err != nil {
		return 0, err
	}

	buf[0] = firmware.TagConfigPulseWidthEncoderV10
	if o.wide {
		buf[0] = firmware.TagConfigPulseWidthEncoderV11
	}
	buf[1] = 0
	body := buf[pulseWidthHeaderSize:n]
	for i, v := range o.table {
		if o.wide {
			binary.LittleEndian.PutUint16(body[2*i:], v)
		} else {
			body[i] = uint8(v) //nolint:gosec // validated to fit 8 bits at build time
		}
	}
	o.done = true

	return n, nil
}
