package link

import (
	"encoding/binary"
)

// Frame layout.
const (
	// FrameSize is the fixed capacity of a TxMessage in bytes.
	FrameSize = 626
	// HeaderSize is the size of the frame header.
	HeaderSize = 4
	// PayloadSize is the number of bytes available to operations.
	PayloadSize = FrameSize - HeaderSize
)

// Header flags.
const (
	// HeaderFlagParallel marks a frame packed by the parallel packing path.
	HeaderFlagParallel uint8 = 1 << 0
)

// TxMessage is the transmit frame of one device for one round.
//
// Header layout: [msg_id u8][flags u8][slot2_offset u16 LE].
type TxMessage struct {
	data [FrameSize]byte
}

// AllocTx returns n zeroed frames.
func AllocTx(n int) []TxMessage {
	return make([]TxMessage, n)
}

// --- Header accessors ---

// MsgID returns the message id of the frame.
func (t *TxMessage) MsgID() MsgID { return MsgID(t.data[0]) }

// Flags returns the header flags.
func (t *TxMessage) Flags() uint8 { return t.data[1] }

// IsParallel reports whether the parallel flag is set.
func (t *TxMessage) IsParallel() bool { return t.data[1]&HeaderFlagParallel != 0 }

// Slot2Offset returns the payload offset of the second operation block, 0 if absent.
func (t *TxMessage) Slot2Offset() int {
	return int(binary.LittleEndian.Uint16(t.data[2:4]))
}

// PackHeader writes the message id and parallel flag into the header.
// The slot 2 offset is cleared.
func (t *TxMessage) PackHeader(id MsgID, parallel bool) {
	t.data[0] = byte(id)
	t.data[1] = 0
	if parallel {
		t.data[1] |= HeaderFlagParallel
	}
	binary.LittleEndian.PutUint16(t.data[2:4], 0)
}

// SetSlot2Offset records the payload offset at which the second operation starts.
func (t *TxMessage) SetSlot2Offset(offset int) {
	binary.LittleEndian.PutUint16(t.data[2:4], uint16(offset)) //nolint:gosec // offset < PayloadSize
}

// Payload returns the payload area. Writes through the returned slice modify the frame.
func (t *TxMessage) Payload() []byte { return t.data[HeaderSize:] }

// Bytes returns the whole frame including the header.
func (t *TxMessage) Bytes() []byte { return t.data[:] }

// SetBytes overwrites the frame from b, which must be FrameSize long.
func (t *TxMessage) SetBytes(b []byte) bool {
	if len(b) != FrameSize {
		return false
	}
	copy(t.data[:], b)

	return true
}

// Reset zeroes the frame.
func (t *TxMessage) Reset() { t.data = [FrameSize]byte{} }
