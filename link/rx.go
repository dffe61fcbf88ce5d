package link

// Acknowledgment layout.
const (
	// RxSize is the size of one RxMessage on the wire.
	RxSize = 2

	ackErrorBit  uint8 = 0x80
	ackValueMask uint8 = 0x7F
)

// RxMessage is the acknowledgment of one device.
type RxMessage struct {
	data uint8
	ack  uint8
}

// NewRxMessage builds an acknowledgment from its raw bytes.
func NewRxMessage(data, ack uint8) RxMessage { return RxMessage{data: data, ack: ack} }

// AckMsgID builds the acknowledgment of a successfully processed frame.
func AckMsgID(data uint8, id MsgID) RxMessage {
	return RxMessage{data: data, ack: uint8(id) & ackValueMask}
}

// AckError builds an acknowledgment carrying a firmware error code.
func AckError(data uint8, code uint8) RxMessage {
	return RxMessage{data: data, ack: ackErrorBit | (code & ackValueMask)}
}

// Data returns the data byte (FPGA state or requested info).
func (r RxMessage) Data() uint8 { return r.data }

// Ack returns the raw ack byte.
func (r RxMessage) Ack() uint8 { return r.ack }

// IsError reports whether the ack byte carries an error code.
func (r RxMessage) IsError() bool { return r.ack&ackErrorBit != 0 }

// ErrorCode returns the firmware error code; meaningful only if IsError is true.
func (r RxMessage) ErrorCode() uint8 { return r.ack & ackValueMask }

// Acknowledges reports whether r confirms that the frame with id was processed.
func (r RxMessage) Acknowledges(id MsgID) bool {
	return !r.IsError() && MsgID(r.ack) == id
}
