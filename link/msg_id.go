package link

// MaxMsgID is the largest message id; ids wrap around to 0 after it so the
// echo in an acknowledgment never collides with the error bit.
const MaxMsgID MsgID = 0x7F

// MsgID is the correlation token between a frame and its acknowledgment.
//
// A MsgID is plain state owned by a sender; it is not safe for concurrent use.
type MsgID uint8

// Increment advances the id, wrapping after MaxMsgID.
func (m *MsgID) Increment() {
	if *m >= MaxMsgID {
		*m = 0
		return
	}
	*m++
}

// Next returns the id following m without modifying it.
func (m MsgID) Next() MsgID {
	n := m
	n.Increment()

	return n
}
