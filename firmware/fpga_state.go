package firmware

import (
	"fmt"
	"time"
)

// FPGA state bits carried in the data byte of an acknowledgment while
// ReadsFPGAState is enabled.
const (
	FPGAStateThermalAssert uint8 = 1 << 0
	FPGAStateModSegment    uint8 = 1 << 1
	FPGAStateSTMSegment    uint8 = 1 << 2
	FPGAStateGainMode      uint8 = 1 << 3
	FPGAStateValid         uint8 = 1 << 7
)

// FPGAState is the FPGA status of one device.
type FPGAState uint8

// FPGAStateFromData decodes an acknowledgment data byte. ok is false when the
// device is not reporting its state.
func FPGAStateFromData(data uint8) (FPGAState, bool) {
	if data&FPGAStateValid == 0 {
		return 0, false
	}

	return FPGAState(data), true
}

// IsThermalAssert reports whether the over-temperature signal is asserted.
func (s FPGAState) IsThermalAssert() bool { return uint8(s)&FPGAStateThermalAssert != 0 }

// CurrentModSegment returns the active modulation segment.
func (s FPGAState) CurrentModSegment() Segment {
	if uint8(s)&FPGAStateModSegment != 0 {
		return S1
	}

	return S0
}

// CurrentSTMSegment returns the active STM segment, which is also the active gain segment.
func (s FPGAState) CurrentSTMSegment() Segment {
	if uint8(s)&FPGAStateSTMSegment != 0 {
		return S1
	}

	return S0
}

// IsGainMode reports whether the active STM segment holds a single gain.
func (s FPGAState) IsGainMode() bool { return uint8(s)&FPGAStateGainMode != 0 }

func (s FPGAState) String() string {
	return fmt.Sprintf("thermal=%t mod=%s stm=%s gain=%t",
		s.IsThermalAssert(), s.CurrentModSegment(), s.CurrentSTMSegment(), s.IsGainMode())
}

// DCEpoch is the origin of the distributed clock used by SysTime transitions.
var DCEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// DCSysTime converts t into nanoseconds since DCEpoch. Times before the epoch map to 0.
func DCSysTime(t time.Time) uint64 {
	d := t.Sub(DCEpoch)
	if d < 0 {
		return 0
	}

	return uint64(d)
}
