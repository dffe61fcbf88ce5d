package firmware

import "fmt"

// Segment names one of the two device-side storage banks of a data category.
type Segment uint8

const (
	S0 Segment = 0
	S1 Segment = 1
)

// Other returns the opposite segment.
func (s Segment) Other() Segment { return s ^ 1 }

func (s Segment) String() string {
	if s == S1 {
		return "S1"
	}

	return "S0"
}

// TransitionKind enumerates when a written segment becomes active.
type TransitionKind uint8

// Transition kinds with their wire codes.
const (
	TransitionSyncIdx   TransitionKind = 0x00
	TransitionSysTime   TransitionKind = 0x01
	TransitionGPIO      TransitionKind = 0x02
	TransitionExt       TransitionKind = 0xF0
	TransitionLater     TransitionKind = 0xFE
	TransitionImmediate TransitionKind = 0xFF
)

// GPIOIn identifies a GPIO input pin usable as a transition trigger.
type GPIOIn uint8

const (
	GPIOIn0 GPIOIn = iota
	GPIOIn1
	GPIOIn2
	GPIOIn3
)

// TransitionMode governs when a freshly written segment starts driving the output.
// The zero value is TransitionSyncIdx.
type TransitionMode struct {
	kind  TransitionKind
	value uint64
}

// Immediate switches as soon as the frame is processed.
func Immediate() TransitionMode { return TransitionMode{kind: TransitionImmediate} }

// SyncIdx switches when the sampling index of the active segment wraps.
func SyncIdx() TransitionMode { return TransitionMode{kind: TransitionSyncIdx} }

// SysTime switches at the given device (distributed clock) time in nanoseconds.
func SysTime(ns uint64) TransitionMode { return TransitionMode{kind: TransitionSysTime, value: ns} }

// GPIO switches on a rising edge of the given input pin.
func GPIO(pin GPIOIn) TransitionMode { return TransitionMode{kind: TransitionGPIO, value: uint64(pin)} }

// Ext hands segment switching over to the device, which alternates segments on each loop.
func Ext() TransitionMode { return TransitionMode{kind: TransitionExt} }

// Later writes the segment without switching to it.
func Later() TransitionMode { return TransitionMode{kind: TransitionLater} }

// Kind returns the transition kind.
func (m TransitionMode) Kind() TransitionKind { return m.kind }

// Value returns the kind-specific value (device time or pin).
func (m TransitionMode) Value() uint64 { return m.value }

// Mode returns the wire code of the mode.
func (m TransitionMode) Mode() uint8 { return uint8(m.kind) }

// IsLater reports whether the mode leaves the active segment untouched.
func (m TransitionMode) IsLater() bool { return m.kind == TransitionLater }

// TransitionFromWire decodes a mode/value pair read from a frame.
func TransitionFromWire(mode uint8, value uint64) (TransitionMode, bool) {
	switch k := TransitionKind(mode); k {
	case TransitionSyncIdx, TransitionExt, TransitionLater, TransitionImmediate:
		return TransitionMode{kind: k}, true
	case TransitionSysTime:
		return SysTime(value), true
	case TransitionGPIO:
		if value > uint64(GPIOIn3) {
			return TransitionMode{}, false
		}
		return TransitionMode{kind: k, value: value}, true
	default:
		return TransitionMode{}, false
	}
}

func (m TransitionMode) String() string {
	switch m.kind {
	case TransitionSyncIdx:
		return "SyncIdx"
	case TransitionSysTime:
		return fmt.Sprintf("SysTime(%d)", m.value)
	case TransitionGPIO:
		return fmt.Sprintf("GPIO(%d)", m.value)
	case TransitionExt:
		return "Ext"
	case TransitionLater:
		return "Later"
	case TransitionImmediate:
		return "Immediate"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(m.kind))
	}
}
