package segment

import "github.com/arloliu/go-autd/firmware"

// EffectKind is what a processed operation does to the banks.
type EffectKind uint8

const (
	EffectWrite EffectKind = iota + 1
	EffectSwap
	EffectReset
)

// Effect describes the bank change caused by one operation.
type Effect struct {
	Kind       EffectKind
	Mode       Mode
	Segment    firmware.Segment
	Loop       firmware.LoopBehavior
	Transition firmware.TransitionMode
}

// Effector is implemented by operations that change the bank state once the
// device has processed them.
type Effector interface {
	SegmentEffect() (Effect, bool)
}

// Apply replays e on m.
func (m *Machine) Apply(e Effect, now uint64) error {
	switch e.Kind {
	case EffectWrite:
		return m.Write(e.Mode, e.Segment, e.Loop, e.Transition, now)
	case EffectSwap:
		return m.Swap(e.Mode, e.Segment, e.Transition, now)
	case EffectReset:
		m.Reset()
	}

	return nil
}
