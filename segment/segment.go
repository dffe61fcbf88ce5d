// Package segment models the double-buffered storage of a device.
//
// Each data category owns two banks (S0 and S1). Exactly one bank per category
// drives the output at a time; new data is written into a bank and becomes
// active according to a firmware.TransitionMode. The gain, FociSTM and GainSTM
// kinds share the STM banks, and every bank remembers which kind it holds, so
// a swap into a bank holding a different kind is rejected.
//
// A Machine is the authoritative state inside the emulator link and the host-side
// mirror the controller keeps to target the inactive bank for glitch-free updates.
// A Machine is not safe for concurrent use.
package segment

import (
	"fmt"

	"github.com/arloliu/go-autd/firmware"
)

// Category is a family of data sharing one pair of banks.
type Category uint8

const (
	Modulation Category = iota
	STM
)

func (c Category) String() string {
	if c == STM {
		return "stm"
	}

	return "modulation"
}

// Mode is the kind of data held by a bank.
type Mode uint8

const (
	ModeModulation Mode = iota + 1
	ModeGain
	ModeFociSTM
	ModeGainSTM
)

func (m Mode) String() string {
	switch m {
	case ModeModulation:
		return "modulation"
	case ModeGain:
		return "gain"
	case ModeFociSTM:
		return "foci-stm"
	case ModeGainSTM:
		return "gain-stm"
	default:
		return "none"
	}
}

// Category returns the category whose banks hold data of mode m.
func (m Mode) Category() Category {
	if m == ModeModulation {
		return Modulation
	}

	return STM
}

type pending struct {
	seg        firmware.Segment
	transition firmware.TransitionMode
}

type state struct {
	active  firmware.Segment
	modes   [2]Mode
	loops   [2]firmware.LoopBehavior
	pending *pending
}

// Machine holds the bank state of one device.
type Machine struct {
	states [2]state
}

// New returns a Machine in the state a device has after a clear.
func New() *Machine {
	m := &Machine{}
	m.Reset()

	return m
}

// Reset restores the cleared state: S0 active everywhere, static modulation
// and null gain in both banks.
func (m *Machine) Reset() {
	m.states[Modulation] = state{
		modes: [2]Mode{ModeModulation, ModeModulation},
		loops: [2]firmware.LoopBehavior{firmware.Infinite(), firmware.Infinite()},
	}
	m.states[STM] = state{
		modes: [2]Mode{ModeGain, ModeGain},
		loops: [2]firmware.LoopBehavior{firmware.Infinite(), firmware.Infinite()},
	}
}

// Active returns the bank currently driving the output of cat.
func (m *Machine) Active(cat Category) firmware.Segment { return m.states[cat].active }

// Target returns the bank that drives cat once a scheduled transition fires.
func (m *Machine) Target(cat Category) firmware.Segment {
	st := &m.states[cat]
	if st.pending != nil {
		return st.pending.seg
	}

	return st.active
}

// Inactive returns the bank a glitch-free write of cat should target.
func (m *Machine) Inactive(cat Category) firmware.Segment { return m.Target(cat).Other() }

// Mode returns the kind of data held by the given bank.
func (m *Machine) Mode(cat Category, seg firmware.Segment) Mode { return m.states[cat].modes[seg] }

// ActiveMode returns the kind of data held by the active bank of cat.
func (m *Machine) ActiveMode(cat Category) Mode {
	st := &m.states[cat]
	return st.modes[st.active]
}

// Pending returns the scheduled transition of cat, if any.
func (m *Machine) Pending(cat Category) (firmware.Segment, firmware.TransitionMode, bool) {
	st := &m.states[cat]
	if st.pending == nil {
		return 0, firmware.TransitionMode{}, false
	}

	return st.pending.seg, st.pending.transition, true
}

// Write records that data of kind mode was stored into seg with the given loop
// behavior, then applies transition unless it is Later.
//
// now is the device time in nanoseconds, used to validate SysTime transitions.
func (m *Machine) Write(mode Mode, seg firmware.Segment, loop firmware.LoopBehavior, transition firmware.TransitionMode, now uint64) error {
	if err := checkTransition(mode, transition); err != nil {
		return err
	}

	cat := mode.Category()
	st := &m.states[cat]
	if transition.IsLater() {
		st.modes[seg] = mode
		st.loops[seg] = loop
		return nil
	}
	if err := checkDeadline(transition, now); err != nil {
		return err
	}

	st.modes[seg] = mode
	st.loops[seg] = loop
	m.schedule(cat, seg, transition)

	return nil
}

// Swap requests a transition of the category of mode to seg.
//
// It fails with firmware.ErrInvalidSegmentTransition if seg does not hold data
// of kind mode, with firmware.ErrMissTransitionTime if a SysTime deadline has
// already passed, and with firmware.ErrInvalidTransitionMode for transitions the
// kind does not accept.
func (m *Machine) Swap(mode Mode, seg firmware.Segment, transition firmware.TransitionMode, now uint64) error {
	if transition.IsLater() {
		return fmt.Errorf("%w: swap with %s", firmware.ErrInvalidTransitionMode, transition)
	}
	if err := checkTransition(mode, transition); err != nil {
		return err
	}

	cat := mode.Category()
	st := &m.states[cat]
	if st.modes[seg] != mode {
		return fmt.Errorf("%w: %s holds %s, requested %s", firmware.ErrInvalidSegmentTransition, seg, st.modes[seg], mode)
	}
	if err := checkDeadline(transition, now); err != nil {
		return err
	}
	m.schedule(cat, seg, transition)

	return nil
}

// Advance fires scheduled SysTime transitions whose deadline is at or before now.
func (m *Machine) Advance(now uint64) {
	for cat := range m.states {
		st := &m.states[cat]
		if st.pending == nil {
			continue
		}
		if st.pending.transition.Kind() == firmware.TransitionSysTime && st.pending.transition.Value() <= now {
			st.active = st.pending.seg
			st.pending = nil
		}
	}
}

// Trigger fires a scheduled transition of cat waiting for kind (SyncIdx, GPIO or Ext).
// It reports whether a transition fired.
func (m *Machine) Trigger(cat Category, kind firmware.TransitionKind) bool {
	st := &m.states[cat]
	if st.pending == nil || st.pending.transition.Kind() != kind {
		return false
	}
	st.active = st.pending.seg
	st.pending = nil

	return true
}

func (m *Machine) schedule(cat Category, seg firmware.Segment, transition firmware.TransitionMode) {
	st := &m.states[cat]
	switch transition.Kind() {
	case firmware.TransitionImmediate:
		st.active = seg
		st.pending = nil
	case firmware.TransitionExt:
		// the device alternates banks on its own from now on
		st.active = seg
		st.pending = nil
	default:
		st.pending = &pending{seg: seg, transition: transition}
	}
}

func checkTransition(mode Mode, transition firmware.TransitionMode) error {
	switch transition.Kind() {
	case firmware.TransitionImmediate, firmware.TransitionLater:
		return nil
	case firmware.TransitionSyncIdx, firmware.TransitionSysTime, firmware.TransitionGPIO, firmware.TransitionExt:
		if mode == ModeGain {
			return fmt.Errorf("%w: gain accepts only Immediate, got %s", firmware.ErrInvalidTransitionMode, transition)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", firmware.ErrInvalidTransitionMode, transition)
	}
}

func checkDeadline(transition firmware.TransitionMode, now uint64) error {
	if transition.Kind() == firmware.TransitionSysTime && transition.Value() < now {
		return fmt.Errorf("%w: deadline %d, now %d", firmware.ErrMissTransitionTime, transition.Value(), now)
	}

	return nil
}

// Loop returns the loop behavior recorded for the given bank.
func (m *Machine) Loop(cat Category, seg firmware.Segment) firmware.LoopBehavior {
	return m.states[cat].loops[seg]
}
