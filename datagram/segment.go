package datagram

import (
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// SegmentTarget tells a data command where to write and how to activate it.
type SegmentTarget struct {
	Segment    firmware.Segment
	Transition firmware.TransitionMode
	Loop       firmware.LoopBehavior
}

// DefaultSegmentTarget writes to S0, activates immediately and loops forever.
func DefaultSegmentTarget() SegmentTarget {
	return SegmentTarget{
		Segment:    firmware.S0,
		Transition: firmware.Immediate(),
		Loop:       firmware.Infinite(),
	}
}

// SegmentWriter is a datagram that writes data into a segment.
type SegmentWriter interface {
	Datagram
	// Category returns the bank family the data is written to.
	Category() segment.Category
	// SegmentGenerator builds the datagram for the given target.
	SegmentGenerator(ctx *BuildContext, target SegmentTarget) (operation.Generator, error)
}

// SegmentWriteDatagram overrides the target of a SegmentWriter.
type SegmentWriteDatagram struct {
	inner  SegmentWriter
	target SegmentTarget
}

var _ Datagram = (*SegmentWriteDatagram)(nil)

// WithSegment writes d into seg and activates it with transition.
func WithSegment(d SegmentWriter, seg firmware.Segment, transition firmware.TransitionMode) *SegmentWriteDatagram {
	return &SegmentWriteDatagram{
		inner:  d,
		target: SegmentTarget{Segment: seg, Transition: transition, Loop: firmware.Infinite()},
	}
}

// WithLoopBehavior is WithSegment with a finite number of repetitions.
// The gain category ignores loop.
func WithLoopBehavior(d SegmentWriter, loop firmware.LoopBehavior, seg firmware.Segment,
	transition firmware.TransitionMode,
) *SegmentWriteDatagram {
	return &SegmentWriteDatagram{
		inner:  d,
		target: SegmentTarget{Segment: seg, Transition: transition, Loop: loop},
	}
}

func (d *SegmentWriteDatagram) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return d.inner.SegmentGenerator(ctx, d.target)
}

func (d *SegmentWriteDatagram) Option() Option { return d.inner.Option() }

// GlitchlessDatagram writes into the inactive segment of each device and then
// transitions to it, so that the output never shows a partially written bank.
type GlitchlessDatagram struct {
	inner      SegmentWriter
	transition firmware.TransitionMode
	loop       firmware.LoopBehavior
}

var _ Datagram = (*GlitchlessDatagram)(nil)

// Glitchless wraps d so that it targets the inactive segment.
func Glitchless(d SegmentWriter, transition firmware.TransitionMode) *GlitchlessDatagram {
	return &GlitchlessDatagram{inner: d, transition: transition, loop: firmware.Infinite()}
}

func (d *GlitchlessDatagram) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	cat := d.inner.Category()
	var bySegment [2]geometry.DeviceMask
	var used [2]bool
	for _, seg := range []firmware.Segment{firmware.S0, firmware.S1} {
		bySegment[seg] = geometry.MaskFromFunc(ctx.Geometry, func(dev *geometry.Device) bool {
			if !ctx.Mask.Has(dev) || ctx.Segment(dev).Inactive(cat) != seg {
				return false
			}
			used[seg] = true
			return true
		})
	}

	var gens [2]operation.Generator
	for _, seg := range []firmware.Segment{firmware.S0, firmware.S1} {
		if !used[seg] {
			continue
		}
		target := SegmentTarget{Segment: seg, Transition: d.transition, Loop: d.loop}
		gen, err := d.inner.SegmentGenerator(ctx.withMask(bySegment[seg]), target)
		if err != nil {
			return nil, err
		}
		gens[seg] = gen
	}

	return operation.GeneratorFunc(func(dev *geometry.Device) (operation.Operation, operation.Operation, bool) {
		for _, seg := range []firmware.Segment{firmware.S0, firmware.S1} {
			if gens[seg] != nil && bySegment[seg].Has(dev) {
				return gens[seg].Generate(dev)
			}
		}
		return nil, nil, false
	}), nil
}

func (d *GlitchlessDatagram) Option() Option { return d.inner.Option() }

// checkTarget validates a segment target against the firmware generation.
func checkTarget(ctx *BuildContext, target SegmentTarget) error {
	return ctx.version().CheckTransition(target.Transition)
}
