package datagram

import (
	"fmt"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// Clear resets every device to its power-on state.
type Clear struct{}

func (Clear) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return forEachDevice(ctx, func(*geometry.Device) operation.Operation { return operation.NewClear() }), nil
}

func (Clear) Option() Option {
	return Option{Timeout: HousekeepingTimeout, ParallelThreshold: DefaultParallelThreshold}
}

// Synchronize aligns the internal clocks of all devices.
type Synchronize struct{}

func (Synchronize) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return forEachDevice(ctx, func(*geometry.Device) operation.Operation { return operation.NewSynchronize() }), nil
}

func (Synchronize) Option() Option {
	return Option{Timeout: HousekeepingTimeout, ParallelThreshold: DefaultParallelThreshold}
}

// FirmwareInfo asks every device to place one version byte into its acknowledgment.
type FirmwareInfo struct {
	Type firmware.InfoType
}

func (d FirmwareInfo) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	if !d.Type.Valid() {
		return nil, fmt.Errorf("%w: info type %d", firmware.ErrUnsupportedOperation, d.Type)
	}

	return forEachDevice(ctx, func(*geometry.Device) operation.Operation {
		return operation.NewFirmwareInfo(d.Type)
	}), nil
}

func (FirmwareInfo) Option() Option { return DefaultOption() }

// ForceFan forces the cooling fan of each device on or off.
type ForceFan func(dev *geometry.Device) bool

func (f ForceFan) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		return operation.NewForceFan(f(dev))
	}), nil
}

func (ForceFan) Option() Option { return DefaultOption() }

// ReadsFPGAState selects, per device, whether acknowledgments carry the FPGA state byte.
type ReadsFPGAState func(dev *geometry.Device) bool

func (f ReadsFPGAState) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		return operation.NewReadsFPGAState(f(dev))
	}), nil
}

func (ReadsFPGAState) Option() Option { return DefaultOption() }

// SwapSegment activates an already written segment.
type SwapSegment struct {
	mode       segment.Mode
	segment    firmware.Segment
	transition firmware.TransitionMode
}

// SwapModulation activates modulation segment seg.
func SwapModulation(seg firmware.Segment, transition firmware.TransitionMode) SwapSegment {
	return SwapSegment{mode: segment.ModeModulation, segment: seg, transition: transition}
}

// SwapGain activates gain segment seg. Gain swaps are always immediate.
func SwapGain(seg firmware.Segment) SwapSegment {
	return SwapSegment{mode: segment.ModeGain, segment: seg, transition: firmware.Immediate()}
}

// SwapFociSTM activates FociSTM segment seg.
func SwapFociSTM(seg firmware.Segment, transition firmware.TransitionMode) SwapSegment {
	return SwapSegment{mode: segment.ModeFociSTM, segment: seg, transition: transition}
}

// SwapGainSTM activates GainSTM segment seg.
func SwapGainSTM(seg firmware.Segment, transition firmware.TransitionMode) SwapSegment {
	return SwapSegment{mode: segment.ModeGainSTM, segment: seg, transition: transition}
}

func (d SwapSegment) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	if d.transition.IsLater() {
		return nil, fmt.Errorf("%w: a swap cannot be deferred", firmware.ErrUnsupportedTransitionMode)
	}
	if d.mode == segment.ModeGain && d.transition.Kind() != firmware.TransitionImmediate {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidGainTransition, d.transition)
	}
	if err := ctx.version().CheckTransition(d.transition); err != nil {
		return nil, err
	}

	return forEachDevice(ctx, func(*geometry.Device) operation.Operation {
		return operation.NewSwapSegment(d.mode, d.segment, d.transition)
	}), nil
}

func (SwapSegment) Option() Option { return DefaultOption() }
