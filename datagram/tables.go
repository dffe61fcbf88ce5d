package datagram

import (
	"fmt"
	"math"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
)

// PhaseCorrection adds a per-transducer phase offset to everything the device outputs.
type PhaseCorrection func(dev *geometry.Device, tr geometry.Transducer) uint8

func (f PhaseCorrection) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		phases := make([]uint8, dev.NumTransducers())
		for i, tr := range dev.Transducers() {
			phases[i] = f(dev, tr)
		}
		return operation.NewPhaseCorrection(phases)
	}), nil
}

func (PhaseCorrection) Option() Option { return DefaultOption() }

// OutputMask enables or disables individual transducers for one STM segment.
type OutputMask struct {
	Segment firmware.Segment
	Enabled func(dev *geometry.Device, tr geometry.Transducer) bool
}

func (d OutputMask) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	if v := ctx.version(); !v.SupportsOutputMask() {
		return nil, fmt.Errorf("%w: output mask needs %s, devices run %s", firmware.ErrUnsupportedOperation, firmware.V12_1, v)
	}

	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		mask := make([]bool, dev.NumTransducers())
		for i, tr := range dev.Transducers() {
			mask[i] = d.Enabled(dev, tr)
		}
		return operation.NewOutputMask(d.Segment, mask)
	}), nil
}

func (OutputMask) Option() Option { return DefaultOption() }

// PulseWidthEncoder uploads the table mapping an intensity to a PWM pulse width,
// in ticks of the carrier period.
type PulseWidthEncoder struct {
	// Table maps each of the 256 intensities to a pulse width. A nil Table
	// selects the default arcsine table of the firmware generation.
	Table func(intensity uint8) uint16
}

// DefaultPulseWidth is the arcsine encoding that makes the emitted amplitude
// proportional to the intensity, for a carrier period of period ticks.
func DefaultPulseWidth(period int) func(intensity uint8) uint16 {
	return func(intensity uint8) uint16 {
		w := math.Round(math.Asin(float64(intensity)/255) / math.Pi * float64(period))
		return uint16(w)
	}
}

func (d PulseWidthEncoder) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	v := ctx.version()
	period := v.UltrasoundPeriod()
	f := d.Table
	if f == nil {
		f = DefaultPulseWidth(period)
	}

	table := make([]uint16, operation.PulseWidthTableSize)
	for i := range table {
		w := f(uint8(i)) //nolint:gosec // i < 256
		if int(w) >= period {
			return nil, fmt.Errorf("%w: intensity %d maps to %d, period is %d", ErrPulseWidthOutOfRange, i, w, period)
		}
		table[i] = w
	}
	wide := v.WidePulseWidth()

	return forEachDevice(ctx, func(*geometry.Device) operation.Operation {
		return operation.NewPulseWidthEncoder(table, wide)
	}), nil
}

func (PulseWidthEncoder) Option() Option { return DefaultOption() }
