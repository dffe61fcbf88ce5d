package datagram

import (
	"fmt"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
)

// EmulateGPIOIn sets, per device and pin, the level of the GPIO inputs as if
// driven externally. A rising edge fires a pending GPIO transition on that pin.
type EmulateGPIOIn func(dev *geometry.Device, pin firmware.GPIOIn) bool

func (f EmulateGPIOIn) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		var pins [firmware.NumGPIO]bool
		for i := range pins {
			pins[i] = f(dev, firmware.GPIOIn(i)) //nolint:gosec // i < NumGPIO
		}
		return operation.NewEmulateGPIOIn(pins)
	}), nil
}

func (EmulateGPIOIn) Option() Option { return DefaultOption() }

// GPIOOutputs selects, per device and pin, the signal routed to the FPGA debug outputs.
type GPIOOutputs func(dev *geometry.Device, pin firmware.GPIOOut) firmware.GPIOOutput

func (f GPIOOutputs) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	v := ctx.version()
	outputs := make(map[int][firmware.NumGPIO]firmware.GPIOOutput)
	for _, dev := range ctx.Geometry.Devices() {
		if !ctx.Mask.Has(dev) {
			continue
		}
		var outs [firmware.NumGPIO]firmware.GPIOOutput
		for i := range outs {
			out := f(dev, firmware.GPIOOut(i)) //nolint:gosec // i < NumGPIO
			if !v.SupportsGPIOOutput(out.Type) {
				return nil, fmt.Errorf("%w: GPIO output 0x%02X on %s", firmware.ErrUnsupportedOperation, uint8(out.Type), v)
			}
			outs[i] = out
		}
		outputs[dev.Idx()] = outs
	}

	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		return operation.NewGPIOOutputs(outputs[dev.Idx()])
	}), nil
}

func (GPIOOutputs) Option() Option { return DefaultOption() }

// CPUGPIOOutputs sets, per device, the CPU debug pins.
type CPUGPIOOutputs func(dev *geometry.Device) firmware.CPUGPIOPort

func (f CPUGPIOOutputs) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		return operation.NewCPUGPIOOutputs(f(dev))
	}), nil
}

func (CPUGPIOOutputs) Option() Option { return DefaultOption() }
