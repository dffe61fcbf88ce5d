package operation

import (
	"encoding/binary"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
)

// EmulateGPIOIn drives the GPIO inputs of the device from the host. Bit n of
// the value is GPIO_IN_n.
type EmulateGPIOIn struct{ twoByte }

// NewEmulateGPIOIn creates an EmulateGPIOIn operation.
func NewEmulateGPIOIn(pins [firmware.NumGPIO]bool) *EmulateGPIOIn {
	var flag uint8
	for i, on := range pins {
		if on {
			flag |= 1 << i
		}
	}

	return &EmulateGPIOIn{twoByte{tag: firmware.TagEmulateGPIOIn, value: flag}}
}

// CPUGPIOOutputs sets the CPU debug pins.
type CPUGPIOOutputs struct{ twoByte }

// NewCPUGPIOOutputs creates a CPUGPIOOutputs operation.
func NewCPUGPIOOutputs(port firmware.CPUGPIOPort) *CPUGPIOOutputs {
	return &CPUGPIOOutputs{twoByte{tag: firmware.TagCPUGPIOOutputs, value: port.Encode()}}
}

const (
	gpioOutputsHeaderSize = 8
	gpioOutputsSize       = gpioOutputsHeaderSize + 8*firmware.NumGPIO
)

// GPIOOutputs routes internal FPGA signals to the debug output pins.
//
// Layout: [tag][pad x7] followed by one u64 word per pin.
type GPIOOutputs struct {
	single
	outputs [firmware.NumGPIO]firmware.GPIOOutput
}

// NewGPIOOutputs creates a GPIOOutputs operation.
func NewGPIOOutputs(outputs [firmware.NumGPIO]firmware.GPIOOutput) *GPIOOutputs {
	return &GPIOOutputs{outputs: outputs}
}

func (o *GPIOOutputs) RequiredSize(*geometry.Device) int { return gpioOutputsSize }

func (o *GPIOOutputs) Pack(_ *geometry.Device, buf []byte) (int, error) {
	if err := o.begin(buf, gpioOutputsSize); err != nil {
		return 0, err
	}
	buf[0] = firmware.TagGPIOOutputs
	clear(buf[1:gpioOutputsHeaderSize])
	for i, out := range o.outputs {
		binary.LittleEndian.PutUint64(buf[gpioOutputsHeaderSize+8*i:], out.Encode())
	}
	o.done = true

	return gpioOutputsSize, nil
}
