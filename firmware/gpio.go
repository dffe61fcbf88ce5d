package firmware

import "fmt"

// GPIOOut identifies a debug output pin of the FPGA.
type GPIOOut uint8

const (
	GPIOOut0 GPIOOut = iota
	GPIOOut1
	GPIOOut2
	GPIOOut3
)

// NumGPIO is the number of GPIO pins in each direction.
const NumGPIO = 4

// GPIOOutputType selects the signal routed to an FPGA debug output pin.
type GPIOOutputType uint8

// GPIO output types with their wire codes.
const (
	GPIOOutputNone       GPIOOutputType = 0x00
	GPIOOutputBaseSignal GPIOOutputType = 0x01
	GPIOOutputThermo     GPIOOutputType = 0x02
	GPIOOutputForceFan   GPIOOutputType = 0x03
	GPIOOutputSync       GPIOOutputType = 0x10
	GPIOOutputModSegment GPIOOutputType = 0x20
	GPIOOutputModIdx     GPIOOutputType = 0x21
	GPIOOutputStmSegment GPIOOutputType = 0x50
	GPIOOutputStmIdx     GPIOOutputType = 0x51
	GPIOOutputIsStmMode  GPIOOutputType = 0x52
	GPIOOutputSysTimeEq  GPIOOutputType = 0x60
	GPIOOutputSysTimeGe  GPIOOutputType = 0x61
	GPIOOutputSyncDiff   GPIOOutputType = 0x70
	GPIOOutputPwmOut     GPIOOutputType = 0xE0
	GPIOOutputDirect     GPIOOutputType = 0xF0
)

// gpioValueMask keeps the 56 bits left below the type byte.
const gpioValueMask = 0x00FF_FFFF_FFFF_FFFF

// GPIOOutput is the signal assigned to one debug output pin. Value carries the
// index, time, transducer or level the type needs.
type GPIOOutput struct {
	Type  GPIOOutputType
	Value uint64
}

// Encode packs the output into its 64-bit wire word, the type in the top byte.
func (o GPIOOutput) Encode() uint64 {
	return (o.Value & gpioValueMask) | uint64(o.Type)<<56
}

// DecodeGPIOOutput is the inverse of GPIOOutput.Encode.
func DecodeGPIOOutput(word uint64) GPIOOutput {
	return GPIOOutput{Type: GPIOOutputType(word >> 56), Value: word & gpioValueMask}
}

func (o GPIOOutput) String() string {
	return fmt.Sprintf("GPIOOutput(0x%02X, %d)", uint8(o.Type), o.Value)
}

// CPUGPIOPort holds the levels of the two CPU debug pins.
type CPUGPIOPort struct {
	PA5 bool
	PA7 bool
}

// Encode returns the port output data register value for the pins.
func (p CPUGPIOPort) Encode() uint8 {
	var b uint8
	if p.PA5 {
		b |= 1 << 5
	}
	if p.PA7 {
		b |= 1 << 7
	}

	return b
}

// DecodeCPUGPIOPort is the inverse of CPUGPIOPort.Encode.
func DecodeCPUGPIOPort(b uint8) CPUGPIOPort {
	return CPUGPIOPort{PA5: b&(1<<5) != 0, PA7: b&(1<<7) != 0}
}
