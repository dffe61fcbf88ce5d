package firmware

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFirmware is returned when a device reports a CPU major version
	// outside of the supported generations.
	ErrUnsupportedFirmware = errors.New("firmware: unsupported firmware version")
	// ErrFirmwareVersionMismatch is returned when devices on the same bus run different generations.
	ErrFirmwareVersionMismatch = errors.New("firmware: firmware versions of devices do not match")
	// ErrUnsupportedTransitionMode is returned at build time when a transition mode is
	// not available on the target generation.
	ErrUnsupportedTransitionMode = errors.New("firmware: transition mode is not supported by this firmware version")
	// ErrUnsupportedOperation is returned at build time when a command is not available
	// on the target generation.
	ErrUnsupportedOperation = errors.New("firmware: operation is not supported by this firmware version")
)

// Version is a wire-format generation.
type Version uint8

const (
	V10 Version = iota + 1
	V11
	V12
	V12_1
)

// Latest is the newest supported generation.
const Latest = V12_1

// CPU major version numbers reported by each generation.
const (
	cpuMajorV10   = 0xA2
	cpuMajorV11   = 0xA3
	cpuMajorV12   = 0xA4
	cpuMajorV12_1 = 0xA5
)

// VersionFromCPUMajor maps the CPU major byte reported by a device to a Version.
func VersionFromCPUMajor(major uint8) (Version, error) {
	switch major {
	case cpuMajorV10:
		return V10, nil
	case cpuMajorV11:
		return V11, nil
	case cpuMajorV12:
		return V12, nil
	case cpuMajorV12_1:
		return V12_1, nil
	default:
		return 0, fmt.Errorf("%w: cpu major 0x%02X", ErrUnsupportedFirmware, major)
	}
}

// ParseVersion parses names like "v10", "v11", "v12" and "v12.1".
func ParseVersion(s string) (Version, error) {
	switch s {
	case "v10", "V10", "10":
		return V10, nil
	case "v11", "V11", "11":
		return V11, nil
	case "v12", "V12", "12":
		return V12, nil
	case "v12.1", "V12.1", "12.1", "v12_1":
		return V12_1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFirmware, s)
	}
}

// Valid reports whether v is one of the supported generations.
func (v Version) Valid() bool { return v >= V10 && v <= V12_1 }

// CPUMajor returns the CPU major version number of v.
func (v Version) CPUMajor() uint8 {
	switch v {
	case V10:
		return cpuMajorV10
	case V11:
		return cpuMajorV11
	case V12:
		return cpuMajorV12
	case V12_1:
		return cpuMajorV12_1
	default:
		return 0
	}
}

func (v Version) String() string {
	switch v {
	case V10:
		return "v10"
	case V11:
		return "v11"
	case V12:
		return "v12"
	case V12_1:
		return "v12.1"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

// Limits returns the buffer limits of v.
func (v Version) Limits() Limits {
	switch v {
	case V10, V11:
		return Limits{
			ModBufSizeMax:     32768,
			FociSTMBufSizeMax: 8192,
			GainSTMBufSizeMax: 1024,
			NumFociMax:        8,
		}
	default:
		return Limits{
			ModBufSizeMax:     65536,
			FociSTMBufSizeMax: 65536,
			GainSTMBufSizeMax: 1024,
			NumFociMax:        8,
		}
	}
}

// SupportsTransition reports whether mode can be used with v.
func (v Version) SupportsTransition(mode TransitionMode) bool {
	if mode.Kind() == TransitionGPIO {
		return v >= V11
	}

	return true
}

// SupportsOutputMask reports whether the OutputMask operation is available.
func (v Version) SupportsOutputMask() bool { return v >= V12_1 }

// SupportsGPIOOutput reports whether the FPGA of v can route t to a debug pin.
func (v Version) SupportsGPIOOutput(t GPIOOutputType) bool {
	return t != GPIOOutputSyncDiff || v >= V12
}

// WidePulseWidth reports whether pulse width encoder entries are 16 bits wide.
func (v Version) WidePulseWidth() bool { return v >= V11 }

// UltrasoundPeriod returns the number of PWM ticks per carrier period.
func (v Version) UltrasoundPeriod() int {
	if v >= V11 {
		return 512
	}

	return 256
}

// CheckTransition returns ErrUnsupportedTransitionMode if mode is not available on v.
func (v Version) CheckTransition(mode TransitionMode) error {
	if !v.SupportsTransition(mode) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedTransitionMode, mode, v)
	}

	return nil
}
