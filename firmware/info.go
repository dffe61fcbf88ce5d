package firmware

import "fmt"

// InfoType selects which version byte a FirmwareInfo operation asks for.
type InfoType uint8

const (
	InfoCPUMajor      InfoType = 0x01
	InfoCPUMinor      InfoType = 0x02
	InfoFPGAMajor     InfoType = 0x03
	InfoFPGAMinor     InfoType = 0x04
	InfoFPGAFunctions InfoType = 0x05
	InfoClear         InfoType = 0x06
)

// Valid reports whether t is a known info type.
func (t InfoType) Valid() bool { return t >= InfoCPUMajor && t <= InfoClear }

// FPGA function bits.
const (
	FPGAFunctionEmulator uint8 = 1 << 7
)

// Info is the firmware information of one device.
type Info struct {
	Idx           int
	CPUMajor      uint8
	CPUMinor      uint8
	FPGAMajor     uint8
	FPGAMinor     uint8
	FPGAFunctions uint8
}

// Version returns the generation of the device, derived from its CPU major version.
func (i Info) Version() (Version, error) {
	return VersionFromCPUMajor(i.CPUMajor)
}

// IsEmulator reports whether the FPGA is an emulator.
func (i Info) IsEmulator() bool { return i.FPGAFunctions&FPGAFunctionEmulator != 0 }

func versionString(major, minor uint8) string {
	switch {
	case major == 0:
		return "older than v0.4"
	case major >= 0x01 && major <= 0x06:
		return fmt.Sprintf("v0.%d", major+3)
	case major >= 0x0A && major <= 0x15:
		return fmt.Sprintf("v1.%d", major-0x0A)
	case major >= 0x80 && major <= 0x89:
		return fmt.Sprintf("v2.%d.%d", major-0x80, minor)
	case major >= 0xA0 && major <= 0xA4:
		return fmt.Sprintf("v%d.%d.%d", major-0xA0+8, minor>>4, minor&0x0F)
	case major == 0xA5:
		return fmt.Sprintf("v12.1.%d", minor)
	default:
		return fmt.Sprintf("unknown (%d)", major)
	}
}

// CPUVersion returns the human readable CPU firmware version.
func (i Info) CPUVersion() string { return versionString(i.CPUMajor, i.CPUMinor) }

// FPGAVersion returns the human readable FPGA firmware version.
func (i Info) FPGAVersion() string {
	v := versionString(i.FPGAMajor, i.FPGAMinor)
	if i.IsEmulator() {
		v += " [Emulator]"
	}

	return v
}

func (i Info) String() string {
	return fmt.Sprintf("%d: CPU = %s, FPGA = %s", i.Idx, i.CPUVersion(), i.FPGAVersion())
}
