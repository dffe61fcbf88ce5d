package firmware

import "math"

// Drive is the output of a single transducer.
type Drive struct {
	Phase     uint8
	Intensity uint8
}

// NullDrive turns a transducer off.
var NullDrive = Drive{}

// MaxIntensity is the full-scale intensity value.
const MaxIntensity uint8 = 0xFF

// PhaseFromRad converts a phase in radians to the 8-bit wire representation.
func PhaseFromRad(rad float64) uint8 {
	p := math.Mod(rad/(2*math.Pi), 1)
	if p < 0 {
		p++
	}

	return uint8(int(math.Round(p*256)) & 0xFF)
}

// UltrasoundFreq is the carrier frequency in Hz.
const UltrasoundFreq = 40000

// SamplingConfig is the sampling frequency of modulation and STM data,
// expressed as a divider of the 40kHz carrier.
type SamplingConfig struct {
	FreqDiv uint16
}

// Freq4K samples at 4kHz, the default for modulation.
var Freq4K = SamplingConfig{FreqDiv: 10}

// FreqNearest returns the configuration whose frequency is closest to hz.
func FreqNearest(hz float64) SamplingConfig {
	if hz <= 0 {
		return SamplingConfig{}
	}
	div := math.Round(UltrasoundFreq / hz)
	if div < 1 {
		div = 1
	}
	if div > math.MaxUint16 {
		div = math.MaxUint16
	}

	return SamplingConfig{FreqDiv: uint16(div)}
}

// Freq returns the sampling frequency in Hz, or 0 for an invalid configuration.
func (c SamplingConfig) Freq() float64 {
	if c.FreqDiv == 0 {
		return 0
	}

	return UltrasoundFreq / float64(c.FreqDiv)
}

// LoopBehavior is how many times a finite segment repeats before the device
// falls through to the other one. The wire value is the repeat count minus one,
// with 0xFFFF meaning infinite.
type LoopBehavior struct {
	rep uint16
}

// Infinite loops forever.
func Infinite() LoopBehavior { return LoopBehavior{rep: 0xFFFF} }

// Once plays the segment a single time.
func Once() LoopBehavior { return LoopBehavior{rep: 0} }

// Finite plays the segment n times. n must be in [1, 65535].
func Finite(n uint16) LoopBehavior {
	if n == 0 {
		n = 1
	}

	return LoopBehavior{rep: n - 1}
}

// LoopFromRep decodes the wire repetition count.
func LoopFromRep(rep uint16) LoopBehavior { return LoopBehavior{rep: rep} }

// Rep returns the wire value.
func (l LoopBehavior) Rep() uint16 { return l.rep }

// IsInfinite reports whether the behavior loops forever.
func (l LoopBehavior) IsInfinite() bool { return l.rep == 0xFFFF }
