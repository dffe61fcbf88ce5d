package datagram

import (
	"fmt"
	"math"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// Modulation produces an amplitude modulation buffer.
type Modulation interface {
	// Samples returns the buffer; it is sent to every device unchanged.
	Samples() ([]uint8, error)
	// SamplingConfig returns the rate the buffer is played at.
	SamplingConfig() firmware.SamplingConfig
}

// ModulationDatagram sends a Modulation as a multi-frame segment write.
type ModulationDatagram struct {
	mod Modulation
}

var _ SegmentWriter = ModulationDatagram{}

// NewModulation wraps m into a datagram.
func NewModulation(m Modulation) ModulationDatagram { return ModulationDatagram{mod: m} }

func (d ModulationDatagram) Category() segment.Category { return segment.Modulation }

func (d ModulationDatagram) Option() Option { return DefaultOption() }

func (d ModulationDatagram) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return d.SegmentGenerator(ctx, DefaultSegmentTarget())
}

func (d ModulationDatagram) SegmentGenerator(ctx *BuildContext, target SegmentTarget) (operation.Generator, error) {
	if err := checkTarget(ctx, target); err != nil {
		return nil, err
	}
	config := d.mod.SamplingConfig()
	if config.FreqDiv == 0 {
		return nil, ErrSamplingFreqDivInvalid
	}
	samples, err := d.mod.Samples()
	if err != nil {
		return nil, err
	}
	if limit := ctx.Limits().ModBufSizeMax; len(samples) < firmware.ModBufSizeMin || len(samples) > limit {
		return nil, fmt.Errorf("%w: %d samples, expected %d to %d",
			ErrModulationSizeOutOfRange, len(samples), firmware.ModBufSizeMin, limit)
	}

	return forEachDevice(ctx, func(*geometry.Device) operation.Operation {
		return operation.NewModulation(samples, config, target.Loop, target.Segment, target.Transition)
	}), nil
}

// Static is a constant modulation.
type Static struct {
	Intensity uint8
}

// NewStatic returns a Static modulation at full intensity.
func NewStatic() Static { return Static{Intensity: firmware.MaxIntensity} }

func (m Static) Samples() ([]uint8, error) {
	return []uint8{m.Intensity, m.Intensity}, nil
}

func (Static) SamplingConfig() firmware.SamplingConfig { return firmware.Freq4K }

// Sine is a sinusoidal modulation with an integer frequency in Hz.
//
// The buffer holds the smallest whole number of periods that exactly matches
// Freq at the sampling rate.
type Sine struct {
	Freq      int
	Intensity uint8
	Offset    uint8
	// Phase is the phase of the first sample, in radians.
	Phase  float64
	Config firmware.SamplingConfig
}

// NewSine returns a full-swing Sine of freq Hz sampled at 4 kHz.
func NewSine(freq int) Sine {
	return Sine{Freq: freq, Intensity: firmware.MaxIntensity, Offset: 128, Config: firmware.Freq4K}
}

func (m Sine) SamplingConfig() firmware.SamplingConfig { return m.Config }

func (m Sine) Samples() ([]uint8, error) {
	n, cycles, err := periodSamples(m.Freq, m.Config)
	if err != nil {
		return nil, err
	}
	buf := make([]uint8, n)
	for i := range buf {
		v := float64(m.Intensity)/2*math.Sin(2*math.Pi*float64(cycles*i)/float64(n)+m.Phase) + float64(m.Offset)
		buf[i] = uint8(math.Round(min(max(v, 0), 255)))
	}

	return buf, nil
}

// Square is a square-wave modulation with an integer frequency in Hz.
type Square struct {
	Freq int
	Low  uint8
	High uint8
	// Duty is the fraction of each period spent at High, in (0, 1).
	Duty   float64
	Config firmware.SamplingConfig
}

// NewSquare returns a Square of freq Hz with a 50% duty cycle sampled at 4 kHz.
func NewSquare(freq int) Square {
	return Square{Freq: freq, Low: 0, High: firmware.MaxIntensity, Duty: 0.5, Config: firmware.Freq4K}
}

func (m Square) SamplingConfig() firmware.SamplingConfig { return m.Config }

func (m Square) Samples() ([]uint8, error) {
	if m.Duty <= 0 || m.Duty >= 1 {
		return nil, fmt.Errorf("%w: duty %g", ErrModulationFreqOutOfRange, m.Duty)
	}
	n, cycles, err := periodSamples(m.Freq, m.Config)
	if err != nil {
		return nil, err
	}
	buf := make([]uint8, n)
	for i := range buf {
		pos := float64((cycles*i)%n) / float64(n)
		if pos < m.Duty {
			buf[i] = m.High
		} else {
			buf[i] = m.Low
		}
	}

	return buf, nil
}

// CustomModulation plays back a caller-provided buffer.
type CustomModulation struct {
	Buffer []uint8
	Config firmware.SamplingConfig
}

func (m CustomModulation) Samples() ([]uint8, error) { return m.Buffer, nil }

func (m CustomModulation) SamplingConfig() firmware.SamplingConfig { return m.Config }

// periodSamples returns the buffer length and the number of periods it holds
// for a frequency of freq Hz at the sampling rate of config.
func periodSamples(freq int, config firmware.SamplingConfig) (int, int, error) {
	if config.FreqDiv == 0 {
		return 0, 0, ErrSamplingFreqDivInvalid
	}
	// the sampling rate is 40 kHz divided by FreqDiv; scale to keep it integral
	fs := firmware.UltrasoundFreq
	f := freq * int(config.FreqDiv)
	if freq <= 0 || 2*f > fs {
		return 0, 0, fmt.Errorf("%w: %d Hz at %g Hz sampling", ErrModulationFreqOutOfRange, freq, config.Freq())
	}
	g := gcd(fs, f)

	return fs / g, f / g, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}
