package datagram

import (
	"fmt"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
)

// Default silencer completion steps.
const (
	DefaultSilencerIntensitySteps uint16 = 10
	DefaultSilencerPhaseSteps     uint16 = 40
)

// SilencerConfig is the filter setting of a Silencer.
type SilencerConfig interface {
	params() (fixedUpdateRate bool, intensity uint16, phase uint16)
}

// FixedCompletionSteps makes every change complete within a fixed number of
// 40 kHz ticks.
type FixedCompletionSteps struct {
	Intensity uint16
	Phase     uint16
}

func (c FixedCompletionSteps) params() (bool, uint16, uint16) { return false, c.Intensity, c.Phase }

// FixedUpdateRate limits how much phase and intensity may change per tick.
type FixedUpdateRate struct {
	Intensity uint16
	Phase     uint16
}

func (c FixedUpdateRate) params() (bool, uint16, uint16) { return true, c.Intensity, c.Phase }

// Silencer configures the device-side low-pass filter on phase and intensity.
type Silencer struct {
	Config SilencerConfig
	// Strict makes the device reject modulation and STM sampling rates faster
	// than the completion steps. It has no effect with FixedUpdateRate.
	Strict bool
}

// DefaultSilencer returns the power-on silencer setting.
func DefaultSilencer() Silencer {
	return Silencer{
		Config: FixedCompletionSteps{Intensity: DefaultSilencerIntensitySteps, Phase: DefaultSilencerPhaseSteps},
		Strict: true,
	}
}

// DisabledSilencer returns a silencer that applies every change at once.
func DisabledSilencer() Silencer {
	return Silencer{Config: FixedCompletionSteps{Intensity: 1, Phase: 1}, Strict: true}
}

func (d Silencer) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	cfg := d.Config
	if cfg == nil {
		cfg = DefaultSilencer().Config
	}
	fixedUpdateRate, intensity, phase := cfg.params()
	if intensity == 0 || phase == 0 {
		return nil, fmt.Errorf("%w: intensity %d, phase %d", ErrSilencerInvalidValue, intensity, phase)
	}
	strict := d.Strict && !fixedUpdateRate

	return forEachDevice(ctx, func(*geometry.Device) operation.Operation {
		return operation.NewSilencer(fixedUpdateRate, strict, intensity, phase)
	}), nil
}

func (Silencer) Option() Option { return DefaultOption() }
