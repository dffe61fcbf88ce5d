package firmware

// Tag is the first byte of every operation block and selects its layout.
type Tag = uint8

// Operation tags.
const (
	TagNop                   Tag = 0x00
	TagClear                 Tag = 0x01
	TagSync                  Tag = 0x02
	TagFirmwareInfo          Tag = 0x03
	TagModulation            Tag = 0x10
	TagModulationSwapSegment Tag = 0x11
	TagSilencer              Tag = 0x20
	TagGain                  Tag = 0x30
	TagGainSwapSegment       Tag = 0x31
	TagFociSTM               Tag = 0x40
	TagGainSTM               Tag = 0x41
	TagFociSTMSwapSegment    Tag = 0x42
	TagGainSTMSwapSegment    Tag = 0x43
	TagForceFan              Tag = 0x60
	TagReadsFPGAState        Tag = 0x61
	TagPhaseCorrection       Tag = 0x80
	TagOutputMask            Tag = 0x90
	TagGPIOOutputs           Tag = 0xF0
	TagEmulateGPIOIn         Tag = 0xF1
	TagCPUGPIOOutputs        Tag = 0xF2

	// TagConfigPulseWidthEncoderV10 carries a table of 8-bit entries.
	TagConfigPulseWidthEncoderV10 Tag = 0x72
	// TagConfigPulseWidthEncoderV11 carries a table of 16-bit entries, from V11 on.
	TagConfigPulseWidthEncoderV11 Tag = 0x73
)

// Continuation flags of multi-frame operations.
const (
	FlagBegin      uint8 = 1 << 0
	FlagEnd        uint8 = 1 << 1
	FlagTransition uint8 = 1 << 2
	FlagSegment    uint8 = 1 << 3
)

// FlagGainUpdate asks the device to switch to the written gain segment immediately.
const FlagGainUpdate uint8 = 1 << 0

// Silencer flags.
const (
	FlagSilencerFixedUpdateRate uint8 = 1 << 0
	FlagSilencerStrict          uint8 = 1 << 1
)

// GainSTMMode selects how GainSTM patterns are compressed on the wire.
type GainSTMMode uint8

const (
	// GainSTMPhaseIntensityFull sends phase and intensity, one pattern per frame.
	GainSTMPhaseIntensityFull GainSTMMode = 0
	// GainSTMPhaseFull sends phase only, two patterns per frame.
	GainSTMPhaseFull GainSTMMode = 1
	// GainSTMPhaseHalf sends the upper four phase bits, four patterns per frame.
	GainSTMPhaseHalf GainSTMMode = 2
)

// PatternsPerFrame returns how many patterns fit in one frame for the mode.
func (m GainSTMMode) PatternsPerFrame() int {
	switch m {
	case GainSTMPhaseFull:
		return 2
	case GainSTMPhaseHalf:
		return 4
	default:
		return 1
	}
}

func (m GainSTMMode) String() string {
	switch m {
	case GainSTMPhaseIntensityFull:
		return "PhaseIntensityFull"
	case GainSTMPhaseFull:
		return "PhaseFull"
	case GainSTMPhaseHalf:
		return "PhaseHalf"
	default:
		return "Unknown"
	}
}
