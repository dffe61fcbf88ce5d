package firmware

// Limits describes the device-side buffer capacities of a generation.
type Limits struct {
	// ModBufSizeMax is the maximum number of modulation samples.
	ModBufSizeMax int
	// FociSTMBufSizeMax is the maximum number of FociSTM points.
	FociSTMBufSizeMax int
	// GainSTMBufSizeMax is the maximum number of GainSTM patterns.
	GainSTMBufSizeMax int
	// NumFociMax is the maximum number of foci per FociSTM point.
	NumFociMax int
}

// Lower bounds shared by every generation.
const (
	ModBufSizeMin = 2
	STMBufSizeMin = 2
)
