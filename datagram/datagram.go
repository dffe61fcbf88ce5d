package datagram

import (
	"errors"
	"math"
	"time"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

var (
	// ErrModulationSizeOutOfRange is returned when a modulation buffer is too short or too long.
	ErrModulationSizeOutOfRange = errors.New("datagram: modulation buffer size is out of range")
	// ErrModulationFreqOutOfRange is returned when a periodic modulation cannot be sampled at its frequency.
	ErrModulationFreqOutOfRange = errors.New("datagram: modulation frequency is out of range")
	// ErrSTMSizeOutOfRange is returned when an STM sequence is too short or too long.
	ErrSTMSizeOutOfRange = errors.New("datagram: STM size is out of range")
	// ErrFociSTMNumFociOutOfRange is returned when a FociSTM step has too few or too many foci.
	ErrFociSTMNumFociOutOfRange = errors.New("datagram: number of foci is out of range")
	// ErrSamplingFreqDivInvalid is returned for a zero sampling frequency divider.
	ErrSamplingFreqDivInvalid = errors.New("datagram: sampling frequency divider must not be zero")
	// ErrSilencerInvalidValue is returned for a zero silencer parameter.
	ErrSilencerInvalidValue = errors.New("datagram: silencer parameters must not be zero")
	// ErrPulseWidthOutOfRange is returned when a pulse width does not fit the carrier period.
	ErrPulseWidthOutOfRange = errors.New("datagram: pulse width is out of range")
	// ErrGainTransducerCountMismatch is returned when a gain yields the wrong number of drives.
	ErrGainTransducerCountMismatch = errors.New("datagram: number of drives does not match the number of transducers")
	// ErrInvalidGainTransition is returned when a gain is asked for a transition other than Immediate or Later.
	ErrInvalidGainTransition = errors.New("datagram: gain only supports Immediate and Later transitions")
	// ErrUnknownKey is returned by Group when a device maps to a key with no entry.
	ErrUnknownKey = errors.New("datagram: group key has no datagram")
	// ErrUnusedKey is returned by Group when an entry matches no device.
	ErrUnusedKey = errors.New("datagram: group datagram matches no device")
	// ErrBoxedConsumed is returned when a Boxed datagram is built a second time.
	ErrBoxedConsumed = errors.New("datagram: boxed datagram was already consumed")
)

// Default option values.
const (
	DefaultTimeout           = 20 * time.Millisecond
	DefaultParallelThreshold = 4
	// HousekeepingTimeout is the timeout of commands that reset device state.
	HousekeepingTimeout = 200 * time.Millisecond
)

// Option carries the per-datagram transmission preferences.
type Option struct {
	// Timeout is how long the sender waits for the acknowledgment of each round.
	Timeout time.Duration
	// ParallelThreshold is the number of devices above which frames are packed in parallel.
	ParallelThreshold int
}

// DefaultOption returns the option of a datagram that has no special needs.
func DefaultOption() Option {
	return Option{Timeout: DefaultTimeout, ParallelThreshold: DefaultParallelThreshold}
}

// Merge combines two options: the longer timeout and the lower threshold win.
func (o Option) Merge(other Option) Option {
	return Option{
		Timeout:           max(o.Timeout, other.Timeout),
		ParallelThreshold: min(o.ParallelThreshold, other.ParallelThreshold),
	}
}

// identityOption is the neutral element of Merge.
func identityOption() Option {
	return Option{Timeout: 0, ParallelThreshold: math.MaxInt}
}

// Datagram is a command that can be transmitted to a geometry.
type Datagram interface {
	// OperationGenerator validates the command and returns the generator of
	// its per-device operations.
	OperationGenerator(ctx *BuildContext) (operation.Generator, error)
	// Option returns the transmission preferences of the command.
	Option() Option
}

// BuildContext is the environment a datagram is built in.
type BuildContext struct {
	Geometry *geometry.Geometry
	// Mask selects the devices taking part in the send.
	Mask geometry.DeviceMask
	// Version is the firmware generation of the devices.
	Version firmware.Version
	// Segments is the host-side mirror of the device segment state, indexed by
	// device. A nil slice or entry stands for the power-on state.
	Segments []*segment.Machine
}

// NewBuildContext returns a context covering every enabled device of geo.
func NewBuildContext(geo *geometry.Geometry, version firmware.Version, segments []*segment.Machine) *BuildContext {
	return &BuildContext{
		Geometry: geo,
		Mask:     geometry.AllEnabled(),
		Version:  version,
		Segments: segments,
	}
}

// Limits returns the buffer limits of the context's firmware generation.
func (c *BuildContext) Limits() firmware.Limits { return c.version().Limits() }

func (c *BuildContext) version() firmware.Version {
	if !c.Version.Valid() {
		return firmware.Latest
	}

	return c.Version
}

// Segment returns the mirrored segment state of dev.
func (c *BuildContext) Segment(dev *geometry.Device) *segment.Machine {
	if dev.Idx() < len(c.Segments) && c.Segments[dev.Idx()] != nil {
		return c.Segments[dev.Idx()]
	}

	return segment.New()
}

// withMask returns a copy of c restricted to mask.
func (c *BuildContext) withMask(mask geometry.DeviceMask) *BuildContext {
	cp := *c
	cp.Mask = mask

	return &cp
}

// forEachDevice returns a generator yielding f's operation in slot 1 for every
// device of the context's mask.
func forEachDevice(ctx *BuildContext, f func(dev *geometry.Device) operation.Operation) operation.Generator {
	mask := ctx.Mask
	return operation.GeneratorFunc(func(dev *geometry.Device) (operation.Operation, operation.Operation, bool) {
		if !mask.Has(dev) {
			return nil, nil, false
		}
		return f(dev), operation.Nop{}, true
	})
}
