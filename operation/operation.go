// Package operation implements the incremental codec units that serialize
// commands into device frames.
//
// An Operation belongs to exactly one device and one frame slot. The sender asks
// it how many bytes it needs at minimum, lets it write itself into the free part
// of the frame payload, and polls IsDone to find out whether more rounds are
// needed. Payloads larger than one frame (modulation buffers, STM sequences)
// are streamed over several rounds using begin/continuation/end flags.
//
// A Generator yields the pair of operations occupying the two slots of a
// device's frame. The Handler packs those pairs into frames, sequentially or on
// a bounded worker pool.
package operation

import (
	"errors"

	"github.com/arloliu/go-autd/geometry"
)

var (
	// ErrRequiredSizeTooLarge is returned when an operation cannot fit into an empty frame.
	ErrRequiredSizeTooLarge = errors.New("operation: required size exceeds frame payload")
	// ErrBufferTooSmall is returned when Pack is given less room than RequiredSize.
	ErrBufferTooSmall = errors.New("operation: buffer is smaller than the required size")
	// ErrFociSTMPointOutOfRange is returned when a focus does not fit the fixed-point wire format.
	ErrFociSTMPointOutOfRange = errors.New("operation: FociSTM point is out of range")
	// ErrGainTransducerCountMismatch is returned when a gain does not provide one drive per transducer.
	ErrGainTransducerCountMismatch = errors.New("operation: number of drives does not match the number of transducers")
	// ErrTransducerCountMismatch is returned when a per-transducer table has the wrong length.
	ErrTransducerCountMismatch = errors.New("operation: table length does not match the number of transducers")
	// ErrAlreadyDone is returned when Pack is called on a finished operation.
	ErrAlreadyDone = errors.New("operation: operation is already done")
)

// Operation is the per-device, per-slot codec state of a command.
//
// Pack may be called several times on the same instance; after each call
// IsDone reports whether the whole payload has been written. Pack validates
// before writing, so a failed Pack leaves the caller with a frame that must
// not be transmitted.
type Operation interface {
	// RequiredSize returns the minimum number of bytes Pack needs for dev.
	RequiredSize(dev *geometry.Device) int
	// Pack writes the next chunk into buf and returns the number of bytes written.
	Pack(dev *geometry.Device, buf []byte) (int, error)
	// IsDone reports whether all data has been written.
	IsDone() bool
}

// Generator yields the two operations of a device's frame.
//
// ok is false when the device is excluded from the send entirely, which is
// different from returning Nop operations for an idle slot.
type Generator interface {
	Generate(dev *geometry.Device) (op1 Operation, op2 Operation, ok bool)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(dev *geometry.Device) (Operation, Operation, bool)

func (f GeneratorFunc) Generate(dev *geometry.Device) (Operation, Operation, bool) { return f(dev) }

// Nop fills an unused slot: it needs no bytes, writes nothing and is always done.
type Nop struct{}

var _ Operation = Nop{}

func (Nop) RequiredSize(*geometry.Device) int { return 0 }

func (Nop) Pack(*geometry.Device, []byte) (int, error) { return 0, nil }

func (Nop) IsDone() bool { return true }

// single is the shared state of operations that always fit into one frame.
type single struct {
	done bool
}

func (s *single) IsDone() bool { return s.done }

// begin checks that the operation may be packed into buf, which needs size bytes.
func (s *single) begin(buf []byte, size int) error {
	if s.done {
		return ErrAlreadyDone
	}
	if len(buf) < size {
		return ErrBufferTooSmall
	}

	return nil
}

func evenSize(n int) int { return (n + 1) &^ 1 }
