package link

import (
	"context"
	"errors"

	"github.com/arloliu/go-autd/geometry"
)

var (
	// ErrLinkClosed is returned by operations on a link that is not open.
	ErrLinkClosed = errors.New("link: link is closed")
	// ErrFrameCount is returned when the number of frames does not match the geometry.
	ErrFrameCount = errors.New("link: frame count does not match the number of devices")
	// ErrInvalidFrame is returned when a received frame cannot be decoded.
	ErrInvalidFrame = errors.New("link: invalid frame")
)

// Link is the transport between the host and the devices.
//
// The sender borrows a link exclusively for the duration of a send: calls are
// never concurrent and exactly one frame set is in flight at a time.
type Link interface {
	// Open connects the transport for the given geometry.
	Open(ctx context.Context, geo *geometry.Geometry) error
	// Close releases the transport. Closing a closed link is a no-op.
	Close() error
	// IsOpen reports whether the link is usable.
	IsOpen() bool
	// AllocTx returns n zeroed frames to be filled and passed to Send.
	AllocTx(n int) ([]TxMessage, error)
	// Send transmits one frame per device.
	Send(ctx context.Context, tx []TxMessage) error
	// Receive fills rx with the latest acknowledgment of each device.
	Receive(ctx context.Context, rx []RxMessage) error
}

// Updater is implemented by links that need to observe geometry changes
// (e.g. devices being disabled) before each send.
type Updater interface {
	Update(geo *geometry.Geometry) error
}

// EnsureIsOpen returns ErrLinkClosed if l is not open.
func EnsureIsOpen(l Link) error {
	if l == nil || !l.IsOpen() {
		return ErrLinkClosed
	}

	return nil
}

// Update calls l.Update if l implements Updater.
func Update(l Link, geo *geometry.Geometry) error {
	if u, ok := l.(Updater); ok {
		return u.Update(geo)
	}

	return nil
}
