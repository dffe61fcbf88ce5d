package sender

import "errors"

var (
	// ErrConstruction wraps the error of a datagram that could not be built.
	// Nothing has been transmitted when it is returned.
	ErrConstruction = errors.New("sender: failed to build datagram")
	// ErrConfirmResponseFailed is returned when the devices do not acknowledge a
	// round within the timeout.
	ErrConfirmResponseFailed = errors.New("sender: failed to confirm the response from the devices")
	// ErrReadFirmwareInfoFailed is returned when a firmware information query is not acknowledged.
	ErrReadFirmwareInfoFailed = errors.New("sender: failed to read firmware information")
	// ErrReadFPGAStateFailed is returned when the FPGA state of a device cannot be read.
	ErrReadFPGAStateFailed = errors.New("sender: failed to read FPGA state")
)
