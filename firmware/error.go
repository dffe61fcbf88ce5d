package firmware

import (
	"errors"
	"fmt"
)

// Errors reported by devices through the acknowledgment byte.
var (
	ErrNotSupportedTag          = errors.New("firmware: not supported tag")
	ErrInvalidMessageID         = errors.New("firmware: invalid message id")
	ErrInvalidInfoType          = errors.New("firmware: invalid info type")
	ErrInvalidGainSTMMode       = errors.New("firmware: invalid gain STM mode")
	ErrInvalidSegmentTransition = errors.New("firmware: invalid segment transition")
	ErrMissTransitionTime       = errors.New("firmware: transition time is already past")
	ErrInvalidSilencerSettings  = errors.New("firmware: current sampling config is invalid with the silencer settings")
	ErrInvalidTransitionMode    = errors.New("firmware: invalid transition mode")
	ErrUnknownFirmwareError     = errors.New("firmware: unknown firmware error")
)

// Error codes carried in the low seven bits of an acknowledgment.
const (
	CodeNone                     uint8 = 0x00
	CodeNotSupportedTag          uint8 = 0x01
	CodeInvalidMessageID         uint8 = 0x02
	CodeInvalidInfoType          uint8 = 0x03
	CodeInvalidGainSTMMode       uint8 = 0x04
	CodeInvalidSegmentTransition uint8 = 0x05
	CodeMissTransitionTime       uint8 = 0x06
	CodeInvalidSilencerSettings  uint8 = 0x07
	CodeInvalidTransitionMode    uint8 = 0x08
)

var codeTable = map[uint8]error{
	CodeNotSupportedTag:          ErrNotSupportedTag,
	CodeInvalidMessageID:         ErrInvalidMessageID,
	CodeInvalidInfoType:          ErrInvalidInfoType,
	CodeInvalidGainSTMMode:       ErrInvalidGainSTMMode,
	CodeInvalidSegmentTransition: ErrInvalidSegmentTransition,
	CodeMissTransitionTime:       ErrMissTransitionTime,
	CodeInvalidSilencerSettings:  ErrInvalidSilencerSettings,
	CodeInvalidTransitionMode:    ErrInvalidTransitionMode,
}

// Error is a firmware-reported error for one device.
//
// It unwraps to one of the Err* sentinels above, so callers test it with errors.Is.
type Error struct {
	// Device is the index of the device that reported the error.
	Device int
	// Code is the raw error code.
	Code uint8

	err error
}

// NewError maps a raw error code reported by device dev to an *Error.
// Codes missing from the table map to ErrUnknownFirmwareError.
func NewError(dev int, code uint8) *Error {
	err, ok := codeTable[code]
	if !ok {
		err = ErrUnknownFirmwareError
	}

	return &Error{Device: dev, Code: code, err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (device %d, code 0x%02X)", e.err.Error(), e.Device, e.Code)
}

func (e *Error) Unwrap() error { return e.err }

// CodeOf returns the code of a sentinel error, and false if err is not one of them.
func CodeOf(err error) (uint8, bool) {
	for code, sentinel := range codeTable {
		if errors.Is(err, sentinel) {
			return code, true
		}
	}

	return CodeNone, false
}
