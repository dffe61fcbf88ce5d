// Package firmware holds the wire-level vocabulary shared by every layer of go-autd:
// the supported firmware generations and their limits, operation tags and flags,
// segments and transition modes, drive values, and the fixed table that maps
// acknowledgment error codes to Go errors.
//
// Four wire-format generations are supported. They are modeled as the closed
// Version enumeration; code that needs generation-specific layouts switches on it
// instead of dispatching through an open interface.
package firmware
