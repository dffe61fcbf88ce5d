// Package datagram defines the commands a Sender can transmit.
//
// A Datagram is a value describing a command for the whole geometry. At send
// time it is turned into an operation.Generator through OperationGenerator,
// which may fail with a construction error before any device is touched. The
// BuildContext passed to it carries the geometry, the set of devices taking
// part in the send, the firmware generation and the host-side segment mirror.
//
// Combinators compose datagrams: Pair places two commands into the same frame,
// Group dispatches different commands to different device subsets and Boxed
// erases the concrete type of a command so it can be stored and sent once.
//
// Data commands (gains, modulations and spatio-temporal modulations) write into
// one of two segments. They target S0 with an Immediate transition unless they
// are wrapped with WithSegment, WithLoopBehavior or Glitchless.
package datagram
