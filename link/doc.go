// Package link defines the frame model exchanged with the devices and the
// transport interface the sender drives.
//
// Every transmission round carries exactly one TxMessage per device and is
// answered by exactly one RxMessage per device. A TxMessage is a fixed-capacity
// frame: a four byte header followed by a payload holding up to two operation
// blocks. An RxMessage is a two byte acknowledgment: a data byte and an ack byte
// that either echoes the 7-bit message id or carries an error code with the
// high bit set.
//
// Concrete transports live in sub-packages: emulator (in-memory devices),
// udp, serial and remote (WebSocket).
package link
