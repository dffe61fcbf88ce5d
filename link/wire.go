package link

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet wire constants shared by the byte-oriented transports.
//
// Packet layout: [magic u16 BE][version u8][kind u8][count u16 LE][length u32 LE][body...]
const (
	PacketMagic      uint16 = 0x4144 // "AD"
	PacketVersion    byte   = 1
	PacketHeaderSize        = 10

	// KindFrames carries one TxMessage per device, host to device.
	KindFrames byte = 0x01
	// KindAcks carries one RxMessage per device, device to host.
	KindAcks byte = 0x02

	// MaxPacketDevices bounds the device count of a packet so that a frame set
	// always fits a single UDP datagram.
	MaxPacketDevices = (65507 - PacketHeaderSize) / FrameSize
)

var (
	// ErrInvalidMagic is returned for a packet that does not start with PacketMagic.
	ErrInvalidMagic = errors.New("link: invalid packet magic")
	// ErrPacketVersion is returned for a packet of an unsupported wire version.
	ErrPacketVersion = errors.New("link: unsupported packet version")
	// ErrPacketTooLarge is returned when a frame set exceeds MaxPacketDevices.
	ErrPacketTooLarge = errors.New("link: packet exceeds the maximum device count")
)

// Packet is a decoded transport packet.
type Packet struct {
	Kind  byte
	Count int
	Body  []byte
}

// EncodeFrames serializes a frame set into a KindFrames packet.
func EncodeFrames(tx []TxMessage) ([]byte, error) {
	if len(tx) > MaxPacketDevices {
		return nil, fmt.Errorf("%w: %d devices", ErrPacketTooLarge, len(tx))
	}

	buf := putHeader(KindFrames, len(tx), len(tx)*FrameSize)
	for i := range tx {
		buf = append(buf, tx[i].Bytes()...)
	}

	return buf, nil
}

// EncodeAcks serializes acknowledgments into a KindAcks packet.
func EncodeAcks(rx []RxMessage) []byte {
	buf := putHeader(KindAcks, len(rx), len(rx)*RxSize)
	for _, r := range rx {
		buf = append(buf, r.Data(), r.Ack())
	}

	return buf
}

func putHeader(kind byte, count, length int) []byte {
	buf := make([]byte, PacketHeaderSize, PacketHeaderSize+length)
	binary.BigEndian.PutUint16(buf[0:2], PacketMagic)
	buf[2] = PacketVersion
	buf[3] = kind
	binary.LittleEndian.PutUint16(buf[4:6], uint16(count))   //nolint:gosec // bounded by MaxPacketDevices
	binary.LittleEndian.PutUint32(buf[6:10], uint32(length)) //nolint:gosec // bounded by the count

	return buf
}

// DecodePacket parses a whole packet held in b.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < PacketHeaderSize {
		return Packet{}, fmt.Errorf("%w: packet too short (%d bytes)", ErrInvalidFrame, len(b))
	}
	p, length, err := parseHeader(b[:PacketHeaderSize])
	if err != nil {
		return Packet{}, err
	}
	if len(b)-PacketHeaderSize != length {
		return Packet{}, fmt.Errorf("%w: declared length %d, got %d", ErrInvalidFrame, length, len(b)-PacketHeaderSize)
	}
	p.Body = b[PacketHeaderSize:]

	return p, p.validate()
}

// ReadPacket reads one packet from a byte stream.
func ReadPacket(r io.Reader) (Packet, error) {
	var hdr [PacketHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, err
	}
	p, length, err := parseHeader(hdr[:])
	if err != nil {
		return Packet{}, err
	}
	if length > MaxPacketDevices*FrameSize {
		return Packet{}, fmt.Errorf("%w: declared length %d", ErrPacketTooLarge, length)
	}
	p.Body = make([]byte, length)
	if _, err := io.ReadFull(r, p.Body); err != nil {
		return Packet{}, err
	}

	return p, p.validate()
}

func parseHeader(hdr []byte) (Packet, int, error) {
	if binary.BigEndian.Uint16(hdr[0:2]) != PacketMagic {
		return Packet{}, 0, ErrInvalidMagic
	}
	if hdr[2] != PacketVersion {
		return Packet{}, 0, fmt.Errorf("%w: %d", ErrPacketVersion, hdr[2])
	}

	p := Packet{
		Kind:  hdr[3],
		Count: int(binary.LittleEndian.Uint16(hdr[4:6])),
	}

	return p, int(binary.LittleEndian.Uint32(hdr[6:10])), nil
}

func (p Packet) validate() error {
	var size int
	switch p.Kind {
	case KindFrames:
		size = FrameSize
	case KindAcks:
		size = RxSize
	default:
		return fmt.Errorf("%w: unknown packet kind 0x%02X", ErrInvalidFrame, p.Kind)
	}
	if len(p.Body) != p.Count*size {
		return fmt.Errorf("%w: %d bytes for %d entries", ErrInvalidFrame, len(p.Body), p.Count)
	}

	return nil
}

// Frames returns the frame set carried by a KindFrames packet.
func (p Packet) Frames() ([]TxMessage, error) {
	if p.Kind != KindFrames {
		return nil, fmt.Errorf("%w: packet kind 0x%02X carries no frames", ErrInvalidFrame, p.Kind)
	}
	tx := AllocTx(p.Count)
	for i := range tx {
		tx[i].SetBytes(p.Body[i*FrameSize : (i+1)*FrameSize])
	}

	return tx, nil
}

// Acks copies the acknowledgments of a KindAcks packet into rx.
// It returns ErrFrameCount if the packet does not hold exactly len(rx) entries.
func (p Packet) Acks(rx []RxMessage) error {
	if p.Kind != KindAcks {
		return fmt.Errorf("%w: packet kind 0x%02X carries no acks", ErrInvalidFrame, p.Kind)
	}
	if p.Count != len(rx) {
		return ErrFrameCount
	}
	for i := range rx {
		rx[i] = NewRxMessage(p.Body[i*RxSize], p.Body[i*RxSize+1])
	}

	return nil
}

// Respond delivers the frames of p to l and returns the resulting KindAcks
// packet. It is the device side of the packet transports.
func Respond(ctx context.Context, l Link, p Packet) ([]byte, error) {
	tx, err := p.Frames()
	if err != nil {
		return nil, err
	}
	if err := l.Send(ctx, tx); err != nil {
		return nil, err
	}

	rx := make([]RxMessage, p.Count)
	if err := l.Receive(ctx, rx); err != nil {
		return nil, err
	}

	return EncodeAcks(rx), nil
}
