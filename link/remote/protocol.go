package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
)

// Message types. Every request and response is one binary WebSocket message
// whose first byte is the type.
const (
	MsgHello          byte = 0x00
	MsgConfigGeometry byte = 0x01
	MsgUpdateGeometry byte = 0x02
	MsgSendData       byte = 0x03
	MsgReadData       byte = 0x04
	MsgClose          byte = 0x05

	MsgOK    byte = 0x80
	MsgError byte = 0x81
)

// Handshake constants.
const (
	ProtocolVersion uint16 = 1
	ProtocolMagic          = "AUTDREMOTE"
)

// Error codes carried by MsgError.
const (
	codeGeneric    byte = 0x00
	codeLinkClosed byte = 0x01
	codeFrameCount byte = 0x02
)

var (
	// ErrServer is returned when the server rejects a request.
	ErrServer = errors.New("remote: server error")
	// ErrProtocol is returned for a malformed message.
	ErrProtocol = errors.New("remote: protocol error")
)

func encodeHello() []byte {
	buf := make([]byte, 3, 3+len(ProtocolMagic))
	buf[0] = MsgHello
	binary.LittleEndian.PutUint16(buf[1:3], ProtocolVersion)

	return append(buf, ProtocolMagic...)
}

func decodeHello(b []byte) error {
	if len(b) != 2+len(ProtocolMagic) {
		return fmt.Errorf("%w: hello of %d bytes", ErrProtocol, len(b))
	}
	if v := binary.LittleEndian.Uint16(b[0:2]); v != ProtocolVersion {
		return fmt.Errorf("%w: unsupported protocol version %d", ErrProtocol, v)
	}
	if string(b[2:]) != ProtocolMagic {
		return fmt.Errorf("%w: invalid client magic", ErrProtocol)
	}

	return nil
}

// encodeGeometry layout:
//
//	[u32 devices] then per device:
//	[f32 x][f32 y][f32 z][f32 sound speed][u8 enable][u32 transducers][f32 x y z per transducer]
//
// Transducer positions are relative to the device origin.
func encodeGeometry(msgType byte, geo *geometry.Geometry) []byte {
	buf := []byte{msgType}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(geo.NumDevices())) //nolint:gosec // device count is small
	for _, dev := range geo.Devices() {
		o := dev.Origin()
		buf = appendPoint(buf, o)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(dev.SoundSpeed()))
		if dev.Enable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(dev.NumTransducers())) //nolint:gosec // transducer count is small
		for _, tr := range dev.Transducers() {
			buf = appendPoint(buf, tr.Position().Sub(o))
		}
	}

	return buf
}

func appendPoint(buf []byte, p geometry.Point3) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.X))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Y))

	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Z))
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("%w: message truncated", ErrProtocol)
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]

	return v
}

func (r *reader) u8() byte {
	if v := r.take(1); v != nil {
		return v[0]
	}

	return 0
}

func (r *reader) u32() uint32 {
	if v := r.take(4); v != nil {
		return binary.LittleEndian.Uint32(v)
	}

	return 0
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) point() geometry.Point3 {
	return geometry.Point3{X: r.f32(), Y: r.f32(), Z: r.f32()}
}

// decodeGeometry rebuilds a geometry, including the enable flags.
func decodeGeometry(b []byte) (*geometry.Geometry, error) {
	r := &reader{b: b}
	n := int(r.u32())
	if n > len(b) {
		return nil, fmt.Errorf("%w: %d devices in %d bytes", ErrProtocol, n, len(b))
	}

	specs := make([]geometry.DeviceSpec, 0, n)
	enable := make([]bool, 0, n)
	for range n {
		spec := geometry.DeviceSpec{Origin: r.point(), SoundSpeed: r.f32()}
		enable = append(enable, r.u8() != 0)
		numTrans := int(r.u32())
		if r.err == nil && numTrans*12 > len(r.b) {
			return nil, fmt.Errorf("%w: %d transducers in %d bytes", ErrProtocol, numTrans, len(r.b))
		}
		spec.Transducers = make([]geometry.Point3, numTrans)
		for i := range spec.Transducers {
			spec.Transducers[i] = r.point()
		}
		specs = append(specs, spec)
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrProtocol, len(r.b))
	}

	geo, err := geometry.New(specs...)
	if err != nil {
		return nil, err
	}
	for i, dev := range geo.Devices() {
		dev.Enable = enable[i]
	}

	return geo, nil
}

func encodeSendData(tx []link.TxMessage) []byte {
	buf := make([]byte, 5, 5+len(tx)*link.FrameSize)
	buf[0] = MsgSendData
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(tx))) //nolint:gosec // device count is small
	for i := range tx {
		buf = append(buf, tx[i].Bytes()...)
	}

	return buf
}

func decodeSendData(b []byte) ([]link.TxMessage, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: message truncated", ErrProtocol)
	}
	n := int(binary.LittleEndian.Uint32(b[0:4]))
	body := b[4:]
	if len(body) != n*link.FrameSize {
		return nil, fmt.Errorf("%w: %d bytes for %d frames", ErrProtocol, len(body), n)
	}

	tx := link.AllocTx(n)
	for i := range tx {
		tx[i].SetBytes(body[i*link.FrameSize : (i+1)*link.FrameSize])
	}

	return tx, nil
}

func encodeOK(body ...byte) []byte {
	return append([]byte{MsgOK}, body...)
}

func encodeRxData(rx []link.RxMessage) []byte {
	buf := make([]byte, 5, 5+len(rx)*link.RxSize)
	buf[0] = MsgOK
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(rx))) //nolint:gosec // device count is small
	for _, r := range rx {
		buf = append(buf, r.Data(), r.Ack())
	}

	return buf
}

func decodeRxData(b []byte, rx []link.RxMessage) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: message truncated", ErrProtocol)
	}
	n := int(binary.LittleEndian.Uint32(b[0:4]))
	body := b[4:]
	if len(body) != n*link.RxSize {
		return fmt.Errorf("%w: %d bytes for %d acknowledgments", ErrProtocol, len(body), n)
	}
	if n != len(rx) {
		return link.ErrFrameCount
	}
	for i := range rx {
		rx[i] = link.NewRxMessage(body[i*link.RxSize], body[i*link.RxSize+1])
	}

	return nil
}

func encodeError(err error) []byte {
	code := codeGeneric
	switch {
	case errors.Is(err, link.ErrLinkClosed):
		code = codeLinkClosed
	case errors.Is(err, link.ErrFrameCount):
		code = codeFrameCount
	}

	msg := err.Error()
	buf := []byte{MsgError, code}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(msg))) //nolint:gosec // error messages are short

	return append(buf, msg...)
}

// decodeResponse checks the status of a response and returns its body.
func decodeResponse(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrProtocol)
	}

	switch b[0] {
	case MsgOK:
		return b[1:], nil
	case MsgError:
		r := &reader{b: b[1:]}
		code := r.u8()
		msg := r.take(int(r.u32()))
		if r.err != nil {
			return nil, r.err
		}

		switch code {
		case codeLinkClosed:
			return nil, fmt.Errorf("%w: %w: %s", ErrServer, link.ErrLinkClosed, msg)
		case codeFrameCount:
			return nil, fmt.Errorf("%w: %w: %s", ErrServer, link.ErrFrameCount, msg)
		default:
			return nil, fmt.Errorf("%w: %s", ErrServer, msg)
		}
	default:
		return nil, fmt.Errorf("%w: unknown response status 0x%02X", ErrProtocol, b[0])
	}
}
