package link

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/geometry"
)

func TestEncodeFrames(t *testing.T) {
	tx := AllocTx(2)
	tx[0].PackHeader(3, false)
	tx[0].Payload()[0] = 0xAA
	tx[1].PackHeader(3, true)
	tx[1].Payload()[PayloadSize-1] = 0xBB

	buf, err := EncodeFrames(tx)
	require.NoError(t, err)
	require.Len(t, buf, PacketHeaderSize+2*FrameSize)
	assert.Equal(t, []byte{0x41, 0x44, PacketVersion, KindFrames, 0x02, 0x00}, buf[:6])
	assert.Equal(t, uint32(2*FrameSize), binary.LittleEndian.Uint32(buf[6:10]))

	p, err := DecodePacket(buf)
	require.NoError(t, err)
	assert.Equal(t, KindFrames, p.Kind)
	assert.Equal(t, 2, p.Count)

	got, err := p.Frames()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tx[0].Bytes(), got[0].Bytes())
	assert.Equal(t, tx[1].Bytes(), got[1].Bytes())
	assert.True(t, got[1].IsParallel())

	rx := make([]RxMessage, 2)
	require.Error(t, p.Acks(rx), "a frames packet carries no acks")

	_, err = EncodeFrames(AllocTx(MaxPacketDevices + 1))
	require.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestEncodeAcks(t *testing.T) {
	want := []RxMessage{AckMsgID(0x10, 7), AckError(0, 0x03), AckMsgID(0, 7)}

	p, err := DecodePacket(EncodeAcks(want))
	require.NoError(t, err)
	assert.Equal(t, KindAcks, p.Kind)

	rx := make([]RxMessage, 3)
	require.NoError(t, p.Acks(rx))
	assert.Equal(t, want, rx)

	require.ErrorIs(t, p.Acks(make([]RxMessage, 2)), ErrFrameCount)

	_, err = p.Frames()
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestDecodePacket_Invalid(t *testing.T) {
	valid := EncodeAcks([]RxMessage{AckMsgID(0, 1)})

	tests := []struct {
		name    string
		mutate  func(b []byte) []byte
		wantErr error
	}{
		{"short", func(b []byte) []byte { return b[:4] }, ErrInvalidFrame},
		{"magic", func(b []byte) []byte { b[0] = 0; return b }, ErrInvalidMagic},
		{"version", func(b []byte) []byte { b[2] = 9; return b }, ErrPacketVersion},
		{"kind", func(b []byte) []byte { b[3] = 0x7E; return b }, ErrInvalidFrame},
		{"truncated body", func(b []byte) []byte { return b[:len(b)-1] }, ErrInvalidFrame},
		{"count mismatch", func(b []byte) []byte { b[4] = 2; return b }, ErrInvalidFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(bytes.Clone(valid))
			_, err := DecodePacket(b)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadPacket(t *testing.T) {
	tx := AllocTx(1)
	tx[0].PackHeader(9, false)
	frames, err := EncodeFrames(tx)
	require.NoError(t, err)
	acks := EncodeAcks([]RxMessage{AckMsgID(0, 9)})

	r := bytes.NewReader(append(frames, acks...))

	p, err := ReadPacket(r)
	require.NoError(t, err)
	assert.Equal(t, KindFrames, p.Kind)

	p, err = ReadPacket(r)
	require.NoError(t, err)
	assert.Equal(t, KindAcks, p.Kind)

	_, err = ReadPacket(r)
	require.ErrorIs(t, err, io.EOF)

	_, err = ReadPacket(bytes.NewReader(frames[:PacketHeaderSize+10]))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRespond(t *testing.T) {
	geo, err := geometry.New(geometry.Grid(geometry.Point3{}, 1, 1, 10), geometry.Grid(geometry.Point3{}, 1, 1, 10))
	require.NoError(t, err)

	ctx := context.Background()
	l := NewNop()
	require.NoError(t, l.Open(ctx, geo))

	tx := AllocTx(2)
	tx[0].PackHeader(4, false)
	tx[1].PackHeader(4, false)
	frames, err := EncodeFrames(tx)
	require.NoError(t, err)
	p, err := DecodePacket(frames)
	require.NoError(t, err)

	reply, err := Respond(ctx, l, p)
	require.NoError(t, err)

	ack, err := DecodePacket(reply)
	require.NoError(t, err)
	rx := make([]RxMessage, 2)
	require.NoError(t, ack.Acks(rx))
	assert.True(t, rx[0].Acknowledges(4))
	assert.True(t, rx[1].Acknowledges(4))

	_, err = Respond(ctx, l, ack)
	require.ErrorIs(t, err, ErrInvalidFrame)

	require.NoError(t, l.Close())
	_, err = Respond(ctx, l, p)
	require.ErrorIs(t, err, ErrLinkClosed)
}
