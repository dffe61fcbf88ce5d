package udp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/datagram"
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/link/emulator"
	"github.com/arloliu/go-autd/logger"
	"github.com/arloliu/go-autd/sender"
)

type testDevices struct {
	geo  *geometry.Geometry
	emu  *emulator.Emulator
	addr string
}

// startDevices serves an emulator with n devices on a loopback UDP socket.
func startDevices(t *testing.T, n int) *testDevices {
	t.Helper()

	specs := make([]geometry.DeviceSpec, n)
	for i := range specs {
		specs[i] = geometry.Grid(geometry.Point3{X: float32(i) * 200}, 2, 2, 10)
	}
	geo, err := geometry.New(specs...)
	require.NoError(t, err)

	log := logger.NewPermissiveMockLogger()
	emu, err := emulator.New(emulator.WithLogger(log))
	require.NoError(t, err)
	require.NoError(t, emu.Open(context.Background(), geo))

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, conn, emu, log) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		_ = conn.Close()
		_ = emu.Close()
	})

	return &testDevices{geo: geo, emu: emu, addr: conn.LocalAddr().String()}
}

func TestNew(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	_, err = New("127.0.0.1:1", WithDialTimeout(0))
	require.Error(t, err)

	_, err = New("127.0.0.1:1", WithReadBufferSize(-1))
	require.Error(t, err)

	_, err = New("127.0.0.1:1", WithLogger(nil))
	require.Error(t, err)

	l, err := New("127.0.0.1:1", WithLocalAddress("127.0.0.1:0"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", l.Config().Address())
	assert.False(t, l.IsOpen())
}

func TestLink_SendReceive(t *testing.T) {
	devs := startDevices(t, 2)
	ctx := context.Background()

	l, err := New(devs.addr, WithLogger(logger.NewPermissiveMockLogger()))
	require.NoError(t, err)

	_, err = l.AllocTx(2)
	require.ErrorIs(t, err, link.ErrLinkClosed)

	require.NoError(t, l.Open(ctx, devs.geo))
	t.Cleanup(func() { _ = l.Close() })
	require.True(t, l.IsOpen())

	tx, err := l.AllocTx(2)
	require.NoError(t, err)
	tx[0].PackHeader(1, false)
	tx[1].PackHeader(1, false)
	require.NoError(t, l.Send(ctx, tx))

	rx := make([]link.RxMessage, 2)
	require.Eventually(t, func() bool {
		if err := l.Receive(ctx, rx); err != nil {
			return false
		}
		return rx[0].Acknowledges(1) && rx[1].Acknowledges(1)
	}, time.Second, time.Millisecond)

	require.ErrorIs(t, l.Send(ctx, tx[:1]), link.ErrFrameCount)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, l.Send(canceled, tx), context.Canceled)
	require.ErrorIs(t, l.Receive(canceled, rx), context.Canceled)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.False(t, l.IsOpen())
	require.ErrorIs(t, l.Send(ctx, tx), link.ErrLinkClosed)
	require.ErrorIs(t, l.Receive(ctx, rx), link.ErrLinkClosed)
}

func TestLink_WithSender(t *testing.T) {
	devs := startDevices(t, 2)
	ctx := context.Background()
	log := logger.NewPermissiveMockLogger()

	l, err := New(devs.addr, WithLogger(log))
	require.NoError(t, err)
	require.NoError(t, l.Open(ctx, devs.geo))
	t.Cleanup(func() { _ = l.Close() })

	s, err := sender.New(l, devs.geo,
		sender.WithLogger(log),
		sender.WithTimeout(time.Second),
		sender.WithRetransmitInterval(50*time.Millisecond),
	)
	require.NoError(t, err)

	drive := firmware.Drive{Phase: 0x10, Intensity: 0xFF}
	require.NoError(t, s.Send(ctx, datagram.NewGain(datagram.Uniform{Drive: drive})))

	for i := range 2 {
		assert.Equal(t, []firmware.Drive{drive, drive, drive, drive}, devs.emu.Device(i).Gain(firmware.S0))
	}
}

func TestLink_TooManyDevices(t *testing.T) {
	specs := make([]geometry.DeviceSpec, link.MaxPacketDevices+1)
	for i := range specs {
		specs[i] = geometry.Grid(geometry.Point3{}, 1, 1, 10)
	}
	geo, err := geometry.New(specs...)
	require.NoError(t, err)

	l, err := New("127.0.0.1:1")
	require.NoError(t, err)
	require.ErrorIs(t, l.Open(context.Background(), geo), link.ErrPacketTooLarge)
}
