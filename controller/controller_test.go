package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/datagram"
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/link/emulator"
	"github.com/arloliu/go-autd/logger"
	"github.com/arloliu/go-autd/segment"
	"github.com/arloliu/go-autd/sender"
)

func newTestGeometry(t *testing.T, n int) *geometry.Geometry {
	t.Helper()

	specs := make([]geometry.DeviceSpec, n)
	for i := range specs {
		specs[i] = geometry.AUTD3(geometry.Point3{X: float32(i) * geometry.AUTD3DeviceWidth})
	}
	geo, err := geometry.New(specs...)
	require.NoError(t, err)

	return geo
}

func newTestEmulator(t *testing.T, opts ...emulator.Option) *emulator.Emulator {
	t.Helper()

	opts = append([]emulator.Option{emulator.WithLogger(logger.NewPermissiveMockLogger())}, opts...)
	emu, err := emulator.New(opts...)
	require.NoError(t, err)

	return emu
}

// mixedLink reports a different CPU major version for one device.
type mixedLink struct {
	*emulator.Emulator
	dev int
}

func (l *mixedLink) Receive(ctx context.Context, rx []link.RxMessage) error {
	if err := l.Emulator.Receive(ctx, rx); err != nil {
		return err
	}
	if r := rx[l.dev]; r.Data() == firmware.V12_1.CPUMajor() {
		rx[l.dev] = link.NewRxMessage(firmware.V12.CPUMajor(), r.Ack())
	}

	return nil
}

// brokenLink fails to open.
type brokenLink struct {
	link.Nop
}

func (*brokenLink) Open(context.Context, *geometry.Geometry) error {
	return errors.New("no route to device")
}

func TestOpen_DetectsVersion(t *testing.T) {
	geo := newTestGeometry(t, 2)
	emu := newTestEmulator(t, emulator.WithVersion(firmware.V11))
	log := logger.NewPermissiveMockLogger()

	c, err := Open(context.Background(), geo, emu, WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.Equal(t, firmware.V11, c.Version())
	require.Len(t, c.FirmwareInfos(), 2)
	assert.True(t, c.FirmwareInfos()[1].IsEmulator())
	assert.NotEmpty(t, c.SessionID())
	assert.Same(t, geo, c.Geometry())
	for i := range 2 {
		assert.True(t, emu.Device(i).Synchronized())
	}
	log.AssertCalled(t, "With", []any{"session", c.SessionID()})
}

func TestOpen_VersionMismatch(t *testing.T) {
	geo := newTestGeometry(t, 3)
	lnk := &mixedLink{Emulator: newTestEmulator(t), dev: 2}

	_, err := Open(context.Background(), geo, lnk, WithLogger(logger.NewPermissiveMockLogger()))
	require.ErrorIs(t, err, firmware.ErrFirmwareVersionMismatch)
	assert.False(t, lnk.IsOpen(), "the link is closed again")
}

func TestOpen_Options(t *testing.T) {
	geo := newTestGeometry(t, 1)
	emu := newTestEmulator(t, emulator.WithVersion(firmware.V10))

	c, err := Open(context.Background(), geo, emu,
		WithLogger(logger.NewPermissiveMockLogger()),
		WithFirmwareVersion(firmware.V10),
		WithoutInitialize(),
		WithSenderOptions(sender.WithTimeout(50*time.Millisecond)),
	)
	require.NoError(t, err)
	defer c.Close(context.Background()) //nolint:errcheck

	assert.Equal(t, firmware.V10, c.Version())
	assert.Empty(t, c.FirmwareInfos())
	assert.False(t, emu.Device(0).Synchronized())
	timeout, ok := c.Sender().Config().Timeout()
	assert.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, timeout)

	_, err = Open(context.Background(), geo, emu, WithFirmwareVersion(firmware.Version(42)))
	require.ErrorIs(t, err, firmware.ErrUnsupportedFirmware)
	_, err = Open(context.Background(), geo, emu, WithLogger(nil))
	require.Error(t, err)
}

func TestOpen_LinkError(t *testing.T) {
	_, err := Open(context.Background(), newTestGeometry(t, 1), &brokenLink{}, WithLogger(logger.NewPermissiveMockLogger()))
	require.ErrorContains(t, err, "no route to device")
}

func TestController_SendAndClose(t *testing.T) {
	geo := newTestGeometry(t, 2)
	emu := newTestEmulator(t)
	log := logger.NewPermissiveMockLogger()

	c, err := Open(context.Background(), geo, emu, WithLogger(log))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, datagram.Pair(
		datagram.NewGain(datagram.NewFocus(geometry.Point3{X: 90, Y: 70, Z: 150})),
		datagram.NewModulation(datagram.NewSine(150)),
	)))
	mod, _ := emu.Device(1).Modulation(firmware.S0)
	assert.Len(t, mod, 80)
	for _, d := range emu.Device(0).Gain(firmware.S0) {
		require.Equal(t, firmware.MaxIntensity, d.Intensity)
	}

	require.NoError(t, c.Send(ctx, datagram.ReadsFPGAState(func(*geometry.Device) bool { return true })))
	states, err := c.FPGAStates(ctx)
	require.NoError(t, err)
	require.NotNil(t, states[0])
	assert.True(t, states[0].IsGainMode())

	require.NoError(t, c.Close(ctx))
	assert.False(t, emu.IsOpen())
	require.ErrorIs(t, c.Send(ctx, datagram.Clear{}), ErrClosed)
	_, err = c.FPGAStates(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, c.Close(ctx))
	log.AssertCalled(t, "Info", "session closed", mock.Anything)
}

func TestDetectVersion(t *testing.T) {
	info := func(idx int, major uint8) firmware.Info { return firmware.Info{Idx: idx, CPUMajor: major} }

	v, err := detectVersion(nil)
	require.NoError(t, err)
	assert.Equal(t, firmware.Latest, v)

	v, err = detectVersion([]firmware.Info{info(0, 0xA4), info(1, 0xA4)})
	require.NoError(t, err)
	assert.Equal(t, firmware.V12, v)

	_, err = detectVersion([]firmware.Info{info(0, 0xA4), info(1, 0xA5)})
	require.ErrorIs(t, err, firmware.ErrFirmwareVersionMismatch)

	_, err = detectVersion([]firmware.Info{info(0, 0x90)})
	require.ErrorIs(t, err, firmware.ErrUnsupportedFirmware)
}

func TestController_GPIOTransition(t *testing.T) {
	geo := newTestGeometry(t, 2)
	emu := newTestEmulator(t)
	ctx := context.Background()

	c, err := Open(ctx, geo, emu, WithLogger(logger.NewPermissiveMockLogger()))
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close(ctx)) }()

	require.NoError(t, c.Send(ctx, datagram.WithSegment(datagram.NewModulation(datagram.NewSine(150)), firmware.S1, firmware.GPIO(firmware.GPIOIn2))))
	for i := range 2 {
		assert.Equal(t, firmware.S0, emu.Device(i).ActiveSegment(segment.Modulation))
	}

	// raise GPIO_IN_2 on the second device only
	require.NoError(t, c.Send(ctx, datagram.EmulateGPIOIn(func(dev *geometry.Device, pin firmware.GPIOIn) bool {
		return dev.Idx() == 1 && pin == firmware.GPIOIn2
	})))
	assert.Equal(t, firmware.S0, emu.Device(0).ActiveSegment(segment.Modulation))
	assert.Equal(t, firmware.S1, emu.Device(1).ActiveSegment(segment.Modulation))
}
