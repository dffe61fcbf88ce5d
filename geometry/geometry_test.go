package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g, err := New(AUTD3(Point3{}), AUTD3(Point3{X: AUTD3DeviceWidth}))
	require.NoError(t, err)

	assert.Equal(t, 2, g.NumDevices())
	assert.Equal(t, 2*AUTD3NumTransInUnit, g.NumTransducers())
	assert.Equal(t, 249, g.Device(0).NumTransducers())
	assert.Equal(t, 1, g.Device(1).Idx())
	assert.Equal(t, DefaultSoundSpeed, g.Device(1).SoundSpeed())
	assert.InDelta(t, AUTD3DeviceWidth, g.Device(1).Transducers()[0].Position().X, 1e-4)
	assert.Nil(t, g.Device(2))
}

func TestNew_Errors(t *testing.T) {
	_, err := New()
	require.ErrorIs(t, err, ErrNoDevice)

	_, err = New(DeviceSpec{})
	require.ErrorIs(t, err, ErrNoTransducer)

	_, err = New(DeviceSpec{Transducers: []Point3{{}}, SoundSpeed: -1})
	require.ErrorIs(t, err, ErrInvalidSoundSpeed)
}

func TestDeviceMask_Has(t *testing.T) {
	g, err := New(Grid(Point3{}, 2, 2, 10), Grid(Point3{}, 2, 2, 10), Grid(Point3{}, 2, 2, 10))
	require.NoError(t, err)

	all := AllEnabled()
	assert.True(t, all.IsAll())
	assert.Equal(t, 3, all.Count(g))

	g.Device(1).Enable = false
	assert.False(t, all.Has(g.Device(1)))
	assert.Equal(t, 2, all.Count(g))
	assert.Equal(t, 2, g.NumEnabled())

	odd := MaskFromFunc(g, func(dev *Device) bool { return dev.Idx() != 0 })
	assert.False(t, odd.Has(g.Device(0)))
	assert.False(t, odd.Has(g.Device(1)), "disabled device must never be selected")
	assert.True(t, odd.Has(g.Device(2)))

	both := odd.Intersect(g, all)
	assert.Equal(t, 1, both.Count(g))
}

func TestTransducerMask(t *testing.T) {
	g, err := New(Grid(Point3{}, 2, 2, 10), Grid(Point3{}, 2, 2, 10), Grid(Point3{}, 2, 2, 10))
	require.NoError(t, err)
	tr := func(dev, i int) Transducer { return g.Device(dev).Transducers()[i] }

	all := AllTransducers()
	assert.True(t, all.Has(g.Device(0), tr(0, 3)))
	assert.True(t, all.IsFull(g.Device(2)))

	fromDevices := TransducerMaskFromDevices(MaskFromFunc(g, func(dev *Device) bool { return dev.Idx() == 1 }))
	assert.False(t, fromDevices.HasDevice(g.Device(0)))
	assert.True(t, fromDevices.IsFull(g.Device(1)))
	assert.True(t, fromDevices.Has(g.Device(1), tr(1, 2)))

	// even transducers of devices 0 and 1
	even := TransducerMaskFromFunc(g, func(dev *Device, tr Transducer) bool {
		return dev.Idx() < 2 && tr.Idx()%2 == 0
	})
	assert.True(t, even.HasDevice(g.Device(0)))
	assert.False(t, even.HasDevice(g.Device(2)), "no transducer selected")
	assert.False(t, even.IsFull(g.Device(0)))
	assert.True(t, even.Has(g.Device(0), tr(0, 2)))
	assert.False(t, even.Has(g.Device(0), tr(0, 1)))
	assert.Equal(t, 2, even.Devices().Count(g))

	both := even.Intersect(g, fromDevices)
	assert.False(t, both.HasDevice(g.Device(0)))
	assert.True(t, both.Has(g.Device(1), tr(1, 0)))
	assert.False(t, both.Has(g.Device(1), tr(1, 1)))

	g.Device(1).Enable = false
	assert.False(t, all.Has(g.Device(1), tr(1, 0)))
	assert.False(t, even.Has(g.Device(1), tr(1, 0)))
}
