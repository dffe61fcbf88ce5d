// Package geometry is the read-only model of the transducer arrays driven by a session.
//
// A Geometry is an ordered, index-stable collection of devices built once when a
// session is opened. Devices may be disabled later, but their indices never change,
// so per-device buffers sized from a Geometry stay valid for the whole session.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoDevice is returned when a geometry is built without devices.
	ErrNoDevice = errors.New("geometry: at least one device is required")
	// ErrNoTransducer is returned when a device has no transducers.
	ErrNoTransducer = errors.New("geometry: device has no transducers")
	// ErrInvalidSoundSpeed is returned for a non-positive sound speed.
	ErrInvalidSoundSpeed = errors.New("geometry: sound speed must be positive")
)

// DefaultSoundSpeed is the speed of sound in air at about 20 degrees, in mm/s.
const DefaultSoundSpeed float32 = 340e3

// UltrasoundFreq is the carrier frequency of the transducers in Hz.
const UltrasoundFreq = 40000

// Point3 is a position in millimeters.
type Point3 struct {
	X, Y, Z float32
}

// Add returns p+q.
func (p Point3) Add(q Point3) Point3 { return Point3{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }

// Sub returns p-q.
func (p Point3) Sub(q Point3) Point3 { return Point3{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }

// Dist returns the Euclidean distance between p and q.
func (p Point3) Dist(q Point3) float32 {
	d := p.Sub(q)
	return float32(math.Sqrt(float64(d.X*d.X + d.Y*d.Y + d.Z*d.Z)))
}

// Transducer is a single emitter inside a device.
type Transducer struct {
	idx int
	pos Point3
}

// Idx returns the index of the transducer within its device.
func (t Transducer) Idx() int { return t.idx }

// Position returns the global position of the transducer.
func (t Transducer) Position() Point3 { return t.pos }

// Device is one transducer array on the bus.
type Device struct {
	idx         int
	origin      Point3
	transducers []Transducer
	soundSpeed  float32

	// Enable reports whether the device takes part in transmission rounds.
	// A disabled device keeps its index but receives no operations.
	Enable bool
}

// Idx returns the bus index of the device.
func (d *Device) Idx() int { return d.idx }

// Origin returns the global position of the device's local origin.
func (d *Device) Origin() Point3 { return d.origin }

// NumTransducers returns the number of transducers of the device.
func (d *Device) NumTransducers() int { return len(d.transducers) }

// Transducers returns the transducers of the device. The slice must not be modified.
func (d *Device) Transducers() []Transducer { return d.transducers }

// SoundSpeed returns the propagation speed used for this device, in mm/s.
func (d *Device) SoundSpeed() float32 { return d.soundSpeed }

// Wavelength returns the carrier wavelength for this device, in mm.
func (d *Device) Wavelength() float32 { return d.soundSpeed / UltrasoundFreq }

// ToLocal converts a global position into the device's local frame.
func (d *Device) ToLocal(p Point3) Point3 { return p.Sub(d.origin) }

// Geometry is the ordered set of devices of a session.
type Geometry struct {
	devices []*Device
}

// DeviceSpec describes a device to be placed into a Geometry.
type DeviceSpec struct {
	// Origin is the global position of the device.
	Origin Point3
	// Transducers holds transducer positions relative to Origin.
	Transducers []Point3
	// SoundSpeed overrides DefaultSoundSpeed when non-zero.
	SoundSpeed float32
}

// New builds a Geometry from device specifications. Devices are indexed in order.
func New(specs ...DeviceSpec) (*Geometry, error) {
	if len(specs) == 0 {
		return nil, ErrNoDevice
	}

	g := &Geometry{devices: make([]*Device, 0, len(specs))}
	for i, spec := range specs {
		if len(spec.Transducers) == 0 {
			return nil, fmt.Errorf("%w: device %d", ErrNoTransducer, i)
		}

		speed := spec.SoundSpeed
		if speed == 0 {
			speed = DefaultSoundSpeed
		}
		if speed < 0 {
			return nil, fmt.Errorf("%w: device %d", ErrInvalidSoundSpeed, i)
		}

		dev := &Device{
			idx:         i,
			origin:      spec.Origin,
			transducers: make([]Transducer, len(spec.Transducers)),
			soundSpeed:  speed,
			Enable:      true,
		}
		for j, p := range spec.Transducers {
			dev.transducers[j] = Transducer{idx: j, pos: spec.Origin.Add(p)}
		}
		g.devices = append(g.devices, dev)
	}

	return g, nil
}

// NumDevices returns the number of devices, enabled or not.
func (g *Geometry) NumDevices() int { return len(g.devices) }

// NumEnabled returns the number of enabled devices.
func (g *Geometry) NumEnabled() int {
	n := 0
	for _, dev := range g.devices {
		if dev.Enable {
			n++
		}
	}

	return n
}

// NumTransducers returns the total number of transducers.
func (g *Geometry) NumTransducers() int {
	n := 0
	for _, dev := range g.devices {
		n += dev.NumTransducers()
	}

	return n
}

// Device returns the device at idx, or nil if idx is out of range.
func (g *Geometry) Device(idx int) *Device {
	if idx < 0 || idx >= len(g.devices) {
		return nil
	}

	return g.devices[idx]
}

// Devices returns all devices in index order. The slice must not be modified.
func (g *Geometry) Devices() []*Device { return g.devices }

// SetSoundSpeed sets the sound speed of every device.
func (g *Geometry) SetSoundSpeed(speed float32) error {
	if speed <= 0 {
		return ErrInvalidSoundSpeed
	}
	for _, dev := range g.devices {
		dev.soundSpeed = speed
	}

	return nil
}
