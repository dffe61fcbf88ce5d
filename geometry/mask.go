package geometry

// DeviceMask selects the devices a command is built for.
//
// The zero value means "all enabled devices". An explicit mask holds one flag
// per device index; a device is selected only when its flag is set and the
// device itself is enabled.
type DeviceMask struct {
	bits []bool
}

// AllEnabled returns the mask selecting every enabled device.
func AllEnabled() DeviceMask { return DeviceMask{} }

// MaskFromFunc builds an explicit mask by evaluating f for each device of g.
func MaskFromFunc(g *Geometry, f func(dev *Device) bool) DeviceMask {
	bits := make([]bool, g.NumDevices())
	for _, dev := range g.Devices() {
		bits[dev.Idx()] = f(dev)
	}

	return DeviceMask{bits: bits}
}

// IsAll reports whether m is the "all enabled" mask.
func (m DeviceMask) IsAll() bool { return m.bits == nil }

// Has reports whether dev is selected by m.
func (m DeviceMask) Has(dev *Device) bool {
	if !dev.Enable {
		return false
	}
	if m.bits == nil {
		return true
	}
	if dev.Idx() >= len(m.bits) {
		return false
	}

	return m.bits[dev.Idx()]
}

// Intersect returns a mask selecting devices selected by both m and other.
func (m DeviceMask) Intersect(g *Geometry, other DeviceMask) DeviceMask {
	return MaskFromFunc(g, func(dev *Device) bool {
		return m.Has(dev) && other.Has(dev)
	})
}

// Count returns the number of devices of g selected by m.
func (m DeviceMask) Count(g *Geometry) int {
	n := 0
	for _, dev := range g.Devices() {
		if m.Has(dev) {
			n++
		}
	}

	return n
}

// TransducerMask selects transducers within the devices of a DeviceMask.
//
// A selected device without a per-transducer table has all of its
// transducers selected. The zero value selects every transducer of every
// enabled device.
type TransducerMask struct {
	devices DeviceMask
	bits    [][]bool
}

// AllTransducers returns the mask selecting every transducer of every enabled device.
func AllTransducers() TransducerMask { return TransducerMask{} }

// TransducerMaskFromDevices selects every transducer of the devices selected by m.
func TransducerMaskFromDevices(m DeviceMask) TransducerMask {
	return TransducerMask{devices: m}
}

// TransducerMaskFromFunc builds a mask by evaluating f for each transducer of
// the enabled devices of g. A device with no selected transducer is not selected.
func TransducerMaskFromFunc(g *Geometry, f func(dev *Device, tr Transducer) bool) TransducerMask {
	devs := make([]bool, g.NumDevices())
	bits := make([][]bool, g.NumDevices())
	for _, dev := range g.Devices() {
		if !dev.Enable {
			continue
		}
		b := make([]bool, dev.NumTransducers())
		for i, tr := range dev.Transducers() {
			b[i] = f(dev, tr)
			devs[dev.Idx()] = devs[dev.Idx()] || b[i]
		}
		bits[dev.Idx()] = b
	}

	return TransducerMask{devices: DeviceMask{bits: devs}, bits: bits}
}

// Devices returns the mask of devices with at least one selected transducer.
func (m TransducerMask) Devices() DeviceMask { return m.devices }

// HasDevice reports whether any transducer of dev is selected.
func (m TransducerMask) HasDevice(dev *Device) bool { return m.devices.Has(dev) }

// IsFull reports whether every transducer of dev is selected. It is false
// when dev itself is not selected.
func (m TransducerMask) IsFull(dev *Device) bool {
	if !m.devices.Has(dev) {
		return false
	}
	if dev.Idx() >= len(m.bits) || m.bits[dev.Idx()] == nil {
		return true
	}
	for _, b := range m.bits[dev.Idx()] {
		if !b {
			return false
		}
	}

	return true
}

// Has reports whether transducer tr of dev is selected.
func (m TransducerMask) Has(dev *Device, tr Transducer) bool {
	if !m.devices.Has(dev) {
		return false
	}
	if dev.Idx() >= len(m.bits) || m.bits[dev.Idx()] == nil {
		return true
	}
	b := m.bits[dev.Idx()]

	return tr.Idx() < len(b) && b[tr.Idx()]
}

// Intersect returns a mask selecting the transducers selected by both m and other.
func (m TransducerMask) Intersect(g *Geometry, other TransducerMask) TransducerMask {
	return TransducerMaskFromFunc(g, func(dev *Device, tr Transducer) bool {
		return m.Has(dev, tr) && other.Has(dev, tr)
	})
}
