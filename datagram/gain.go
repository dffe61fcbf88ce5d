package datagram

import (
	"fmt"
	"math"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// Gain computes the drive of every transducer.
//
// Drives is called once per selected device while the datagram is built, so
// an implementation may cache device-independent work in Init. Drives of
// transducers outside the mask are discarded and sent as Drive{}.
type Gain interface {
	// Init prepares the gain for the transducers selected by mask.
	Init(geo *geometry.Geometry, mask geometry.TransducerMask) error
	// Drives returns one drive per transducer of dev.
	Drives(dev *geometry.Device) []firmware.Drive
}

// GainDatagram sends a Gain as a single-frame segment write.
type GainDatagram struct {
	gain Gain
}

var _ SegmentWriter = GainDatagram{}

// NewGain wraps g into a datagram.
func NewGain(g Gain) GainDatagram { return GainDatagram{gain: g} }

func (d GainDatagram) Category() segment.Category { return segment.STM }

func (d GainDatagram) Option() Option { return DefaultOption() }

func (d GainDatagram) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return d.SegmentGenerator(ctx, DefaultSegmentTarget())
}

func (d GainDatagram) SegmentGenerator(ctx *BuildContext, target SegmentTarget) (operation.Generator, error) {
	if err := checkGainTransition(target.Transition); err != nil {
		return nil, err
	}
	drives, err := calcDrives(ctx.Geometry, geometry.TransducerMaskFromDevices(ctx.Mask), d.gain)
	if err != nil {
		return nil, err
	}

	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		return operation.NewGain(target.Segment, target.Transition, drives[dev.Idx()])
	}), nil
}

// checkGainTransition rejects transitions a gain write or gain swap cannot express.
func checkGainTransition(transition firmware.TransitionMode) error {
	switch transition.Kind() {
	case firmware.TransitionImmediate, firmware.TransitionLater:
		return nil
	default:
		return fmt.Errorf("%w: got %s", ErrInvalidGainTransition, transition)
	}
}

// calcDrives evaluates g for every device selected by mask, indexed by device.
// Transducers outside the mask get Drive{}.
func calcDrives(geo *geometry.Geometry, mask geometry.TransducerMask, g Gain) ([][]firmware.Drive, error) {
	if err := g.Init(geo, mask); err != nil {
		return nil, err
	}
	drives := make([][]firmware.Drive, geo.NumDevices())
	for _, dev := range geo.Devices() {
		if !mask.HasDevice(dev) {
			continue
		}
		d := g.Drives(dev)
		if len(d) != dev.NumTransducers() {
			return nil, fmt.Errorf("%w: device %d has %d transducers, got %d drives",
				ErrGainTransducerCountMismatch, dev.Idx(), dev.NumTransducers(), len(d))
		}
		if !mask.IsFull(dev) {
			masked := make([]firmware.Drive, len(d))
			for i, tr := range dev.Transducers() {
				if mask.Has(dev, tr) {
					masked[i] = d[i]
				}
			}
			d = masked
		}
		drives[dev.Idx()] = d
	}

	return drives, nil
}

// Null is the gain that turns every transducer off.
type Null struct{}

func (Null) Init(*geometry.Geometry, geometry.TransducerMask) error { return nil }

func (Null) Drives(dev *geometry.Device) []firmware.Drive {
	return make([]firmware.Drive, dev.NumTransducers())
}

// Uniform drives every transducer with the same phase and intensity.
type Uniform struct {
	Drive firmware.Drive
}

func (Uniform) Init(*geometry.Geometry, geometry.TransducerMask) error { return nil }

func (g Uniform) Drives(dev *geometry.Device) []firmware.Drive {
	drives := make([]firmware.Drive, dev.NumTransducers())
	for i := range drives {
		drives[i] = g.Drive
	}

	return drives
}

// Focus produces a single focal point at Pos.
type Focus struct {
	Pos         geometry.Point3
	Intensity   uint8
	PhaseOffset uint8
}

// NewFocus returns a Focus at pos with maximum intensity.
func NewFocus(pos geometry.Point3) Focus {
	return Focus{Pos: pos, Intensity: firmware.MaxIntensity}
}

func (Focus) Init(*geometry.Geometry, geometry.TransducerMask) error { return nil }

func (g Focus) Drives(dev *geometry.Device) []firmware.Drive {
	wavenumber := 2 * math.Pi / float64(dev.Wavelength())
	drives := make([]firmware.Drive, dev.NumTransducers())
	for i, tr := range dev.Transducers() {
		dist := float64(tr.Position().Dist(g.Pos))
		drives[i] = firmware.Drive{
			Phase:     firmware.PhaseFromRad(dist*wavenumber) + g.PhaseOffset,
			Intensity: g.Intensity,
		}
	}

	return drives
}

// Plane produces a plane wave travelling along Dir, which must be a unit vector.
type Plane struct {
	Dir       geometry.Point3
	Intensity uint8
}

func (Plane) Init(*geometry.Geometry, geometry.TransducerMask) error { return nil }

func (g Plane) Drives(dev *geometry.Device) []firmware.Drive {
	wavenumber := 2 * math.Pi / float64(dev.Wavelength())
	drives := make([]firmware.Drive, dev.NumTransducers())
	for i, tr := range dev.Transducers() {
		p := tr.Position()
		dot := float64(p.X*g.Dir.X + p.Y*g.Dir.Y + p.Z*g.Dir.Z)
		drives[i] = firmware.Drive{Phase: firmware.PhaseFromRad(dot * wavenumber), Intensity: g.Intensity}
	}

	return drives
}

// GainFunc computes the drive of each transducer with a function.
type GainFunc func(dev *geometry.Device, tr geometry.Transducer) firmware.Drive

func (GainFunc) Init(*geometry.Geometry, geometry.TransducerMask) error { return nil }

func (f GainFunc) Drives(dev *geometry.Device) []firmware.Drive {
	drives := make([]firmware.Drive, dev.NumTransducers())
	for i, tr := range dev.Transducers() {
		drives[i] = f(dev, tr)
	}

	return drives
}

// Custom carries precomputed drives, indexed by device.
type Custom struct {
	Table [][]firmware.Drive
}

func (g Custom) Init(geo *geometry.Geometry, mask geometry.TransducerMask) error {
	for _, dev := range geo.Devices() {
		if mask.HasDevice(dev) && dev.Idx() >= len(g.Table) {
			return fmt.Errorf("%w: no drives for device %d", ErrGainTransducerCountMismatch, dev.Idx())
		}
	}

	return nil
}

func (g Custom) Drives(dev *geometry.Device) []firmware.Drive { return g.Table[dev.Idx()] }

// GainGroup drives each transducer with the gain assigned to its key.
//
// Each gain is initialized with the mask of the transducers mapped to its
// key. Transducers for which keyOf returns false are turned off.
type GainGroup[K comparable] struct {
	keyOf  func(dev *geometry.Device, tr geometry.Transducer) (K, bool)
	gains  map[K]Gain
	drives [][]firmware.Drive
}

// NewGainGroup returns a GainGroup dispatching to gains by the key keyOf
// assigns to each transducer.
func NewGainGroup[K comparable](keyOf func(dev *geometry.Device, tr geometry.Transducer) (K, bool), gains map[K]Gain) *GainGroup[K] {
	return &GainGroup[K]{keyOf: keyOf, gains: gains}
}

func (g *GainGroup[K]) Init(geo *geometry.Geometry, mask geometry.TransducerMask) error {
	// keys[dev][tr] is the key of each selected transducer
	keys := make([][]K, geo.NumDevices())
	has := make([][]bool, geo.NumDevices())
	used := make(map[K]bool, len(g.gains))
	for _, dev := range geo.Devices() {
		if !mask.HasDevice(dev) {
			continue
		}
		keys[dev.Idx()] = make([]K, dev.NumTransducers())
		has[dev.Idx()] = make([]bool, dev.NumTransducers())
		for i, tr := range dev.Transducers() {
			if !mask.Has(dev, tr) {
				continue
			}
			key, ok := g.keyOf(dev, tr)
			if !ok {
				continue
			}
			if _, found := g.gains[key]; !found {
				return &GroupError{Key: key, Err: ErrUnknownKey}
			}
			keys[dev.Idx()][i] = key
			has[dev.Idx()][i] = true
			used[key] = true
		}
	}
	for key := range g.gains {
		if !used[key] {
			return &GroupError{Key: key, Err: ErrUnusedKey}
		}
	}

	g.drives = make([][]firmware.Drive, geo.NumDevices())
	for _, dev := range geo.Devices() {
		if mask.HasDevice(dev) {
			g.drives[dev.Idx()] = make([]firmware.Drive, dev.NumTransducers())
		}
	}
	for key, gain := range g.gains {
		sub := geometry.TransducerMaskFromFunc(geo, func(dev *geometry.Device, tr geometry.Transducer) bool {
			return has[dev.Idx()] != nil && has[dev.Idx()][tr.Idx()] && keys[dev.Idx()][tr.Idx()] == key
		})
		drives, err := calcDrives(geo, sub, gain)
		if err != nil {
			return &GroupError{Key: key, Err: err}
		}
		for idx, dd := range drives {
			for i := range dd {
				if has[idx][i] && keys[idx][i] == key {
					g.drives[idx][i] = dd[i]
				}
			}
		}
	}

	return nil
}

func (g *GainGroup[K]) Drives(dev *geometry.Device) []firmware.Drive { return g.drives[dev.Idx()] }
