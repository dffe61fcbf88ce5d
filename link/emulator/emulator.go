// Package emulator provides an in-memory link that behaves like a set of devices.
//
// The emulator decodes every frame, keeps the segment state machine of each
// device and acknowledges frames the way the firmware does, including error
// codes. A frame carrying the id of the previous frame is acknowledged again
// without being re-applied. Fault injection (dropped frames and acknowledgments)
// lets tests exercise the retry and timeout paths of a sender.
package emulator

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/segment"
)

// Emulator is a link.Link backed by emulated devices.
type Emulator struct {
	cfg *Config

	mu         sync.Mutex
	isOpen     bool
	numDevices int
	enabled    []bool
	rx         []link.RxMessage
	dropFrames int
	dropAcks   int
	sent       int

	devices *xsync.MapOf[int, *Device]
}

var (
	_ link.Link    = (*Emulator)(nil)
	_ link.Updater = (*Emulator)(nil)
)

// New creates a closed emulator.
func New(opts ...Option) (*Emulator, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Emulator{cfg: cfg, devices: xsync.NewMapOf[int, *Device]()}, nil
}

// Config returns the emulator configuration.
func (e *Emulator) Config() *Config { return e.cfg }

// Open creates one emulated device per device of geo, in the power-on state.
func (e *Emulator) Open(_ context.Context, geo *geometry.Geometry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.devices.Clear()
	for _, dev := range geo.Devices() {
		e.devices.Store(dev.Idx(), newDevice(dev.Idx(), dev.NumTransducers(), e.cfg))
	}
	e.numDevices = geo.NumDevices()
	e.rx = make([]link.RxMessage, e.numDevices)
	e.enabled = make([]bool, e.numDevices)
	for _, dev := range geo.Devices() {
		e.enabled[dev.Idx()] = dev.Enable
	}
	e.isOpen = true
	e.cfg.logger.Debug("emulator opened", "devices", e.numDevices, "version", e.cfg.version.String())

	return nil
}

func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.isOpen = false

	return nil
}

func (e *Emulator) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.isOpen
}

func (e *Emulator) AllocTx(n int) ([]link.TxMessage, error) {
	if !e.IsOpen() {
		return nil, link.ErrLinkClosed
	}

	return link.AllocTx(n), nil
}

// Update records which devices are enabled. Frames for disabled devices are
// not delivered.
func (e *Emulator) Update(geo *geometry.Geometry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, dev := range geo.Devices() {
		if dev.Idx() < len(e.enabled) {
			e.enabled[dev.Idx()] = dev.Enable
		}
	}

	return nil
}

func (e *Emulator) Send(ctx context.Context, tx []link.TxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isOpen {
		return link.ErrLinkClosed
	}
	if len(tx) != e.numDevices {
		return link.ErrFrameCount
	}
	e.sent++
	if e.dropFrames > 0 {
		e.dropFrames--
		return nil
	}

	now := e.cfg.now()
	dropAck := e.dropAcks > 0
	if dropAck {
		e.dropAcks--
	}
	for i := range tx {
		if !e.enabled[i] {
			continue
		}
		dev, ok := e.devices.Load(i)
		if !ok {
			continue
		}
		ack := dev.process(&tx[i], now)
		if !dropAck {
			e.rx[i] = ack
		}
	}

	return nil
}

func (e *Emulator) Receive(ctx context.Context, rx []link.RxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isOpen {
		return link.ErrLinkClosed
	}
	copy(rx, e.rx)

	return nil
}

// Device returns the emulated device idx, or nil if the emulator has no such device.
func (e *Emulator) Device(idx int) *Device {
	dev, _ := e.devices.Load(idx)
	return dev
}

// DropFrames makes the next n frame sets vanish before reaching the devices.
func (e *Emulator) DropFrames(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.dropFrames = n
}

// DropAcks makes the devices process the next n frame sets without their
// acknowledgments becoming visible.
func (e *Emulator) DropAcks(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.dropAcks = n
}

// SentCount returns the number of frame sets passed to Send.
func (e *Emulator) SentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sent
}

// Trigger fires the pending transitions of cat waiting for kind on every device,
// emulating a sync index wrap, a GPIO edge or an external trigger. It returns
// the number of devices that switched.
func (e *Emulator) Trigger(cat segment.Category, kind firmware.TransitionKind) int {
	n := 0
	e.devices.Range(func(_ int, dev *Device) bool {
		if dev.trigger(cat, kind) {
			n++
		}
		return true
	})

	return n
}
