// Package serial provides a link that exchanges frame sets with a device bridge
// over a serial port.
//
// Frame sets and acknowledgments travel as link packets on the byte stream.
// The bridge answers every frame set with one acknowledgment packet, which a
// background reader keeps so that Receive never blocks on the port.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	bugst "go.bug.st/serial"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
)

// Port is the byte stream of an open serial port.
type Port interface {
	io.ReadWriteCloser
}

// Ports lists the serial ports of the host.
func Ports() ([]string, error) {
	return bugst.GetPortsList()
}

// Link is a link.Link over a serial port.
type Link struct {
	cfg *Config

	mu     sync.Mutex
	wmu    sync.Mutex
	port   Port
	isOpen bool
	rx     []link.RxMessage
	wg     sync.WaitGroup
}

var _ link.Link = (*Link)(nil)

// New creates a closed serial link for the port named device.
func New(device string, opts ...Option) (*Link, error) {
	cfg, err := NewConfig(device, opts...)
	if err != nil {
		return nil, err
	}

	return &Link{cfg: cfg}, nil
}

// Config returns the link configuration.
func (l *Link) Config() *Config { return l.cfg }

// Open opens the port and starts the acknowledgment reader.
func (l *Link) Open(_ context.Context, geo *geometry.Geometry) error {
	if geo.NumDevices() > link.MaxPacketDevices {
		return fmt.Errorf("%w: %d devices", link.ErrPacketTooLarge, geo.NumDevices())
	}
	if err := l.Close(); err != nil {
		return err
	}

	port, err := l.cfg.opener(l.cfg.device, l.cfg.baud)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", l.cfg.device, err)
	}

	l.mu.Lock()
	l.port = port
	l.rx = make([]link.RxMessage, geo.NumDevices())
	l.isOpen = true
	l.mu.Unlock()

	l.wg.Add(1)
	go l.readLoop(port)

	l.cfg.logger.Debug("serial link opened", "device", l.cfg.device, "baud", l.cfg.baud)

	return nil
}

func (l *Link) readLoop(port Port) {
	defer l.wg.Done()

	for {
		p, err := link.ReadPacket(port)
		if err != nil {
			if !l.IsOpen() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			// a corrupted packet leaves the stream misaligned
			l.cfg.logger.Error("serial stream lost", "device", l.cfg.device, "error", err)
			l.mu.Lock()
			l.isOpen = false
			l.mu.Unlock()

			return
		}

		l.mu.Lock()
		err = p.Acks(l.rx)
		l.mu.Unlock()
		if err != nil {
			l.cfg.logger.Warn("dropped unexpected packet", "kind", p.Kind, "count", p.Count, "error", err)
		}
	}
}

// Close closes the port and waits for the reader to exit.
func (l *Link) Close() error {
	l.mu.Lock()
	port := l.port
	l.port = nil
	l.isOpen = false
	l.mu.Unlock()

	if port == nil {
		return nil
	}
	err := port.Close()
	l.wg.Wait()

	return err
}

func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.isOpen
}

func (l *Link) AllocTx(n int) ([]link.TxMessage, error) {
	if !l.IsOpen() {
		return nil, link.ErrLinkClosed
	}

	return link.AllocTx(n), nil
}

// Send writes the frame set as one packet.
func (l *Link) Send(ctx context.Context, tx []link.TxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	port, n, open := l.port, len(l.rx), l.isOpen
	l.mu.Unlock()

	if !open {
		return link.ErrLinkClosed
	}
	if len(tx) != n {
		return link.ErrFrameCount
	}

	buf, err := link.EncodeFrames(tx)
	if err != nil {
		return err
	}

	l.wmu.Lock()
	defer l.wmu.Unlock()

	if _, err := port.Write(buf); err != nil {
		return fmt.Errorf("serial: write %s: %w", l.cfg.device, err)
	}

	return nil
}

// Receive copies the latest acknowledgments received from the bridge.
func (l *Link) Receive(ctx context.Context, rx []link.RxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return link.ErrLinkClosed
	}
	copy(rx, l.rx)

	return nil
}
