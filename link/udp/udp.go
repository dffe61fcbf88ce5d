// Package udp provides a link that exchanges frame sets with the devices over UDP.
//
// Each frame set travels as a single datagram in the link packet format, and
// the devices answer every frame set with one acknowledgment datagram. A
// background reader keeps the latest acknowledgments so that Receive never
// blocks on the network. Lost datagrams are recovered by the sender's
// retransmission, which the devices acknowledge idempotently.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
)

// Link is a link.Link over a connected UDP socket.
type Link struct {
	cfg *Config

	mu     sync.Mutex
	conn   *net.UDPConn
	isOpen bool
	rx     []link.RxMessage
	wg     sync.WaitGroup
}

var _ link.Link = (*Link)(nil)

// New creates a closed UDP link sending to address.
func New(address string, opts ...Option) (*Link, error) {
	cfg, err := NewConfig(address, opts...)
	if err != nil {
		return nil, err
	}

	return &Link{cfg: cfg}, nil
}

// Config returns the link configuration.
func (l *Link) Config() *Config { return l.cfg }

// Open connects the socket and starts the acknowledgment reader.
// Opening an open link reconnects it.
func (l *Link) Open(ctx context.Context, geo *geometry.Geometry) error {
	if geo.NumDevices() > link.MaxPacketDevices {
		return fmt.Errorf("%w: %d devices", link.ErrPacketTooLarge, geo.NumDevices())
	}
	if err := l.Close(); err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: l.cfg.dialTimeout}
	if l.cfg.localAddress != "" {
		laddr, err := net.ResolveUDPAddr("udp", l.cfg.localAddress)
		if err != nil {
			return fmt.Errorf("udp: resolve %s: %w", l.cfg.localAddress, err)
		}
		dialer.LocalAddr = laddr
	}

	c, err := dialer.DialContext(ctx, "udp", l.cfg.address)
	if err != nil {
		return fmt.Errorf("udp: dial %s: %w", l.cfg.address, err)
	}
	conn, ok := c.(*net.UDPConn)
	if !ok {
		_ = c.Close()
		return fmt.Errorf("udp: dial %s: unexpected connection type %T", l.cfg.address, c)
	}
	if err := conn.SetReadBuffer(l.cfg.readBufferSize); err != nil {
		l.cfg.logger.Warn("failed to set read buffer", "size", l.cfg.readBufferSize, "error", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.rx = make([]link.RxMessage, geo.NumDevices())
	l.isOpen = true
	l.mu.Unlock()

	l.wg.Add(1)
	go l.readLoop(conn)

	l.cfg.logger.Debug("udp link opened", "local", conn.LocalAddr().String(), "remote", l.cfg.address)

	return nil
}

func (l *Link) readLoop(conn *net.UDPConn) {
	defer l.wg.Done()

	buf := make([]byte, link.PacketHeaderSize+link.MaxPacketDevices*link.FrameSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// connection refused and similar errors are transient on UDP
			l.cfg.logger.Debug("udp read failed", "error", err)
			time.Sleep(time.Millisecond)

			continue
		}

		p, err := link.DecodePacket(buf[:n])
		if err != nil {
			l.cfg.logger.Warn("dropped invalid datagram", "size", n, "error", err)
			continue
		}

		l.mu.Lock()
		err = p.Acks(l.rx)
		l.mu.Unlock()
		if err != nil {
			l.cfg.logger.Warn("dropped unexpected datagram", "kind", p.Kind, "count", p.Count, "error", err)
		}
	}
}

// Close closes the socket and waits for the reader to exit.
func (l *Link) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.isOpen = false
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
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

// Send writes the frame set as one datagram. The context deadline, if any,
// bounds the write.
func (l *Link) Send(ctx context.Context, tx []link.TxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	conn, n := l.conn, len(l.rx)
	l.mu.Unlock()

	if conn == nil {
		return link.ErrLinkClosed
	}
	if len(tx) != n {
		return link.ErrFrameCount
	}

	buf, err := link.EncodeFrames(tx)
	if err != nil {
		return err
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("udp: write %s: %w", l.cfg.address, err)
	}

	return nil
}

// Receive copies the latest acknowledgments received from the devices.
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
