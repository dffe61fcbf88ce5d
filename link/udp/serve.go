package udp

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/logger"
)

// Serve answers frame set datagrams arriving on conn by delivering them to dev
// and replying with the resulting acknowledgments. dev must be open.
//
// Serve returns nil when ctx is canceled, or the error that stopped reading.
func Serve(ctx context.Context, conn net.PacketConn, dev link.Link, log logger.Logger) error {
	if log == nil {
		log = logger.GetLogger()
	}

	// unblock ReadFrom once ctx is done
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	buf := make([]byte, link.PacketHeaderSize+link.MaxPacketDevices*link.FrameSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		p, err := link.DecodePacket(buf[:n])
		if err != nil {
			log.Warn("dropped invalid datagram", "peer", addr.String(), "error", err)
			continue
		}

		reply, err := link.Respond(ctx, dev, p)
		if err != nil {
			log.Warn("failed to deliver frame set", "peer", addr.String(), "count", p.Count, "error", err)
			continue
		}
		if _, err := conn.WriteTo(reply, addr); err != nil {
			log.Warn("failed to send acknowledgments", "peer", addr.String(), "error", err)
		}
	}
}
