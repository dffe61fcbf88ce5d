package serial

import (
	"context"
	"errors"
	"io"

	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/logger"
)

// Serve plays the device bridge on rw: every frame set packet read from rw is
// delivered to dev, and the resulting acknowledgments are written back. dev
// must be open.
//
// If rw is an io.Closer it is closed when ctx is done, which ends Serve with a
// nil error. Serve also returns nil at the end of the stream.
func Serve(ctx context.Context, rw io.ReadWriter, dev link.Link, log logger.Logger) error {
	if log == nil {
		log = logger.GetLogger()
	}

	if c, ok := rw.(io.Closer); ok {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				_ = c.Close()
			case <-stop:
			}
		}()
	}

	for {
		p, err := link.ReadPacket(rw)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}

			return err
		}

		reply, err := link.Respond(ctx, dev, p)
		if err != nil {
			log.Warn("failed to deliver frame set", "count", p.Count, "error", err)
			continue
		}
		if _, err := rw.Write(reply); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}
	}
}
