/*
Package sender implements the synchronous transmission protocol.

A Sender owns the message id counter of a session. Each call to Send turns a
datagram into one operation pair per enabled device and then loops in rounds:

  - pack the next chunk of every unfinished pair into one frame per device,
    stamped with a fresh message id
  - send the frames and poll acknowledgments until every addressed device
    echoes the id, a device reports a firmware error, or the timeout expires
  - stop when every pair is done, otherwise pace the next round through the
    configured TimerStrategy

Exactly one frame set is in flight at a time. A firmware error aborts the send
at once and is never retried. A round that is not acknowledged in time fails
with ErrConfirmResponseFailed, except that a zero timeout on a non-strict
sender is treated as fire-and-forget.

The Sender also mirrors the segment state of every device, so that helpers
such as datagram.Glitchless can resolve the inactive bank without a round trip.

Basic usage:

	s, err := sender.New(lnk, geo, sender.WithTimeout(50*time.Millisecond))
	if err != nil {
		return err
	}
	if err := s.InitializeDevices(ctx); err != nil {
		return err
	}
	err = s.Send(ctx, datagram.Pair(
		datagram.NewGain(datagram.NewFocus(geometry.Point3{Z: 150})),
		datagram.NewModulation(datagram.NewSine(150)),
	))
*/
package sender
