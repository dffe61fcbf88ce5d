package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-autd/datagram"
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// Sender transmits datagrams over a link and confirms that the devices
// processed them.
//
// Calls are serialized: a Sender borrows its link for the whole duration of
// a Send.
type Sender struct {
	mu sync.Mutex

	cfg     *Config
	link    link.Link
	geo     *geometry.Geometry
	version firmware.Version

	msgID link.MsgID
	sent  []bool
	rx    []link.RxMessage
	// errAck holds, per device, the error ack that aborted the previous send.
	// The same ack seen again may be left over from that send.
	errAck   []uint8
	segments []*segment.Machine

	metrics Metrics
}

// New creates a Sender for geo over l. The link must be opened by the caller.
//
// The sender assumes the latest firmware generation until SetVersion is called.
func New(l link.Link, geo *geometry.Geometry, opts ...Option) (*Sender, error) {
	if l == nil {
		return nil, errors.New("sender: link must not be nil")
	}
	if geo == nil {
		return nil, errors.New("sender: geometry must not be nil")
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	n := geo.NumDevices()
	s := &Sender{
		cfg:      cfg,
		link:     l,
		geo:      geo,
		version:  firmware.Latest,
		sent:     make([]bool, n),
		rx:       make([]link.RxMessage, n),
		errAck:   make([]uint8, n),
		segments: make([]*segment.Machine, n),
	}
	for i := range s.segments {
		s.segments[i] = segment.New()
	}

	return s, nil
}

// Config returns the configuration of the sender.
func (s *Sender) Config() *Config { return s.cfg }

// Apply changes settings of the sender. They take effect from the next Send.
func (s *Sender) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt.apply(s.cfg); err != nil {
			return err
		}
	}

	return nil
}

// Metrics returns the counters of the sender.
func (s *Sender) Metrics() *Metrics { return &s.metrics }

// Geometry returns the geometry the sender addresses.
func (s *Sender) Geometry() *geometry.Geometry { return s.geo }

// Version returns the firmware generation datagrams are built for.
func (s *Sender) Version() firmware.Version {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.version
}

// SetVersion sets the firmware generation datagrams are built for.
func (s *Sender) SetVersion(v firmware.Version) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %d", firmware.ErrUnsupportedFirmware, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v

	return nil
}

// MsgID returns the id of the last transmitted round.
func (s *Sender) MsgID() link.MsgID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.msgID
}

// Segment returns the host-side mirror of the bank state of device idx.
// The returned machine must be treated as read-only.
func (s *Sender) Segment(idx int) *segment.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.segments) {
		return nil
	}

	return s.segments[idx]
}

// Send transmits d to every enabled device and waits until the devices
// processed all of it.
//
// A datagram that cannot be built returns an error wrapping ErrConstruction
// before anything is transmitted. A device that rejects a frame aborts the
// send with a *firmware.Error. A round that is not acknowledged within the
// timeout returns ErrConfirmResponseFailed, unless the timeout is zero and the
// sender is not strict.
func (s *Sender) Send(ctx context.Context, d datagram.Datagram) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.send(ctx, d)
}

func (s *Sender) send(ctx context.Context, d datagram.Datagram) error {
	if d == nil {
		return fmt.Errorf("%w: nil datagram", ErrConstruction)
	}

	opt := d.Option()
	timeout := opt.Timeout
	if t, ok := s.cfg.Timeout(); ok {
		timeout = t
	}
	threshold := opt.ParallelThreshold
	if n, ok := s.cfg.ParallelThreshold(); ok {
		threshold = n
	}

	now := firmware.DCSysTime(time.Now())
	for _, m := range s.segments {
		m.Advance(now)
	}

	gen, err := d.OperationGenerator(datagram.NewBuildContext(s.geo, s.version, s.segments))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	pairs := operation.Generate(gen, s.geo)
	for i, p := range pairs {
		s.sent[i] = p != nil
	}
	numActive := operation.CountActive(pairs)
	parallel := s.cfg.Parallel().IsParallel(numActive, threshold)

	if err := link.EnsureIsOpen(s.link); err != nil {
		return err
	}
	if err := link.Update(s.link, s.geo); err != nil {
		return err
	}
	s.metrics.incSendCount()

	log := s.cfg.GetLogger()
	strategy := s.cfg.TimerStrategy()
	timing := strategy.Initial()
	for round := 1; ; round++ {
		tx, err := s.link.AllocTx(s.geo.NumDevices())
		if err != nil {
			return err
		}

		s.msgID.Increment()
		if err := operation.Pack(s.msgID, pairs, s.geo, tx, parallel); err != nil {
			return err
		}
		s.metrics.incRoundCount()
		s.metrics.addFrameCount(numActive)
		log.Debug("sender round", "msg_id", s.msgID, "round", round, "devices", numActive, "parallel", parallel)

		if err := s.sendReceive(ctx, tx, timeout); err != nil {
			return err
		}

		if operation.IsDone(pairs) {
			s.applyEffects(pairs)
			return nil
		}

		timing, err = strategy.Sleep(ctx, timing, s.cfg.SendInterval())
		if err != nil {
			return err
		}
	}
}

func (s *Sender) sendReceive(ctx context.Context, tx []link.TxMessage, timeout time.Duration) error {
	if err := link.EnsureIsOpen(s.link); err != nil {
		return err
	}
	if err := s.link.Send(ctx, tx); err != nil {
		return err
	}

	return s.waitProcessed(ctx, tx, timeout)
}

// waitProcessed polls acknowledgments until every addressed device echoes the
// current message id.
//
// An error ack equal to the one that aborted the previous send may be stale:
// the frame of this round can have been lost. Such an ack aborts the round only
// once the frames were resent or the timeout expired.
func (s *Sender) waitProcessed(ctx context.Context, tx []link.TxMessage, timeout time.Duration) error {
	log := s.cfg.GetLogger()
	strategy := s.cfg.TimerStrategy()
	interval := s.cfg.ReceiveInterval()
	retransmit := s.cfg.retransmitFor(timeout)

	start := time.Now()
	lastTx := start
	resent := false
	timing := strategy.Initial()
	for {
		if err := link.EnsureIsOpen(s.link); err != nil {
			return err
		}
		if err := s.link.Receive(ctx, s.rx); err != nil {
			return err
		}

		expired := time.Since(start) > timeout
		done, err := s.checkAcks(resent || expired)
		if err != nil {
			s.metrics.incFirmwareErrCount()
			log.Error("device rejected frame", "msg_id", s.msgID, "error", err)

			return err
		}
		if done {
			return nil
		}

		if expired {
			if timeout == 0 && !s.cfg.Strict() {
				return nil
			}
			s.metrics.incTimeoutCount()
			log.Warn("acknowledgment timeout", "msg_id", s.msgID, "timeout", timeout, "pending", s.pending())

			return fmt.Errorf("%w: msg id %d within %v", ErrConfirmResponseFailed, s.msgID, timeout)
		}

		if retransmit > 0 && time.Since(lastTx) >= retransmit {
			if err := s.link.Send(ctx, tx); err != nil {
				return err
			}
			lastTx = time.Now()
			resent = true
			s.metrics.incRetransmitCount()
			log.Debug("retransmit frames", "msg_id", s.msgID)
		}

		timing, err = strategy.Sleep(ctx, timing, interval)
		if err != nil {
			return err
		}
	}
}

// checkAcks reports whether every addressed device acknowledged the current
// message id. The error of the first rejecting device is returned; an error
// ack left over from the previous send counts as pending unless trustStale is set.
func (s *Sender) checkAcks(trustStale bool) (bool, error) {
	done := true
	var fwErr error
	for i, sent := range s.sent {
		if !sent {
			continue
		}
		r := s.rx[i]
		if !r.IsError() {
			s.errAck[i] = 0
			if !r.Acknowledges(s.msgID) {
				done = false
			}
			continue
		}
		if r.Ack() == s.errAck[i] && !trustStale {
			done = false
			continue
		}
		s.errAck[i] = r.Ack()
		if fwErr == nil {
			fwErr = firmware.NewError(i, r.ErrorCode())
		}
	}
	if fwErr != nil {
		return false, fwErr
	}

	return done, nil
}

// pending returns the indices of addressed devices that have not acknowledged yet.
func (s *Sender) pending() []int {
	var idx []int
	for i, sent := range s.sent {
		if sent && !s.rx[i].Acknowledges(s.msgID) {
			idx = append(idx, i)
		}
	}

	return idx
}

// applyEffects replays the bank changes of a completed send on the mirror.
func (s *Sender) applyEffects(pairs []*operation.Pair) {
	for i, p := range pairs {
		if p == nil {
			continue
		}
		for _, e := range p.Effects() {
			// deadlines were checked by the device
			if err := s.segments[i].Apply(e, 0); err != nil {
				s.cfg.GetLogger().Debug("segment mirror diverged", "device", i, "error", err)
			}
		}
	}
}

// InitializeDevices brings every enabled device into the cleared state.
//
// A device that kept running may still hold the message id the sender starts
// with and would ignore the first frame, so a throwaway frame is sent first.
func (s *Sender) InitializeDevices(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.send(ctx, datagram.ReadsFPGAState(func(*geometry.Device) bool { return false }))

	return s.send(ctx, datagram.Pair(datagram.Clear{}, datagram.Synchronize{}))
}

// FirmwareInfos reads the firmware versions of every enabled device.
func (s *Sender) FirmwareInfos(ctx context.Context) ([]firmware.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queries := []struct {
		typ firmware.InfoType
		set func(*firmware.Info, uint8)
	}{
		{firmware.InfoCPUMajor, func(i *firmware.Info, v uint8) { i.CPUMajor = v }},
		{firmware.InfoCPUMinor, func(i *firmware.Info, v uint8) { i.CPUMinor = v }},
		{firmware.InfoFPGAMajor, func(i *firmware.Info, v uint8) { i.FPGAMajor = v }},
		{firmware.InfoFPGAMinor, func(i *firmware.Info, v uint8) { i.FPGAMinor = v }},
		{firmware.InfoFPGAFunctions, func(i *firmware.Info, v uint8) { i.FPGAFunctions = v }},
	}

	infos := make([]firmware.Info, s.geo.NumDevices())
	for i := range infos {
		infos[i].Idx = i
	}
	for _, q := range queries {
		if err := s.send(ctx, datagram.FirmwareInfo{Type: q.typ}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadFirmwareInfoFailed, err)
		}
		for i := range infos {
			q.set(&infos[i], s.rx[i].Data())
		}
	}
	if err := s.send(ctx, datagram.FirmwareInfo{Type: firmware.InfoClear}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFirmwareInfoFailed, err)
	}

	enabled := infos[:0]
	for _, info := range infos {
		if s.geo.Device(info.Idx).Enable {
			enabled = append(enabled, info)
		}
	}

	return enabled, nil
}

// FPGAStates polls the link once and decodes the FPGA state reported by every
// device. The entry of a device is nil when it is disabled or does not report
// its state; see datagram.ReadsFPGAState.
func (s *Sender) FPGAStates(ctx context.Context) ([]*firmware.FPGAState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := link.EnsureIsOpen(s.link); err != nil {
		return nil, err
	}
	if err := s.link.Receive(ctx, s.rx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFPGAStateFailed, err)
	}

	states := make([]*firmware.FPGAState, s.geo.NumDevices())
	for _, dev := range s.geo.Devices() {
		if !dev.Enable {
			continue
		}
		if state, ok := firmware.FPGAStateFromData(s.rx[dev.Idx()].Data()); ok {
			states[dev.Idx()] = &state
		}
	}

	return states, nil
}

// Close stops the output of every device and closes the link.
//
// The silencer is relaxed first so that the final null output cannot be
// rejected by a strict silencer.
func (s *Sender) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.link.IsOpen() {
		return nil
	}

	silencer := datagram.DefaultSilencer()
	silencer.Strict = false

	var errs []error
	errs = append(errs, s.send(ctx, silencer))
	errs = append(errs, s.send(ctx, datagram.Pair(datagram.NewGain(datagram.Null{}), datagram.NewModulation(datagram.NewStatic()))))
	errs = append(errs, s.send(ctx, datagram.Clear{}))
	errs = append(errs, s.link.Close())

	return errors.Join(errs...)
}
