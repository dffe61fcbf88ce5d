package operation

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/segment"
)

// Pair holds the two slot operations of one device.
type Pair struct {
	Op1 Operation
	Op2 Operation
}

// IsDone reports whether both slots are done.
func (p *Pair) IsDone() bool { return p.Op1.IsDone() && p.Op2.IsDone() }

// Effects returns the bank changes of the finished operations of p.
func (p *Pair) Effects() []segment.Effect {
	var effects []segment.Effect
	for _, op := range []Operation{p.Op1, p.Op2} {
		if e, ok := op.(segment.Effector); ok {
			if eff, done := e.SegmentEffect(); done {
				effects = append(effects, eff)
			}
		}
	}

	return effects
}

// Generate asks g for the operation pair of every enabled device.
// The result is indexed by device; excluded devices have a nil entry.
func Generate(g Generator, geo *geometry.Geometry) []*Pair {
	pairs := make([]*Pair, geo.NumDevices())
	for _, dev := range geo.Devices() {
		if !dev.Enable {
			continue
		}
		op1, op2, ok := g.Generate(dev)
		if !ok {
			continue
		}
		if op1 == nil {
			op1 = Nop{}
		}
		if op2 == nil {
			op2 = Nop{}
		}
		pairs[dev.Idx()] = &Pair{Op1: op1, Op2: op2}
	}

	return pairs
}

// IsDone reports whether every present pair is done.
func IsDone(pairs []*Pair) bool {
	for _, p := range pairs {
		if p != nil && !p.IsDone() {
			return false
		}
	}

	return true
}

// CountActive returns the number of present pairs.
func CountActive(pairs []*Pair) int {
	n := 0
	for _, p := range pairs {
		if p != nil {
			n++
		}
	}

	return n
}

// Pack writes the header of every frame and the next chunk of every unfinished
// pair. Devices without a pair, or whose pair is done, get an empty payload,
// which devices treat as a no-op.
//
// With parallel set, devices are packed on a worker pool bounded by GOMAXPROCS.
// Packing a device only touches its own frame and operations, so the result
// is the same either way.
func Pack(id link.MsgID, pairs []*Pair, geo *geometry.Geometry, tx []link.TxMessage, parallel bool) error {
	if len(tx) != geo.NumDevices() || len(pairs) != geo.NumDevices() {
		return link.ErrFrameCount
	}

	if !parallel {
		for _, dev := range geo.Devices() {
			if err := packDevice(id, pairs[dev.Idx()], dev, &tx[dev.Idx()], false); err != nil {
				return err
			}
		}

		return nil
	}

	devices := geo.Devices()
	errs := make([]error, len(devices))
	jobs := make(chan int)
	workers := min(runtime.GOMAXPROCS(0), len(devices))

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = packDevice(id, pairs[i], devices[i], &tx[i], true)
			}
		}()
	}
	for i := range devices {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

func packDevice(id link.MsgID, p *Pair, dev *geometry.Device, tx *link.TxMessage, parallel bool) error {
	tx.PackHeader(id, parallel)
	payload := tx.Payload()
	clear(payload)

	if p == nil || p.IsDone() {
		return nil
	}

	switch {
	case p.Op1.IsDone():
		return packSlot(p.Op2, dev, payload)
	case p.Op2.IsDone():
		return packSlot(p.Op1, dev, payload)
	}

	req1, req2 := p.Op1.RequiredSize(dev), p.Op2.RequiredSize(dev)
	if req1 > len(payload) {
		return fmt.Errorf("%w: slot 1 of device %d needs %d bytes", ErrRequiredSizeTooLarge, dev.Idx(), req1)
	}
	if req2 > len(payload) {
		return fmt.Errorf("%w: slot 2 of device %d needs %d bytes", ErrRequiredSizeTooLarge, dev.Idx(), req2)
	}

	n1, err := p.Op1.Pack(dev, payload)
	if err != nil {
		return err
	}

	// slot 2 waits for a later round if it does not fit next to slot 1
	if len(payload)-n1 < req2 {
		return nil
	}
	tx.SetSlot2Offset(n1)
	_, err = p.Op2.Pack(dev, payload[n1:])

	return err
}

func packSlot(op Operation, dev *geometry.Device, payload []byte) error {
	if req := op.RequiredSize(dev); req > len(payload) {
		return fmt.Errorf("%w: device %d needs %d bytes", ErrRequiredSizeTooLarge, dev.Idx(), req)
	}
	_, err := op.Pack(dev, payload)

	return err
}
