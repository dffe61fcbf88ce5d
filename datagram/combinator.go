package datagram

import (
	"fmt"
	"sync"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
)

// PairPosition identifies a member of a Pair.
type PairPosition uint8

const (
	First PairPosition = iota + 1
	Second
)

func (p PairPosition) String() string {
	if p == Second {
		return "second"
	}

	return "first"
}

// PairError attributes a build error to one member of a Pair.
type PairError struct {
	Position PairPosition
	Err      error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("datagram: %s of pair: %v", e.Position, e.Err)
}

func (e *PairError) Unwrap() error { return e.Err }

// PairDatagram sends two datagrams in the same frame, the first in slot 1 and
// the second in slot 2. Only the slot 1 operation of each member is used.
type PairDatagram struct {
	D1 Datagram
	D2 Datagram
}

var _ Datagram = PairDatagram{}

// Pair returns a datagram sending d1 and d2 together.
func Pair(d1, d2 Datagram) PairDatagram { return PairDatagram{D1: d1, D2: d2} }

func (p PairDatagram) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	g1, err := p.D1.OperationGenerator(ctx)
	if err != nil {
		return nil, &PairError{Position: First, Err: err}
	}
	g2, err := p.D2.OperationGenerator(ctx)
	if err != nil {
		return nil, &PairError{Position: Second, Err: err}
	}

	return operation.GeneratorFunc(func(dev *geometry.Device) (operation.Operation, operation.Operation, bool) {
		op1, _, ok1 := g1.Generate(dev)
		op2, _, ok2 := g2.Generate(dev)
		if !ok1 && !ok2 {
			return nil, nil, false
		}
		if !ok1 {
			op1 = nil
		}
		if !ok2 {
			op2 = nil
		}
		return op1, op2, true
	}), nil
}

func (p PairDatagram) Option() Option { return p.D1.Option().Merge(p.D2.Option()) }

// GroupError attributes a build error to one entry of a Group.
type GroupError struct {
	Key any
	Err error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("datagram: group key %v: %v", e.Key, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// GroupDatagram sends a different datagram to each subset of devices.
type GroupDatagram[K comparable] struct {
	keyOf   func(dev *geometry.Device) (K, bool)
	entries map[K]Datagram
}

// Group returns a datagram dispatching to entries by the key keyOf assigns to
// each device. Devices for which keyOf returns false are left out.
func Group[K comparable](keyOf func(dev *geometry.Device) (K, bool), entries map[K]Datagram) *GroupDatagram[K] {
	return &GroupDatagram[K]{keyOf: keyOf, entries: entries}
}

func (g *GroupDatagram[K]) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	geo := ctx.Geometry
	keys := make([]K, geo.NumDevices())
	hasKey := make([]bool, geo.NumDevices())
	var order []K
	members := make(map[K][]bool, len(g.entries))

	for _, dev := range geo.Devices() {
		if !ctx.Mask.Has(dev) {
			continue
		}
		key, ok := g.keyOf(dev)
		if !ok {
			continue
		}
		if _, found := g.entries[key]; !found {
			return nil, &GroupError{Key: key, Err: ErrUnknownKey}
		}
		bits, seen := members[key]
		if !seen {
			bits = make([]bool, geo.NumDevices())
			members[key] = bits
			order = append(order, key)
		}
		bits[dev.Idx()] = true
		keys[dev.Idx()] = key
		hasKey[dev.Idx()] = true
	}
	for key := range g.entries {
		if _, used := members[key]; !used {
			return nil, &GroupError{Key: key, Err: ErrUnusedKey}
		}
	}

	generators := make(map[K]operation.Generator, len(order))
	for _, key := range order {
		bits := members[key]
		mask := geometry.MaskFromFunc(geo, func(dev *geometry.Device) bool { return bits[dev.Idx()] })
		gen, err := g.entries[key].OperationGenerator(ctx.withMask(mask))
		if err != nil {
			return nil, &GroupError{Key: key, Err: err}
		}
		generators[key] = gen
	}

	return operation.GeneratorFunc(func(dev *geometry.Device) (operation.Operation, operation.Operation, bool) {
		if dev.Idx() >= len(hasKey) || !hasKey[dev.Idx()] {
			return nil, nil, false
		}
		return generators[keys[dev.Idx()]].Generate(dev)
	}), nil
}

func (g *GroupDatagram[K]) Option() Option {
	opt := identityOption()
	for _, d := range g.entries {
		opt = opt.Merge(d.Option())
	}

	return opt
}

// Boxed holds a datagram behind the Datagram interface so that commands of
// different types can be stored together. It can be built once.
type Boxed struct {
	mu     sync.Mutex
	inner  Datagram
	option Option
}

var _ Datagram = (*Boxed)(nil)

// Box moves d into a Boxed datagram.
func Box(d Datagram) *Boxed {
	return &Boxed{inner: d, option: d.Option()}
}

// OperationGenerator builds the boxed datagram and releases it. Building twice
// returns ErrBoxedConsumed, or panics in builds with the autd_debug tag.
func (b *Boxed) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	b.mu.Lock()
	d := b.inner
	b.inner = nil
	b.mu.Unlock()

	if d == nil {
		if debugBoxed {
			panic(ErrBoxedConsumed)
		}
		return nil, ErrBoxedConsumed
	}

	return d.OperationGenerator(ctx)
}

// Option returns the option of the boxed datagram, also after it was consumed.
func (b *Boxed) Option() Option { return b.option }

// Consumed reports whether the boxed datagram was already built.
func (b *Boxed) Consumed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.inner == nil
}
