package link

import (
	"context"
	"sync"

	"github.com/arloliu/go-autd/geometry"
)

// Nop is a link that acknowledges every frame immediately without driving any
// hardware. It is useful for dry runs and benchmarks of the packing path.
type Nop struct {
	mu     sync.Mutex
	isOpen bool
	lastID []MsgID
	sent   int
}

var _ Link = (*Nop)(nil)

// NewNop creates a closed Nop link.
func NewNop() *Nop { return &Nop{} }

func (l *Nop) Open(_ context.Context, geo *geometry.Geometry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.isOpen = true
	l.lastID = make([]MsgID, geo.NumDevices())

	return nil
}

func (l *Nop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.isOpen = false

	return nil
}

func (l *Nop) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.isOpen
}

func (l *Nop) AllocTx(n int) ([]TxMessage, error) {
	if !l.IsOpen() {
		return nil, ErrLinkClosed
	}

	return AllocTx(n), nil
}

func (l *Nop) Send(_ context.Context, tx []TxMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return ErrLinkClosed
	}
	if len(tx) != len(l.lastID) {
		return ErrFrameCount
	}
	for i := range tx {
		l.lastID[i] = tx[i].MsgID()
	}
	l.sent++

	return nil
}

func (l *Nop) Receive(_ context.Context, rx []RxMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return ErrLinkClosed
	}
	for i := range rx {
		if i < len(l.lastID) {
			rx[i] = AckMsgID(0, l.lastID[i])
		}
	}

	return nil
}

// SentCount returns the number of frame sets sent so far.
func (l *Nop) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sent
}
