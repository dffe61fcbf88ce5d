package operation

import (
	"testing"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
)

// newTestGeometry creates n devices with numTrans transducers each.
func newTestGeometry(t *testing.T, n, numTrans int) *geometry.Geometry {
	t.Helper()

	specs := make([]geometry.DeviceSpec, n)
	for i := range specs {
		specs[i] = geometry.Grid(geometry.Point3{X: float32(i) * 200}, numTrans, 1, 10)
	}
	geo, err := geometry.New(specs...)
	if err != nil {
		t.Fatalf("newTestGeometry: %v", err)
	}

	return geo
}

// makeSamples returns n modulation samples with a recognizable pattern.
func makeSamples(n int) []uint8 {
	buf := make([]uint8, n)
	for i := range buf {
		buf[i] = uint8(i * 7)
	}

	return buf
}

// makeDrives returns one drive per transducer derived from seed.
func makeDrives(n int, seed uint8) []firmware.Drive {
	drives := make([]firmware.Drive, n)
	for i := range drives {
		drives[i] = firmware.Drive{Phase: seed + uint8(i), Intensity: 0xFF - uint8(i)}
	}

	return drives
}

// countingOp is an operation of a fixed size that takes a number of packs to finish.
type countingOp struct {
	size   int
	remain int
	packs  int
}

func (o *countingOp) RequiredSize(*geometry.Device) int { return o.size }

func (o *countingOp) Pack(_ *geometry.Device, buf []byte) (int, error) {
	if len(buf) < o.size {
		return 0, ErrBufferTooSmall
	}
	for i := 0; i < o.size; i++ {
		buf[i] = 0xEE
	}
	o.packs++
	o.remain--

	return o.size, nil
}

func (o *countingOp) IsDone() bool { return o.remain <= 0 }
