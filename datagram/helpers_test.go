package datagram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// newTestGeometry creates n devices with numTrans transducers each, 200 mm apart.
func newTestGeometry(t *testing.T, n, numTrans int) *geometry.Geometry {
	t.Helper()

	specs := make([]geometry.DeviceSpec, n)
	for i := range specs {
		specs[i] = geometry.Grid(geometry.Point3{X: float32(i) * 200}, numTrans, 1, 10)
	}
	geo, err := geometry.New(specs...)
	require.NoError(t, err)

	return geo
}

func newTestContext(t *testing.T, n, numTrans int) *BuildContext {
	t.Helper()

	return NewBuildContext(newTestGeometry(t, n, numTrans), firmware.Latest, nil)
}

// build builds d and generates the operations of every device.
func build(t *testing.T, ctx *BuildContext, d Datagram) []*operation.Pair {
	t.Helper()

	gen, err := d.OperationGenerator(ctx)
	require.NoError(t, err)

	return operation.Generate(gen, ctx.Geometry)
}

// writtenSegment returns the segment an operation writes to.
func writtenSegment(t *testing.T, op operation.Operation) firmware.Segment {
	t.Helper()

	e, ok := op.(segment.Effector)
	require.True(t, ok, "%T reports no segment effect", op)
	eff, _ := e.SegmentEffect()

	return eff.Segment
}

// failing is a datagram whose build always fails.
type failing struct {
	err error
	opt Option
}

func (f failing) OperationGenerator(*BuildContext) (operation.Generator, error) { return nil, f.err }

func (f failing) Option() Option { return f.opt }
