package emulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/datagram"
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/logger"
	"github.com/arloliu/go-autd/operation"
)

// newTestEmulator opens an emulator over n devices with numTrans transducers each.
func newTestEmulator(t *testing.T, n, numTrans int, opts ...Option) (*Emulator, *geometry.Geometry) {
	t.Helper()

	specs := make([]geometry.DeviceSpec, n)
	for i := range specs {
		specs[i] = geometry.Grid(geometry.Point3{X: float32(i) * 200}, numTrans, 1, 10)
	}
	geo, err := geometry.New(specs...)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(logger.NewPermissiveMockLogger())}, opts...)
	emu, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, emu.Open(context.Background(), geo))
	t.Cleanup(func() { _ = emu.Close() })

	return emu, geo
}

// driver packs datagrams and feeds them to an emulator round by round.
type driver struct {
	t   *testing.T
	emu *Emulator
	geo *geometry.Geometry
	id  link.MsgID

	// version the datagrams are built for.
	version firmware.Version
}

func newDriver(t *testing.T, emu *Emulator, geo *geometry.Geometry) *driver {
	return &driver{t: t, emu: emu, geo: geo, version: firmware.Latest}
}

// send transmits d until all of its operations are done or a device reports
// an error, and returns the acknowledgments of the last round.
func (dr *driver) send(d datagram.Datagram) []link.RxMessage {
	dr.t.Helper()

	ctx := datagram.NewBuildContext(dr.geo, dr.version, nil)
	gen, err := d.OperationGenerator(ctx)
	require.NoError(dr.t, err)
	pairs := operation.Generate(gen, dr.geo)

	rx := make([]link.RxMessage, dr.geo.NumDevices())
	for {
		dr.id.Increment()
		tx := link.AllocTx(dr.geo.NumDevices())
		require.NoError(dr.t, operation.Pack(dr.id, pairs, dr.geo, tx, false))
		require.NoError(dr.t, dr.emu.Send(context.Background(), tx))
		require.NoError(dr.t, dr.emu.Receive(context.Background(), rx))
		for _, r := range rx {
			if r.IsError() {
				return rx
			}
		}
		if operation.IsDone(pairs) {
			return rx
		}
	}
}

// frames packs the first round of d without sending it.
func (dr *driver) frames(d datagram.Datagram) ([]link.TxMessage, []*operation.Pair) {
	dr.t.Helper()

	gen, err := d.OperationGenerator(datagram.NewBuildContext(dr.geo, dr.version, nil))
	require.NoError(dr.t, err)
	pairs := operation.Generate(gen, dr.geo)
	dr.id.Increment()
	tx := link.AllocTx(dr.geo.NumDevices())
	require.NoError(dr.t, operation.Pack(dr.id, pairs, dr.geo, tx, false))

	return tx, pairs
}

func errorCodes(rx []link.RxMessage) []uint8 {
	codes := make([]uint8, len(rx))
	for i, r := range rx {
		if r.IsError() {
			codes[i] = r.ErrorCode()
		}
	}

	return codes
}
