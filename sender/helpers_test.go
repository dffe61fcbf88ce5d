package sender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link/emulator"
	"github.com/arloliu/go-autd/logger"
)

// newTestGeometry builds n single-row devices of numTrans transducers, 200mm apart.
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

type testEnv struct {
	geo    *geometry.Geometry
	emu    *emulator.Emulator
	sender *Sender
	log    *logger.MockLogger
}

// newTestEnv opens an emulator over n devices and builds a sender on top of it.
func newTestEnv(t *testing.T, n int, emuOpts []emulator.Option, opts ...Option) *testEnv {
	t.Helper()

	geo := newTestGeometry(t, n, 4)
	log := logger.NewPermissiveMockLogger()

	emuOpts = append([]emulator.Option{emulator.WithLogger(log)}, emuOpts...)
	emu, err := emulator.New(emuOpts...)
	require.NoError(t, err)
	require.NoError(t, emu.Open(context.Background(), geo))
	t.Cleanup(func() { _ = emu.Close() })

	opts = append([]Option{WithLogger(log)}, opts...)
	s, err := New(emu, geo, opts...)
	require.NoError(t, err)

	return &testEnv{geo: geo, emu: emu, sender: s, log: log}
}

// recordingSleeper records requested durations without sleeping.
type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}
