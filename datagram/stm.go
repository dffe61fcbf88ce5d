package datagram

import (
	"fmt"
	"math"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// FociSTM moves one or more focal points along a sequence at a fixed rate.
type FociSTM struct {
	Points []operation.ControlPoints
	Config firmware.SamplingConfig
}

var _ SegmentWriter = FociSTM{}

// NewFociSTM returns a single-focus FociSTM visiting points at full intensity.
func NewFociSTM(config firmware.SamplingConfig, points ...geometry.Point3) FociSTM {
	cps := make([]operation.ControlPoints, len(points))
	for i, p := range points {
		cps[i] = operation.ControlPoints{
			Foci:      []operation.Focus{{Pos: p}},
			Intensity: firmware.MaxIntensity,
		}
	}

	return FociSTM{Points: cps, Config: config}
}

// Circle returns n points evenly spaced on a circle of radius r around center
// in the plane z = center.Z.
func Circle(center geometry.Point3, r float32, n int) []geometry.Point3 {
	points := make([]geometry.Point3, n)
	for i := range points {
		theta := 2 * math.Pi * float64(i) / float64(n)
		points[i] = center.Add(geometry.Point3{X: r * float32(math.Cos(theta)), Y: r * float32(math.Sin(theta))})
	}

	return points
}

func (d FociSTM) Category() segment.Category { return segment.STM }

func (d FociSTM) Option() Option { return DefaultOption() }

func (d FociSTM) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return d.SegmentGenerator(ctx, DefaultSegmentTarget())
}

func (d FociSTM) SegmentGenerator(ctx *BuildContext, target SegmentTarget) (operation.Generator, error) {
	if err := checkTarget(ctx, target); err != nil {
		return nil, err
	}
	if d.Config.FreqDiv == 0 {
		return nil, ErrSamplingFreqDivInvalid
	}
	limits := ctx.Limits()
	if len(d.Points) < firmware.STMBufSizeMin || len(d.Points) > limits.FociSTMBufSizeMax {
		return nil, fmt.Errorf("%w: %d points, expected %d to %d",
			ErrSTMSizeOutOfRange, len(d.Points), firmware.STMBufSizeMin, limits.FociSTMBufSizeMax)
	}
	numFoci := len(d.Points[0].Foci)
	if numFoci < 1 || numFoci > limits.NumFociMax {
		return nil, fmt.Errorf("%w: %d foci, expected 1 to %d", ErrFociSTMNumFociOutOfRange, numFoci, limits.NumFociMax)
	}
	for i, cp := range d.Points {
		if len(cp.Foci) != numFoci {
			return nil, fmt.Errorf("%w: point %d has %d foci, expected %d",
				ErrFociSTMNumFociOutOfRange, i, len(cp.Foci), numFoci)
		}
	}

	return forEachDevice(ctx, func(*geometry.Device) operation.Operation {
		return operation.NewFociSTM(d.Points, numFoci, d.Config, target.Loop, target.Segment, target.Transition)
	}), nil
}

// GainSTM plays a sequence of gains at a fixed rate.
type GainSTM struct {
	Gains  []Gain
	Mode   firmware.GainSTMMode
	Config firmware.SamplingConfig
}

var _ SegmentWriter = GainSTM{}

// NewGainSTM returns a GainSTM sending phase and intensity of every gain.
func NewGainSTM(config firmware.SamplingConfig, gains ...Gain) GainSTM {
	return GainSTM{Gains: gains, Mode: firmware.GainSTMPhaseIntensityFull, Config: config}
}

func (d GainSTM) Category() segment.Category { return segment.STM }

func (d GainSTM) Option() Option { return DefaultOption() }

func (d GainSTM) OperationGenerator(ctx *BuildContext) (operation.Generator, error) {
	return d.SegmentGenerator(ctx, DefaultSegmentTarget())
}

func (d GainSTM) SegmentGenerator(ctx *BuildContext, target SegmentTarget) (operation.Generator, error) {
	if err := checkTarget(ctx, target); err != nil {
		return nil, err
	}
	if d.Config.FreqDiv == 0 {
		return nil, ErrSamplingFreqDivInvalid
	}
	limit := ctx.Limits().GainSTMBufSizeMax
	if len(d.Gains) < firmware.STMBufSizeMin || len(d.Gains) > limit {
		return nil, fmt.Errorf("%w: %d gains, expected %d to %d",
			ErrSTMSizeOutOfRange, len(d.Gains), firmware.STMBufSizeMin, limit)
	}

	// patterns[dev][i] is the drive table of gain i on device dev
	patterns := make([][][]firmware.Drive, ctx.Geometry.NumDevices())
	for i, g := range d.Gains {
		drives, err := calcDrives(ctx.Geometry, geometry.TransducerMaskFromDevices(ctx.Mask), g)
		if err != nil {
			return nil, fmt.Errorf("gain %d: %w", i, err)
		}
		for idx, dd := range drives {
			if dd != nil {
				patterns[idx] = append(patterns[idx], dd)
			}
		}
	}

	return forEachDevice(ctx, func(dev *geometry.Device) operation.Operation {
		return operation.NewGainSTM(patterns[dev.Idx()], d.Mode, d.Config, target.Loop, target.Segment, target.Transition)
	}), nil
}
