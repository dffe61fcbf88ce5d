package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-autd/datagram"
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
)

func (a *app) newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the firmware version and FPGA state of every device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return fmt.Errorf("failed to open session: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s, firmware %s\n", c.SessionID(), c.Version())
			for _, info := range c.FirmwareInfos() {
				fmt.Fprintln(out, info.String())
			}

			err = c.Send(ctx, datagram.ReadsFPGAState(func(*geometry.Device) bool { return true }))
			if err == nil {
				var states []*firmware.FPGAState
				states, err = c.FPGAStates(ctx)
				for i, s := range states {
					if s != nil {
						fmt.Fprintf(out, "%d: FPGA state %s\n", i, s)
					}
				}
			}

			return errors.Join(err, c.Close(context.WithoutCancel(ctx)))
		},
	}
}

func (a *app) newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Reset every device to its power-on state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return fmt.Errorf("failed to open session: %w", err)
			}

			err = c.Send(ctx, datagram.Clear{})
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Devices cleared.")
			}

			return errors.Join(err, c.Close(context.WithoutCancel(ctx)))
		},
	}
}

func (a *app) newFocusCommand() *cobra.Command {
	var (
		intensity uint8
		freq      int
		duration  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "focus <x> <y> <z>",
		Short: "Produce a single focal point, optionally amplitude modulated",
		Long: `Produce a single focal point at the given position in millimeters.
With --freq the output is modulated by a sine wave of that frequency.
The output is held for --duration, or until interrupted when zero.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePoint(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return fmt.Errorf("failed to open session: %w", err)
			}

			focus := datagram.NewFocus(pos)
			focus.Intensity = intensity

			var mod datagram.Datagram = datagram.NewModulation(datagram.NewStatic())
			if freq > 0 {
				mod = datagram.NewModulation(datagram.NewSine(freq))
			}

			err = c.Send(ctx, datagram.Pair(mod, datagram.NewGain(focus)))
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Focus at (%g, %g, %g) mm.\n", pos.X, pos.Y, pos.Z)
				hold(ctx, duration)
			}

			return errors.Join(err, c.Close(context.WithoutCancel(ctx)))
		},
	}

	cmd.Flags().Uint8Var(&intensity, "intensity", firmware.MaxIntensity, "focus intensity (0-255)")
	cmd.Flags().IntVar(&freq, "freq", 0, "sine modulation frequency in Hz, 0 for static")
	cmd.Flags().DurationVar(&duration, "duration", 0, "how long to hold the output, 0 until interrupted")

	return cmd
}

func (a *app) newSTMCommand() *cobra.Command {
	var (
		center   []float32
		radius   float32
		points   int
		freq     float64
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stm",
		Short: "Move a focal point around a circle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(center) != 3 {
				return fmt.Errorf("--center needs 3 values, got %d", len(center))
			}
			if points <= 0 || freq <= 0 {
				return errors.New("--points and --freq must be positive")
			}

			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return fmt.Errorf("failed to open session: %w", err)
			}

			cp := geometry.Point3{X: center[0], Y: center[1], Z: center[2]}
			config := firmware.FreqNearest(freq * float64(points))
			stm := datagram.NewFociSTM(config, datagram.Circle(cp, radius, points)...)

			err = c.Send(ctx, datagram.Pair(datagram.NewModulation(datagram.NewStatic()), stm))
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Circle of %d points at %.2f Hz sampling.\n", points, config.Freq())
				hold(ctx, duration)
			}

			return errors.Join(err, c.Close(context.WithoutCancel(ctx)))
		},
	}

	cmd.Flags().Float32SliceVar(&center, "center", []float32{96, 70, 150}, "circle center x,y,z in mm")
	cmd.Flags().Float32Var(&radius, "radius", 30, "circle radius in mm")
	cmd.Flags().IntVar(&points, "points", 100, "number of points on the circle")
	cmd.Flags().Float64Var(&freq, "freq", 1, "revolutions per second")
	cmd.Flags().DurationVar(&duration, "duration", 0, "how long to hold the output, 0 until interrupted")

	return cmd
}

func parsePoint(args []string) (geometry.Point3, error) {
	var v [3]float32
	for i, s := range args {
		if _, err := fmt.Sscanf(s, "%g", &v[i]); err != nil {
			return geometry.Point3{}, fmt.Errorf("invalid coordinate %q: %w", s, err)
		}
	}

	return geometry.Point3{X: v[0], Y: v[1], Z: v[2]}, nil
}
