package cli

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-autd/config"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/link/remote"
	"github.com/arloliu/go-autd/link/serial"
	"github.com/arloliu/go-autd/link/udp"
)

// Emulation transports.
const (
	transportUDP    = "udp"
	transportSerial = "serial"
	transportRemote = "remote"
)

func (a *app) newEmulateCommand() *cobra.Command {
	var (
		transport string
		listen    string
		baud      int
	)

	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Emulate the configured devices behind a transport",
		Long: `Emulate the devices of the configured geometry and answer frame sets
over UDP, a serial port or the remote WebSocket protocol, so that a session
can be tested without hardware.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if _, err := a.emulatorConfig().NewLink(a.log); err != nil {
				return err
			}

			if transport == transportRemote {
				srv, err := remote.NewServer(a.newEmulator, remote.WithServerLogger(a.log))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Emulating devices on ws://%s\n", listen)

				return srv.ListenAndServe(ctx, listen)
			}

			geo, err := a.cfg.BuildGeometry()
			if err != nil {
				return err
			}
			emu := a.newEmulator()
			if err := emu.Open(ctx, geo); err != nil {
				return err
			}
			defer emu.Close()

			switch transport {
			case transportUDP:
				conn, err := net.ListenPacket("udp", listen)
				if err != nil {
					return fmt.Errorf("failed to listen: %w", err)
				}
				defer conn.Close()
				fmt.Fprintf(out, "Emulating %d devices on udp://%s\n", geo.NumDevices(), conn.LocalAddr())

				return udp.Serve(ctx, conn, emu, a.log)
			case transportSerial:
				port, err := serial.OpenPort(listen, baud)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", listen, err)
				}
				fmt.Fprintf(out, "Emulating %d devices on %s\n", geo.NumDevices(), listen)

				return serial.Serve(ctx, port, emu, a.log)
			default:
				return fmt.Errorf("unknown transport %q", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", transportUDP, "transport: udp, serial, remote")
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:9000", "listen address, or serial device path")
	cmd.Flags().IntVar(&baud, "baud", serial.DefaultBaudRate, "baud rate of the serial transport")

	return cmd
}

func (a *app) emulatorConfig() *config.Config {
	cfg := *a.cfg
	cfg.Link.Kind = config.LinkEmulator

	return &cfg
}

// newEmulator creates an emulator for the configured firmware generation.
func (a *app) newEmulator() link.Link {
	l, err := a.emulatorConfig().NewLink(a.log)
	if err != nil {
		// the version was validated when the command started
		a.log.Error("failed to create emulator", "error", err)
		return link.NewNop()
	}

	return l
}

func (a *app) newServeCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the configured link to remote clients",
		Long: `Serve the remote WebSocket protocol and open the configured link for
every connected session, so that devices attached to this host can be driven
from another one with a remote link.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.cfg.NewLink(a.log); err != nil {
				return err
			}

			factory := func() link.Link {
				l, err := a.cfg.NewLink(a.log)
				if err != nil {
					a.log.Error("failed to create link", "error", err)
					return link.NewNop()
				}

				return l
			}
			srv, err := remote.NewServer(factory, remote.WithServerLogger(a.log))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s link on ws://%s\n", a.cfg.Link.Kind, listen)

			return srv.ListenAndServe(cmd.Context(), listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "listen address")

	return cmd
}

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports of this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.Ports()
			if err != nil {
				return fmt.Errorf("failed to list ports: %w", err)
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}

			return nil
		},
	}
}
