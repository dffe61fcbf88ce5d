// Package cli implements the autdctl command tree.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-autd/config"
	"github.com/arloliu/go-autd/controller"
	"github.com/arloliu/go-autd/logger"
)

// app holds the global flags and the state set during PersistentPreRun.
type app struct {
	cfgFile  string
	logLevel string
	linkKind string
	address  string

	cfg *config.Config
	log logger.Logger
}

// NewRootCommand builds the autdctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "autdctl",
		Short: "Drive ultrasound phased arrays from the command line",
		Long: `autdctl opens a session to a set of phased-array devices over the
configured link, and sends focus, modulation and STM commands to them.
It can also emulate devices and expose a local link to remote clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ~/.autd/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.linkKind, "link", "", "link kind: emulator, nop, udp, serial, remote")
	flags.StringVar(&a.address, "address", "", "link address: host:port for udp, device path for serial, url for remote")

	rootCmd.AddCommand(
		a.newInfoCommand(),
		a.newClearCommand(),
		a.newFocusCommand(),
		a.newSTMCommand(),
		a.newEmulateCommand(),
		a.newServeCommand(),
		newPortsCommand(),
	)

	return rootCmd
}

func (a *app) load() error {
	path := a.cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// flags override the file
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.linkKind != "" {
		cfg.Link.Kind = a.linkKind
	}
	if a.address != "" {
		switch cfg.Link.Kind {
		case config.LinkSerial:
			cfg.Link.Device = a.address
		case config.LinkRemote:
			cfg.Link.URL = a.address
		default:
			cfg.Link.Address = a.address
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = cfg.NewLogger()

	return nil
}

// open starts a controller session over the configured link.
func (a *app) open(ctx context.Context) (*controller.Controller, error) {
	geo, err := a.cfg.BuildGeometry()
	if err != nil {
		return nil, err
	}
	l, err := a.cfg.NewLink(a.log)
	if err != nil {
		return nil, err
	}
	opts, err := a.cfg.ControllerOptions(a.log)
	if err != nil {
		return nil, err
	}

	return controller.Open(ctx, geo, l, opts...)
}

// hold waits for d, or until ctx is done when d is zero.
func hold(ctx context.Context, d time.Duration) {
	if d <= 0 {
		<-ctx.Done()
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
