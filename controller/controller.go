// Package controller ties a link, a geometry and a sender into one session.
//
// Open connects the link, brings the devices into a known state and detects
// the firmware generation they run, so that every datagram sent afterwards
// is built for the right wire format.
package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arloliu/go-autd/datagram"
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/logger"
	"github.com/arloliu/go-autd/sender"
)

// ErrClosed is returned by a controller after Close.
var ErrClosed = errors.New("controller: controller is closed")

// Controller is an open session with a set of devices.
type Controller struct {
	session string
	geo     *geometry.Geometry
	link    link.Link
	sender  *sender.Sender
	infos   []firmware.Info
	logger  logger.Logger
	closed  bool
}

// Open opens l for geo and prepares the devices.
//
// Unless disabled by options, the devices are cleared and synchronized, then
// their firmware information is read. All enabled devices must run the same
// generation, otherwise Open fails with firmware.ErrFirmwareVersionMismatch.
// The link is closed again when Open fails after opening it.
func Open(ctx context.Context, geo *geometry.Geometry, l link.Link, opts ...Option) (*Controller, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	if geo == nil || l == nil {
		return nil, errors.New("controller: geometry and link must not be nil")
	}

	session := uuid.NewString()
	log := cfg.logger.With("session", session)

	senderOpts := append([]sender.Option{sender.WithLogger(log)}, cfg.senderOpts...)
	s, err := sender.New(l, geo, senderOpts...)
	if err != nil {
		return nil, err
	}

	if err := l.Open(ctx, geo); err != nil {
		return nil, fmt.Errorf("controller: open link: %w", err)
	}

	c := &Controller{session: session, geo: geo, link: l, sender: s, logger: log}
	if err := c.prepare(ctx, cfg); err != nil {
		_ = l.Close()
		return nil, err
	}
	log.Info("session opened", "devices", geo.NumDevices(), "version", s.Version())

	return c, nil
}

func (c *Controller) prepare(ctx context.Context, cfg *Config) error {
	if cfg.initialize {
		if err := c.sender.InitializeDevices(ctx); err != nil {
			return err
		}
	}

	if cfg.version.Valid() {
		return c.sender.SetVersion(cfg.version)
	}

	infos, err := c.sender.FirmwareInfos(ctx)
	if err != nil {
		return err
	}
	c.infos = infos
	for _, info := range infos {
		c.logger.Debug("firmware", "device", info.Idx, "cpu", info.CPUVersion(), "fpga", info.FPGAVersion())
	}

	v, err := detectVersion(infos)
	if err != nil {
		return err
	}

	return c.sender.SetVersion(v)
}

// detectVersion returns the common generation of infos.
func detectVersion(infos []firmware.Info) (firmware.Version, error) {
	if len(infos) == 0 {
		return firmware.Latest, nil
	}

	var version firmware.Version
	for _, info := range infos {
		v, err := info.Version()
		if err != nil {
			return 0, fmt.Errorf("device %d: %w", info.Idx, err)
		}
		if version != 0 && v != version {
			return 0, fmt.Errorf("%w: device %d runs %s, device %d runs %s",
				firmware.ErrFirmwareVersionMismatch, infos[0].Idx, version, info.Idx, v)
		}
		version = v
	}

	return version, nil
}

// SessionID returns the unique id of the session, attached to every log line.
func (c *Controller) SessionID() string { return c.session }

// Geometry returns the geometry of the session.
func (c *Controller) Geometry() *geometry.Geometry { return c.geo }

// Sender returns the sender of the session.
func (c *Controller) Sender() *sender.Sender { return c.sender }

// Version returns the firmware generation datagrams are built for.
func (c *Controller) Version() firmware.Version { return c.sender.Version() }

// FirmwareInfos returns the firmware information read on Open. It is empty when
// the version was given with WithFirmwareVersion.
func (c *Controller) FirmwareInfos() []firmware.Info { return c.infos }

// Send transmits d to every enabled device. See sender.Sender.Send.
func (c *Controller) Send(ctx context.Context, d datagram.Datagram) error {
	if c.closed {
		return ErrClosed
	}

	return c.sender.Send(ctx, d)
}

// FPGAStates reads the FPGA state of every device that was asked to report it.
func (c *Controller) FPGAStates(ctx context.Context) ([]*firmware.FPGAState, error) {
	if c.closed {
		return nil, ErrClosed
	}

	return c.sender.FPGAStates(ctx)
}

// Close stops the output of every device and closes the link.
func (c *Controller) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.sender.Close(ctx)
	c.logger.Info("session closed", "error", err)

	return err
}
