// Package remote provides a link that drives devices attached to another host,
// and the server that exposes a local link to such clients.
//
// Client and server talk over a WebSocket connection. Each request is a single
// binary message answered by a single binary message: a hello handshake, the
// geometry, frame sets, acknowledgment reads and close. The server opens one
// device link per connected session.
package remote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
)

// Link is a link.Link whose devices are reached through a remote server.
type Link struct {
	cfg *Config

	mu      sync.Mutex
	conn    *websocket.Conn
	isOpen  bool
	session string
	enabled []bool
}

var (
	_ link.Link    = (*Link)(nil)
	_ link.Updater = (*Link)(nil)
)

// New creates a closed remote link for the server at url.
func New(url string, opts ...Option) (*Link, error) {
	cfg, err := NewConfig(url, opts...)
	if err != nil {
		return nil, err
	}

	return &Link{cfg: cfg}, nil
}

// Config returns the link configuration.
func (l *Link) Config() *Config { return l.cfg }

// SessionID returns the id the server assigned to the connection, empty if closed.
func (l *Link) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.session
}

// Open connects to the server, performs the handshake and sends the geometry.
func (l *Link) Open(ctx context.Context, geo *geometry.Geometry) error {
	if err := l.Close(); err != nil {
		l.cfg.logger.Warn("failed to close previous session", "error", err)
	}

	conn, resp, err := l.cfg.dialer.DialContext(ctx, l.cfg.url, l.cfg.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("remote: dial %s: %w", l.cfg.url, err)
	}

	session, err := l.roundTrip(ctx, conn, encodeHello())
	if err == nil {
		_, err = l.roundTrip(ctx, conn, encodeGeometry(MsgConfigGeometry, geo))
	}
	if err != nil {
		_ = conn.Close()
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.isOpen = true
	l.session = string(session)
	l.enabled = enabledFlags(geo)
	l.mu.Unlock()

	l.cfg.logger.Debug("remote link opened", "url", l.cfg.url, "session", string(session), "devices", geo.NumDevices())

	return nil
}

func enabledFlags(geo *geometry.Geometry) []bool {
	flags := make([]bool, geo.NumDevices())
	for i, dev := range geo.Devices() {
		flags[i] = dev.Enable
	}

	return flags
}

// roundTrip writes req and reads its response. The context deadline bounds
// both, falling back to the configured timeout.
func (l *Link) roundTrip(ctx context.Context, conn *websocket.Conn, req []byte) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(l.cfg.timeout)
	}

	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				_ = conn.SetReadDeadline(time.Now())
			case <-stop:
			}
		}()
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		return nil, fmt.Errorf("remote: write: %w", err)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, fmt.Errorf("remote: read: %w", err)
	}

	return decodeResponse(msg)
}

// request performs a round trip on the open connection. A transport failure
// leaves the connection unusable, so the link is marked closed.
func (l *Link) request(ctx context.Context, req []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return nil, link.ErrLinkClosed
	}

	body, err := l.roundTrip(ctx, l.conn, req)
	if err != nil && !errors.Is(err, ErrServer) {
		l.isOpen = false
		l.cfg.logger.Error("remote session lost", "session", l.session, "error", err)
	}

	return body, err
}

// Close ends the session on the server and closes the connection.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}

	var err error
	if l.isOpen {
		_, err = l.roundTrip(context.Background(), l.conn, []byte{MsgClose})
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	err = errors.Join(err, l.conn.Close())

	l.conn = nil
	l.isOpen = false
	l.session = ""

	return err
}

func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.isOpen
}

func (l *Link) AllocTx(n int) ([]link.TxMessage, error) {
	if !l.IsOpen() {
		return nil, link.ErrLinkClosed
	}

	return link.AllocTx(n), nil
}

// Update forwards enable flag changes of geo to the server.
func (l *Link) Update(geo *geometry.Geometry) error {
	flags := enabledFlags(geo)

	l.mu.Lock()
	unchanged := slices.Equal(flags, l.enabled)
	l.mu.Unlock()
	if unchanged {
		return nil
	}

	if _, err := l.request(context.Background(), encodeGeometry(MsgUpdateGeometry, geo)); err != nil {
		return err
	}

	l.mu.Lock()
	l.enabled = flags
	l.mu.Unlock()

	return nil
}

func (l *Link) Send(ctx context.Context, tx []link.TxMessage) error {
	_, err := l.request(ctx, encodeSendData(tx))
	return err
}

func (l *Link) Receive(ctx context.Context, rx []link.RxMessage) error {
	body, err := l.request(ctx, []byte{MsgReadData})
	if err != nil {
		return err
	}

	return decodeRxData(body, rx)
}
