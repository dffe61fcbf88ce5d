package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/logger"
)

// ErrServerClosed is returned by ListenAndServe after Close.
var ErrServerClosed = errors.New("remote: server closed")

// Factory creates the device link of a new session.
type Factory func() link.Link

// ServerOption configures a Server.
type ServerOption func(*Server) error

// WithServerLogger sets the logger of the server.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) error {
		if l == nil {
			return errors.New("remote: logger must not be nil")
		}
		s.logger = l

		return nil
	}
}

// WithCheckOrigin sets the origin check of the WebSocket upgrade. By default
// every origin is accepted.
func WithCheckOrigin(f func(r *http.Request) bool) ServerOption {
	return func(s *Server) error {
		s.upgrader.CheckOrigin = f
		return nil
	}
}

// Server exposes device links to remote clients. It is an http.Handler that
// upgrades every request to a WebSocket session.
type Server struct {
	factory  Factory
	upgrader websocket.Upgrader
	sessions *xsync.MapOf[string, *session]
	logger   logger.Logger

	ctx    context.Context //nolint:containedctx // cancels every session on Close
	cancel context.CancelFunc
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a server opening a link from factory for each session.
func NewServer(factory Factory, opts ...ServerOption) (*Server, error) {
	if factory == nil {
		return nil, errors.New("remote: link factory must not be nil")
	}

	s := &Server{
		factory: factory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: xsync.NewMapOf[string, *session](),
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	return s, nil
}

// Sessions returns the ids of the connected sessions.
func (s *Server) Sessions() []string {
	ids := make([]string, 0, s.sessions.Size())
	s.sessions.Range(func(id string, _ *session) bool {
		ids = append(ids, id)
		return true
	})

	return ids
}

// ServeHTTP upgrades the request and serves the session until the client
// closes it or the server is closed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
	}
	sess.logger = s.logger.With("session", sess.id)
	s.sessions.Store(sess.id, sess)
	sess.logger.Info("client connected", "remote", r.RemoteAddr)

	sess.serve(s.ctx)

	s.sessions.Delete(sess.id)
	sess.closeLink()
	_ = conn.Close()
	sess.logger.Info("client disconnected")
}

// ListenAndServe serves sessions on addr until ctx is done or Close is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("remote server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case <-s.ctx.Done():
	}

	_ = s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	return ErrServerClosed
}

// Close ends every session and closes their device links.
func (s *Server) Close() error {
	s.cancel()
	s.sessions.Range(func(_ string, sess *session) bool {
		_ = sess.conn.Close()
		return true
	})

	return nil
}

type session struct {
	id     string
	conn   *websocket.Conn
	server *Server
	logger logger.Logger

	handshake bool
	dev       link.Link
	geo       *geometry.Geometry
	rx        []link.RxMessage
}

func (sess *session) serve(ctx context.Context) {
	for {
		mt, msg, err := sess.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				sess.logger.Debug("websocket read ended", "error", err)
			}

			return
		}
		if mt != websocket.BinaryMessage || len(msg) == 0 {
			if sess.reply(encodeError(fmt.Errorf("%w: expected a binary message", ErrProtocol))) != nil {
				return
			}

			continue
		}

		msgType := msg[0]
		resp, err := sess.handle(ctx, msgType, msg[1:])
		if err != nil {
			sess.logger.Error("request failed", "type", msgType, "error", err)
			resp = encodeError(err)
		}
		if sess.reply(resp) != nil {
			return
		}
		if msgType == MsgClose || !sess.handshake {
			return
		}
	}
}

func (sess *session) reply(b []byte) error {
	if err := sess.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		return err
	}

	return sess.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (sess *session) handle(ctx context.Context, msgType byte, body []byte) ([]byte, error) {
	if msgType == MsgHello {
		if sess.handshake {
			return nil, errors.New("handshake already completed")
		}
		if err := decodeHello(body); err != nil {
			return nil, err
		}
		sess.handshake = true

		return encodeOK([]byte(sess.id)...), nil
	}
	if !sess.handshake {
		return nil, errors.New("handshake is required before sending commands")
	}

	switch msgType {
	case MsgConfigGeometry:
		return sess.configGeometry(ctx, body)
	case MsgUpdateGeometry:
		return sess.updateGeometry(body)
	case MsgSendData:
		return sess.sendData(ctx, body)
	case MsgReadData:
		return sess.readData(ctx)
	case MsgClose:
		if sess.dev == nil {
			return nil, link.ErrLinkClosed
		}
		err := sess.dev.Close()
		sess.dev = nil
		if err != nil {
			return nil, err
		}

		return encodeOK(), nil
	default:
		return nil, fmt.Errorf("%w: unknown message type 0x%02X", ErrProtocol, msgType)
	}
}

func (sess *session) configGeometry(ctx context.Context, body []byte) ([]byte, error) {
	if sess.dev != nil {
		return nil, errors.New("link is already opened")
	}

	geo, err := decodeGeometry(body)
	if err != nil {
		return nil, err
	}
	dev := sess.server.factory()
	if err := dev.Open(ctx, geo); err != nil {
		return nil, err
	}

	sess.dev = dev
	sess.geo = geo
	sess.rx = make([]link.RxMessage, geo.NumDevices())
	sess.logger.Info("link opened", "devices", geo.NumDevices())

	return encodeOK(), nil
}

func (sess *session) updateGeometry(body []byte) ([]byte, error) {
	if sess.dev == nil {
		return nil, link.ErrLinkClosed
	}

	geo, err := decodeGeometry(body)
	if err != nil {
		return nil, err
	}
	if geo.NumDevices() != sess.geo.NumDevices() {
		return nil, fmt.Errorf("%w: geometry has %d devices, session has %d", link.ErrFrameCount, geo.NumDevices(), sess.geo.NumDevices())
	}
	for i, dev := range geo.Devices() {
		sess.geo.Device(i).Enable = dev.Enable
	}
	if err := link.Update(sess.dev, sess.geo); err != nil {
		return nil, err
	}

	return encodeOK(), nil
}

func (sess *session) sendData(ctx context.Context, body []byte) ([]byte, error) {
	if sess.dev == nil {
		return nil, link.ErrLinkClosed
	}

	tx, err := decodeSendData(body)
	if err != nil {
		return nil, err
	}
	if err := sess.dev.Send(ctx, tx); err != nil {
		return nil, err
	}

	return encodeOK(), nil
}

func (sess *session) readData(ctx context.Context) ([]byte, error) {
	if sess.dev == nil {
		return nil, link.ErrLinkClosed
	}
	if err := sess.dev.Receive(ctx, sess.rx); err != nil {
		return nil, err
	}

	return encodeRxData(sess.rx), nil
}

func (sess *session) closeLink() {
	if sess.dev == nil {
		return
	}
	if err := sess.dev.Close(); err != nil {
		sess.logger.Warn("failed to close link", "error", err)
	}
	sess.dev = nil
}
