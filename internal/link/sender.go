package link

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/losdos/motionglove/internal/link/auth"
	"github.com/losdos/motionglove/internal/transport"
	"github.com/losdos/motionglove/internal/util"
	"github.com/losdos/motionglove/wire"
)

// Sender streams the glove's instructions to the dongle.
type Sender struct {
	cfg       Config
	queue     *transport.Queue
	connector Connector
	opts      options
	logger    *slog.Logger
	state     atomic.Int32
}

// NewSender returns a sender draining q into connections made by c.
func NewSender(cfg Config, q *transport.Queue, c Connector, logger *slog.Logger, opts ...Option) *Sender {
	return &Sender{
		cfg:       cfg,
		queue:     q,
		connector: c,
		opts:      buildOptions(opts),
		logger:    loggerOr(logger),
	}
}

// State returns the current connection state.
func (s *Sender) State() State { return State(s.state.Load()) }

func (s *Sender) setState(st State) {
	if old := State(s.state.Swap(int32(st))); old != st {
		s.logger.Info("Link state", "from", old, "to", st)
	}
}

// Run associates, connects and streams until ctx is cancelled. It always
// returns nil; every failure is retried.
func (s *Sender) Run(ctx context.Context) error {
	defer func() {
		s.setState(Disconnected)
		s.opts.indicator.Set(false)
	}()

	associate := s.opts.station != nil
	for ctx.Err() == nil {
		if associate {
			if err := s.associate(ctx); err != nil {
				return nil
			}
			associate = false
		}

		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Connect failed", "error", err)
			if s.cfg.Reassociate && s.opts.station != nil {
				associate = true
			}
			sleep(ctx, s.cfg.ConnectRetryDelay)
			continue
		}

		err = s.stream(ctx, conn)
		switch {
		case ctx.Err() != nil:
		case util.IsClientDisconnect(err):
			s.logger.Info("Dongle disconnected", "error", err)
		default:
			s.logger.Error("Link write failed", "error", err)
		}
	}
	return nil
}

// associate joins the network and waits for link and address. Join attempts
// are bounded by JoinTimeout and retried forever.
func (s *Sender) associate(ctx context.Context) error {
	st := s.opts.station
	for {
		s.setState(Associating)
		if err := st.Leave(ctx); err != nil {
			s.logger.Debug("Leave failed", "error", err)
		}
		for attempt := 1; ; attempt++ {
			jctx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
			err := st.Join(jctx)
			cancel()
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("WiFi join failed", "attempt", attempt, "error", err)
			if !sleep(ctx, s.cfg.JoinRetryDelay) {
				return ctx.Err()
			}
		}

		s.setState(LinkWait)
		if err := st.WaitLinkUp(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("WiFi link did not come up", "error", err)
			continue
		}

		s.setState(DhcpWait)
		if err := st.WaitConfigUp(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("No IPv4 configuration", "error", err)
			continue
		}
		return nil
	}
}

func (s *Sender) connect(ctx context.Context) (net.Conn, error) {
	s.setState(Connecting)
	s.opts.indicator.Set(false)
	return s.connector.Connect(ctx)
}

// stream owns conn until a write fails or ctx is cancelled.
func (s *Sender) stream(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.setState(Connected)
	s.opts.indicator.Set(true)
	s.logger.Info("Connected to dongle", "remote", conn.RemoteAddr())

	if s.opts.key != nil {
		sealed, err := secure(conn, s.opts.key, true, s.cfg.SocketTimeout)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		conn = sealed
	}

	for {
		in, err := s.queue.Receive(ctx)
		if err != nil {
			return err
		}
		f := wire.Encode(in)
		if s.cfg.SocketTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.SocketTimeout))
		}
		if _, err := conn.Write(f[:]); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		s.opts.raw.Log(false, f[:])
	}
}

// secure runs the auth handshake under a deadline.
func secure(conn net.Conn, key []byte, isClient bool, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
		defer conn.SetDeadline(time.Time{})
	}
	if isClient {
		return auth.Client(conn, key)
	}
	return auth.Server(conn, key)
}
