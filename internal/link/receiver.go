package link

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/losdos/motionglove/internal/transport"
	"github.com/losdos/motionglove/internal/util"
	"github.com/losdos/motionglove/wire"
)

// ReceiverStats counts receiver activity since start.
type ReceiverStats struct {
	Connections  uint64
	Frames       uint64
	DroppedBytes uint64
}

// Receiver accepts the glove and feeds decoded instructions to a queue.
// One connection is served at a time.
type Receiver struct {
	cfg       Config
	queue     *transport.Queue
	connector Connector
	opts      options
	logger    *slog.Logger

	connections  atomic.Uint64
	frames       atomic.Uint64
	droppedBytes atomic.Uint64
}

// NewReceiver returns a receiver pushing into q the frames read from
// connections made by c.
func NewReceiver(cfg Config, q *transport.Queue, c Connector, logger *slog.Logger, opts ...Option) *Receiver {
	return &Receiver{
		cfg:       cfg,
		queue:     q,
		connector: c,
		opts:      buildOptions(opts),
		logger:    loggerOr(logger),
	}
}

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Connections:  r.connections.Load(),
		Frames:       r.frames.Load(),
		DroppedBytes: r.droppedBytes.Load(),
	}
}

// Run serves connections until ctx is cancelled or the listener is closed.
func (r *Receiver) Run(ctx context.Context) error {
	r.opts.indicator.Set(false)
	for {
		conn, err := r.connector.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil || util.IsClosed(err) {
				r.logger.Info("Link receiver stopped")
				return nil
			}
			r.logger.Warn("Accept failed", "error", err)
			sleep(ctx, r.cfg.ConnectRetryDelay)
			continue
		}
		r.serve(ctx, conn)
	}
}

func (r *Receiver) serve(ctx context.Context, conn net.Conn) {
	r.connections.Add(1)
	logger := r.logger.With("remote", conn.RemoteAddr())
	logger.Info("Glove connected")
	r.opts.indicator.Set(true)
	defer r.opts.indicator.Set(false)
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if r.opts.key != nil {
		sealed, err := secure(conn, r.opts.key, false, r.cfg.SocketTimeout)
		if err != nil {
			logger.Warn("Link authentication failed", "error", err)
			return
		}
		conn = sealed
	}

	err := r.readLoop(ctx, conn, logger)
	switch {
	case ctx.Err() != nil:
	case util.IsClientDisconnect(err):
		logger.Info("Glove disconnected")
	case util.IsTimeout(err):
		logger.Warn("Glove idle, dropping connection", "timeout", r.cfg.SocketTimeout)
	default:
		logger.Error("Link read failed", "error", err)
	}
}

// readLoop splits each read into whole frames. Bytes of a trailing partial
// frame are dropped; frames never straddle reads.
func (r *Receiver) readLoop(ctx context.Context, conn net.Conn, logger *slog.Logger) error {
	buf := make([]byte, ReadBufferSize)
	for {
		if r.cfg.SocketTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(r.cfg.SocketTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			r.opts.raw.Log(true, buf[:n])
			frames, rest := wire.Split(buf[:n])
			for _, f := range frames {
				if serr := r.queue.Send(ctx, wire.Decode(f)); serr != nil {
					return serr
				}
				r.frames.Add(1)
			}
			if len(rest) > 0 {
				r.droppedBytes.Add(uint64(len(rest)))
				logger.Debug("Dropping partial frame", "bytes", len(rest))
			}
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.EOF
		}
	}
}
