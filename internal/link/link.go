// Package link carries instructions from the glove to the dongle over TCP.
//
// The Sender drains the glove's transport queue into a socket, associating
// with the WiFi network and reconnecting as needed. The Receiver accepts the
// glove, splits the byte stream into 16-byte frames and feeds the dongle's
// replay queue.
package link

import (
	"context"
	"log/slog"
	"time"

	"github.com/losdos/motionglove/internal/link/auth"
	"github.com/losdos/motionglove/internal/log"
)

// ReadBufferSize is the receiver's per-read buffer.
const ReadBufferSize = 4096

// Config holds the link tunables shared by both nodes.
type Config struct {
	Reverse           bool          `help:"Swap roles: the glove listens and the dongle dials" env:"MOTIONGLOVE_LINK_REVERSE"`
	DongleAddr        string        `help:"Dongle address the glove dials" default:"192.168.0.10:50124" env:"MOTIONGLOVE_LINK_DONGLE_ADDR"`
	GloveAddr         string        `help:"Glove address the dongle dials in reverse mode" default:"192.168.0.12:50124" env:"MOTIONGLOVE_LINK_GLOVE_ADDR"`
	ListenAddr        string        `help:"Listen address of the accepting side" default:":50124" env:"MOTIONGLOVE_LINK_LISTEN_ADDR"`
	DialTimeout       time.Duration `help:"TCP connect timeout" default:"5s" env:"MOTIONGLOVE_LINK_DIAL_TIMEOUT"`
	SocketTimeout     time.Duration `help:"Idle socket timeout; 0 disables" default:"15s" env:"MOTIONGLOVE_LINK_SOCKET_TIMEOUT"`
	JoinTimeout       time.Duration `help:"Timeout of one WiFi join attempt" default:"5s" env:"MOTIONGLOVE_LINK_JOIN_TIMEOUT"`
	JoinRetryDelay    time.Duration `help:"Delay between WiFi join attempts" default:"250ms" env:"MOTIONGLOVE_LINK_JOIN_RETRY_DELAY"`
	ConnectRetryDelay time.Duration `help:"Delay between TCP connect or accept attempts" default:"250ms" env:"MOTIONGLOVE_LINK_CONNECT_RETRY_DELAY"`
	Reassociate       bool          `help:"Rejoin the WiFi network after a failed connect" env:"MOTIONGLOVE_LINK_REASSOCIATE"`
	Password          string        `help:"Shared link password; empty sends plain frames" env:"MOTIONGLOVE_LINK_PASSWORD"`
	QueueSize         int           `help:"Transport queue capacity" default:"1" env:"MOTIONGLOVE_LINK_QUEUE_SIZE"`
}

// DefaultConfig returns the same values as the flag defaults.
func DefaultConfig() Config {
	return Config{
		DongleAddr:        "192.168.0.10:50124",
		GloveAddr:         "192.168.0.12:50124",
		ListenAddr:        ":50124",
		DialTimeout:       5 * time.Second,
		SocketTimeout:     15 * time.Second,
		JoinTimeout:       5 * time.Second,
		JoinRetryDelay:    250 * time.Millisecond,
		ConnectRetryDelay: 250 * time.Millisecond,
		QueueSize:         1,
	}
}

// Key derives the link key from Password; it is nil when no password is set.
func (c Config) Key() ([]byte, error) {
	if c.Password == "" {
		return nil, nil
	}
	return auth.DeriveKey(c.Password)
}

// State is the sender's connection state.
type State int32

const (
	Disconnected State = iota
	Associating
	LinkWait
	DhcpWait
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Associating:
		return "associating"
	case LinkWait:
		return "link-wait"
	case DhcpWait:
		return "dhcp-wait"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Station controls the WiFi association of the glove.
type Station interface {
	// Join associates with the network; ctx bounds a single attempt.
	Join(ctx context.Context) error
	// WaitLinkUp blocks until the radio link is up.
	WaitLinkUp(ctx context.Context) error
	// WaitConfigUp blocks until the interface has an IPv4 address.
	WaitConfigUp(ctx context.Context) error
	// Leave drops any current association.
	Leave(ctx context.Context) error
}

type options struct {
	station   Station
	indicator Indicator
	key       []byte
	raw       log.RawLogger
}

// Option configures a Sender or Receiver.
type Option func(*options)

// WithStation makes the sender associate before connecting. Without a
// station the host is assumed to be on the network already.
func WithStation(st Station) Option {
	return func(o *options) { o.station = st }
}

// WithIndicator reports the connection state, typically on an LED.
func WithIndicator(ind Indicator) Option {
	return func(o *options) { o.indicator = ind }
}

// WithKey enables the auth handshake and sealed records.
func WithKey(key []byte) Option {
	return func(o *options) { o.key = key }
}

// WithRawLogger hex-dumps every frame written or read.
func WithRawLogger(raw log.RawLogger) Option {
	return func(o *options) { o.raw = raw }
}

func buildOptions(opts []Option) options {
	o := options{indicator: nopIndicator{}, raw: log.NewRaw(nil)}
	for _, fn := range opts {
		fn(&o)
	}
	if o.indicator == nil {
		o.indicator = nopIndicator{}
	}
	if o.raw == nil {
		o.raw = log.NewRaw(nil)
	}
	return o
}

// sleep waits for d or ctx; it reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
