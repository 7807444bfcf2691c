package link

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Connector yields connected sockets, either by dialing or by accepting.
type Connector interface {
	Connect(ctx context.Context) (net.Conn, error)
}

// Dialer connects to a fixed TCP address.
type Dialer struct {
	Addr          string
	Timeout       time.Duration
	SocketTimeout time.Duration
}

func (d *Dialer) Connect(ctx context.Context) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	c, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	if err := tune(c, d.SocketTimeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Listener accepts connections on a bound socket.
type Listener struct {
	ln            net.Listener
	socketTimeout time.Duration
}

// Listen binds addr.
func Listen(addr string, socketTimeout time.Duration) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return NewListener(ln, socketTimeout), nil
}

// NewListener wraps an existing listener.
func NewListener(ln net.Listener, socketTimeout time.Duration) *Listener {
	return &Listener{ln: ln, socketTimeout: socketTimeout}
}

// Connect waits for the next connection. Cancelling ctx closes the listener.
func (l *Listener) Connect(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()
	c, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if err := tune(c, l.socketTimeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) Close() error { return l.ln.Close() }

// tune sets TCP_NODELAY and, where supported, TCP_USER_TIMEOUT.
func tune(c net.Conn, socketTimeout time.Duration) error {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(true); err != nil {
		return fmt.Errorf("set nodelay: %w", err)
	}
	if err := setUserTimeout(tc, socketTimeout); err != nil {
		return fmt.Errorf("set user timeout: %w", err)
	}
	return nil
}
