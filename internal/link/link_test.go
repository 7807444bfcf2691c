package link_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/link"
	th "github.com/losdos/motionglove/internal/testing"
	"github.com/losdos/motionglove/internal/transport"
	"github.com/losdos/motionglove/wire"
)

// pipeConnector hands out queued connections; failures are consumed first.
type pipeConnector struct {
	conns chan net.Conn
	fails atomic.Int32
	calls atomic.Int32
}

func newPipeConnector(conns ...net.Conn) *pipeConnector {
	p := &pipeConnector{conns: make(chan net.Conn, len(conns)+1)}
	for _, c := range conns {
		p.conns <- c
	}
	return p
}

func (p *pipeConnector) Connect(ctx context.Context) (net.Conn, error) {
	p.calls.Add(1)
	if p.fails.Load() > 0 {
		p.fails.Add(-1)
		return nil, errors.New("connection refused")
	}
	select {
	case c := <-p.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fastConfig() link.Config {
	cfg := link.DefaultConfig()
	cfg.JoinTimeout = 20 * time.Millisecond
	cfg.JoinRetryDelay = time.Millisecond
	cfg.ConnectRetryDelay = time.Millisecond
	cfg.SocketTimeout = 2 * time.Second
	return cfg
}

func numbered(i int) wire.Instruction {
	return wire.Instruction{Mouse: mouse.Report{X: int8(i)}}
}

func readInstruction(t *testing.T, r io.Reader) wire.Instruction {
	t.Helper()
	var f wire.Frame
	_, err := io.ReadFull(r, f[:])
	require.NoError(t, err)
	return wire.Decode(f)
}

func startSender(t *testing.T, s *link.Sender) (context.Context, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return ctx, func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("sender did not stop")
		}
	}
}

func TestSenderReconnectsAfterWriteError(t *testing.T) {
	c1, s1 := net.Pipe()
	c2, s2 := net.Pipe()
	defer s2.Close()
	q := transport.NewQueue(1)
	ind := &th.Indicator{}
	snd := link.NewSender(fastConfig(), q, newPipeConnector(c1, c2), th.NewLogger(t), link.WithIndicator(ind))

	ctx, stop := startSender(t, snd)
	go func() {
		for i := 1; i < 100; i++ {
			if q.Send(ctx, numbered(i)) != nil {
				return
			}
		}
	}()

	first := readInstruction(t, s1)
	assert.Equal(t, int8(1), first.Mouse.X)
	require.NoError(t, s1.Close())

	last := first.Mouse.X
	for range 5 {
		in := readInstruction(t, s2)
		assert.Greater(t, in.Mouse.X, last, "frames must stay in order")
		last = in.Mouse.X
	}
	assert.Equal(t, link.Connected, snd.State())
	stop()

	assert.Equal(t, link.Disconnected, snd.State())
	states := ind.States()
	require.GreaterOrEqual(t, len(states), 4)
	assert.Equal(t, []bool{false, true, false, true}, states[:4])
	assert.False(t, ind.Last())
}

func TestSenderRetriesJoin(t *testing.T) {
	c, s := net.Pipe()
	defer s.Close()
	st := &th.Station{
		JoinErrs:  []error{errors.New("no AP"), errors.New("no AP")},
		JoinBlock: map[int]bool{2: true},
	}
	snd := link.NewSender(fastConfig(), transport.NewQueue(1), newPipeConnector(c), th.NewLogger(t), link.WithStation(st))

	_, stop := startSender(t, snd)
	defer stop()

	require.Eventually(t, func() bool { return snd.State() == link.Connected }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 4, st.Joins(), "two failures and one timeout before success")
	assert.Equal(t, 1, st.Leaves())
}

func TestSenderConnectFailure(t *testing.T) {
	tests := []struct {
		name        string
		reassociate bool
		wantJoins   int
	}{
		{"retry connect only", false, 1},
		{"reassociate", true, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := net.Pipe()
			defer s.Close()
			pc := newPipeConnector(c)
			pc.fails.Store(3)
			st := &th.Station{}
			cfg := fastConfig()
			cfg.Reassociate = tt.reassociate
			snd := link.NewSender(cfg, transport.NewQueue(1), pc, th.NewLogger(t), link.WithStation(st))

			_, stop := startSender(t, snd)
			defer stop()

			require.Eventually(t, func() bool { return snd.State() == link.Connected }, 2*time.Second, time.Millisecond)
			assert.Equal(t, int32(4), pc.calls.Load())
			assert.Equal(t, tt.wantJoins, st.Joins())
		})
	}
}

func TestReceiverSplitsFrames(t *testing.T) {
	c, s := net.Pipe()
	q := transport.NewQueue(2)
	ind := &th.Indicator{}
	rcv := link.NewReceiver(fastConfig(), q, newPipeConnector(s), th.NewLogger(t), link.WithIndicator(ind))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rcv.Run(ctx) }()

	a := wire.Encode(numbered(1))
	b := wire.Encode(wire.Instruction{Mouse: mouse.Report{Buttons: mouse.BtnLeft, Y: -3}})
	stream := append(append(append([]byte{}, a[:]...), b[:]...), 1, 2, 3, 4, 5)
	require.Len(t, stream, 37)
	_, err := c.Write(stream)
	require.NoError(t, err)

	got, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, numbered(1), got)
	got, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.Decode(b), got)

	require.Eventually(t, func() bool { return rcv.Stats().DroppedBytes == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(2), rcv.Stats().Frames)
	assert.Equal(t, 0, q.Len())

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return len(ind.States()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []bool{false, true, false}, ind.States())

	cancel()
	require.NoError(t, <-done)
}

func TestReceiverIdleTimeout(t *testing.T) {
	c, s := net.Pipe()
	defer c.Close()
	cfg := fastConfig()
	cfg.SocketTimeout = 20 * time.Millisecond
	ind := &th.Indicator{}
	rcv := link.NewReceiver(cfg, transport.NewQueue(1), newPipeConnector(s), th.NewLogger(t), link.WithIndicator(ind))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rcv.Run(ctx) }()

	require.Eventually(t, func() bool { return len(ind.States()) == 3 }, time.Second, time.Millisecond)
	assert.False(t, ind.Last())
	assert.Equal(t, uint64(1), rcv.Stats().Connections)
}

func TestAuthenticatedLinkOverTCP(t *testing.T) {
	cfg := fastConfig()
	cfg.Password = "correct horse"
	key, err := cfg.Key()
	require.NoError(t, err)

	ln, err := link.Listen("127.0.0.1:0", cfg.SocketTimeout)
	require.NoError(t, err)

	out := transport.NewQueue(1)
	rcv := link.NewReceiver(cfg, out, ln, th.NewLogger(t), link.WithKey(key))
	in := transport.NewQueue(1)
	snd := link.NewSender(cfg, in, &link.Dialer{Addr: ln.Addr().String(), Timeout: time.Second, SocketTimeout: cfg.SocketTimeout}, th.NewLogger(t), link.WithKey(key))

	ctx, cancel := context.WithCancel(context.Background())
	rdone := make(chan error, 1)
	go func() { rdone <- rcv.Run(ctx) }()
	_, stop := startSender(t, snd)

	want := []wire.Instruction{numbered(7), {Mouse: mouse.Report{Wheel: -2, Pan: 4}}}
	for _, w := range want {
		require.NoError(t, in.Send(ctx, w))
		got, err := out.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}

	stop()
	cancel()
	require.NoError(t, <-rdone)
}

func TestConfigKey(t *testing.T) {
	key, err := link.DefaultConfig().Key()
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "dhcp-wait", link.DhcpWait.String())
	assert.Equal(t, "connected", link.Connected.String())
}

func TestLogIndicatorLogsChanges(t *testing.T) {
	var got []bool
	ind := link.Indicators{&link.LogIndicator{Logger: th.NewLogger(t), Name: "link"}, link.IndicatorFunc(func(on bool) { got = append(got, on) })}
	ind.Set(true)
	ind.Set(true)
	ind.Set(false)
	assert.Equal(t, []bool{true, true, false}, got)
}
