package sampler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/glove/flex"
	"github.com/losdos/motionglove/internal/glove/gesture"
	"github.com/losdos/motionglove/internal/glove/orientation"
	"github.com/losdos/motionglove/internal/glove/sampler"
	th "github.com/losdos/motionglove/internal/testing"
	"github.com/losdos/motionglove/internal/transport"
)

type motion struct {
	s   orientation.Sample
	err error
}

func (m *motion) ReadMotion(context.Context) (orientation.Sample, error) { return m.s, m.err }

type fingers struct {
	r   flex.Readings
	err error
}

func (f *fingers) Read(context.Context) (flex.Readings, error) { return f.r, f.err }

type tap struct {
	on  bool
	err error
}

func (t *tap) Tap(context.Context) (bool, error) { return t.on, t.err }

func newSampler(t *testing.T, s sampler.Sensors, observe func(sampler.Snapshot)) (*sampler.Sampler, *transport.Queue) {
	q := transport.NewQueue(1)
	clk := th.NewClock()
	cfg := sampler.Config{ReadFreq: 1000, Alpha: 0.05, Gesture: gesture.DefaultConfig(), Clock: clk.Now}
	return sampler.New(cfg, s, q, observe, th.NewLogger(t)), q
}

func TestTickTiltMovesPointer(t *testing.T) {
	// Tilted 90 degrees about X; the estimate ramps up past the dead zone.
	m := &motion{s: orientation.Sample{Accel: [3]int16{0, 1000, 0}}}
	s, _ := newSampler(t, sampler.Sensors{Motion: m, Flex: &fingers{r: flex.Readings{1000, 1000, 1000}}}, nil)

	var last int8
	for i := 0; i < 100; i++ {
		last = s.Tick(context.Background()).Mouse.X
	}
	assert.Positive(t, last)
}

func TestTickClosedIndexClicks(t *testing.T) {
	m := &motion{s: orientation.Sample{Accel: [3]int16{0, 0, 1000}}}
	s, _ := newSampler(t, sampler.Sensors{Motion: m, Flex: &fingers{r: flex.Readings{1000, 100, 1000}}}, nil)
	in := s.Tick(context.Background())
	assert.Equal(t, uint8(mouse.BtnLeft), in.Mouse.Buttons)
	assert.Zero(t, in.Mouse.X)
}

func TestTickSubstitutesZeroOnErrors(t *testing.T) {
	m := &motion{err: errors.New("spi")}
	f := &fingers{err: errors.New("adc")}
	var snaps []sampler.Snapshot
	s, _ := newSampler(t, sampler.Sensors{Motion: m, Flex: f, Tap: &tap{on: true, err: errors.New("gpio")}},
		func(sn sampler.Snapshot) { snaps = append(snaps, sn) })

	in := s.Tick(context.Background())
	// Zero readings are below the low band, so every finger reads closed.
	assert.Equal(t, uint8(mouse.BtnRight), in.Mouse.Buttons)
	require.Len(t, snaps, 1)
	assert.Equal(t, flex.Readings{}, snaps[0].Readings)
	assert.False(t, snaps[0].Tap)
	assert.Equal(t, flex.States{flex.Closed, flex.Closed, flex.Closed}, snaps[0].Fingers)
}

func TestRunFeedsQueue(t *testing.T) {
	m := &motion{s: orientation.Sample{Accel: [3]int16{0, 0, 1000}}}
	s, q := newSampler(t, sampler.Sensors{Motion: m, Flex: &fingers{r: flex.Readings{1000, 100, 1000}}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 3; i++ {
		rctx, rcancel := context.WithTimeout(ctx, time.Second)
		in, err := q.Receive(rctx)
		rcancel()
		require.NoError(t, err)
		assert.Equal(t, uint8(mouse.BtnLeft), in.Mouse.Buttons)
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
