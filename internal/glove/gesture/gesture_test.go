package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/glove/flex"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1000, 0)} }

func newTranslator(c *fakeClock) *Translator { return NewTranslator(DefaultConfig(), 0.001, c.now) }

const dt = float32(0.001)

func TestShapeDeadZone(t *testing.T) {
	for _, a := range []float32{0, 1, -1, 2.5, -2.5} {
		assert.Zero(t, Shape(a, 2.5, dt), "angle %v", a)
	}
}

func TestShapeSignAndMonotonic(t *testing.T) {
	prev := float32(0)
	for a := float32(2.6); a < 90; a += 0.5 {
		pos := Shape(a, 2.5, dt)
		neg := Shape(-a, 2.5, dt)
		assert.Greater(t, pos, float32(0))
		assert.Equal(t, -pos, neg)
		assert.Greater(t, pos, prev)
		prev = pos
	}
}

func TestShapeValue(t *testing.T) {
	// (12.5-2.5)^1.2 = 15.8489...
	assert.InDelta(t, 0.0158489, Shape(12.5, 2.5, dt), 1e-6)
}

func TestTranslateMove(t *testing.T) {
	tr := newTranslator(newClock())
	in := tr.Translate(0.1, -0.1, flex.States{}, false)
	assert.Equal(t, int8(3), in.Mouse.X)
	assert.Equal(t, int8(-5), in.Mouse.Y)
	assert.Zero(t, in.Mouse.Wheel)
	assert.Zero(t, in.Mouse.Pan)
	assert.Zero(t, in.Keyboard)
	assert.Zero(t, in.Media.UsageID)
}

func TestTranslateSaturates(t *testing.T) {
	tr := newTranslator(newClock())
	in := tr.Translate(5, -5, flex.States{}, false)
	assert.Equal(t, int8(127), in.Mouse.X)
	assert.Equal(t, int8(-128), in.Mouse.Y)
}

func TestModeExclusivity(t *testing.T) {
	c := newClock()
	tr := newTranslator(c)
	for i := 0; i < 500; i++ {
		c.advance(time.Millisecond)
		tap := i%3 == 0
		in := tr.Translate(0.5, 0.5, flex.States{}, tap)
		if tap {
			assert.Zero(t, in.Mouse.X)
			assert.Zero(t, in.Mouse.Y)
		} else {
			assert.Zero(t, in.Mouse.Wheel)
			assert.Zero(t, in.Mouse.Pan)
		}
	}
}

func TestPaddingRateLimit(t *testing.T) {
	c := newClock()
	tr := newTranslator(c)
	period := 50 * time.Millisecond

	var emitted []time.Time
	for i := 0; i < 1000; i++ {
		c.advance(time.Millisecond)
		in := tr.Translate(0.2, 0.2, flex.States{}, true)
		if in.Mouse.Wheel != 0 || in.Mouse.Pan != 0 {
			assert.Equal(t, int8(-4), in.Mouse.Wheel)
			assert.Equal(t, int8(4), in.Mouse.Pan)
			emitted = append(emitted, c.t)
		}
	}
	require.Len(t, emitted, 20)
	for i := 1; i < len(emitted); i++ {
		assert.GreaterOrEqual(t, emitted[i].Sub(emitted[i-1]), period)
	}
}

func TestPaddingAdvancesByOnePeriod(t *testing.T) {
	c := newClock()
	tr := newTranslator(c)
	start := tr.lastPadding

	c.advance(70 * time.Millisecond)
	in := tr.Translate(0.2, 0, flex.States{}, true)
	assert.NotZero(t, in.Mouse.Pan)
	assert.Equal(t, start.Add(50*time.Millisecond), tr.lastPadding)

	c.advance(30 * time.Millisecond)
	in = tr.Translate(0.2, 0, flex.States{}, true)
	assert.NotZero(t, in.Mouse.Pan)
	assert.Equal(t, start.Add(100*time.Millisecond), tr.lastPadding)
}

func TestPaddingResyncsAfterPause(t *testing.T) {
	c := newClock()
	tr := newTranslator(c)

	c.advance(10 * time.Second)
	assert.NotZero(t, tr.Translate(0.2, 0, flex.States{}, true).Mouse.Pan)
	c.advance(time.Millisecond)
	assert.Zero(t, tr.Translate(0.2, 0, flex.States{}, true).Mouse.Pan)
}

func TestButtons(t *testing.T) {
	tr := newTranslator(newClock())
	tests := []struct {
		name    string
		fingers flex.States
		want    uint8
	}{
		{"open", flex.States{}, 0},
		{"index", flex.States{flex.Index: flex.Closed}, mouse.BtnLeft},
		{"middle", flex.States{flex.Middle: flex.Closed}, mouse.BtnRight},
		{"both", flex.States{flex.Index: flex.Closed, flex.Middle: flex.Closed}, mouse.BtnRight},
		{"thumb only", flex.States{flex.Thumb: flex.Closed}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Translate(0, 0, tt.fingers, false).Mouse.Buttons)
			assert.Equal(t, tt.want, tr.Translate(0, 0, tt.fingers, true).Mouse.Buttons)
		})
	}
}

func TestStepAppliesDeadZone(t *testing.T) {
	tr := newTranslator(newClock())
	in := tr.Step(2, -2, flex.States{}, false)
	assert.Zero(t, in.Mouse.X)
	assert.Zero(t, in.Mouse.Y)

	in = tr.Step(90, 0, flex.States{}, false)
	assert.NotZero(t, in.Mouse.X)
}
