// Package gesture turns smoothed hand angles and finger states into HID
// instructions: pointer motion when the hand is open, scroll and pan while
// the thumb touches the index pad, and clicks from closed fingers.
package gesture

import (
	"math"
	"time"

	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/glove/flex"
	"github.com/losdos/motionglove/wire"
)

// Exponent of the velocity ease-in curve beyond the dead zone.
const shapeExponent = 1.2

// Config holds the translator tunables.
type Config struct {
	RollSens    float32 `help:"Pointer X gain" default:"30" env:"MOTIONGLOVE_GESTURE_ROLL_SENS"`
	PitchSens   float32 `help:"Pointer Y gain" default:"50" env:"MOTIONGLOVE_GESTURE_PITCH_SENS"`
	WheelSens   float32 `help:"Scroll wheel gain while tapping" default:"20" env:"MOTIONGLOVE_GESTURE_WHEEL_SENS"`
	PanSens     float32 `help:"Horizontal pan gain while tapping" default:"20" env:"MOTIONGLOVE_GESTURE_PAN_SENS"`
	DeadZone    float32 `help:"Angle in degrees below which no motion is produced" default:"2.5" env:"MOTIONGLOVE_GESTURE_DEAD_ZONE"`
	PaddingFreq float64 `help:"Maximum scroll/pan report rate in Hz while tapping" default:"20" env:"MOTIONGLOVE_GESTURE_PADDING_FREQ"`
}

// DefaultConfig returns the firmware tunables.
func DefaultConfig() Config {
	return Config{
		RollSens:    30,
		PitchSens:   50,
		WheelSens:   20,
		PanSens:     20,
		DeadZone:    2.5,
		PaddingFreq: 20,
	}
}

// Clock returns the current time. Tests substitute a simulated clock.
type Clock func() time.Time

// Shape maps an angle to a velocity: zero inside the dead zone, then
// sign(angle)*dt*(|angle|-deadZone)^1.2.
func Shape(angle, deadZone, dt float32) float32 {
	a := math.Abs(float64(angle))
	if a <= float64(deadZone) {
		return 0
	}
	v := float32(float64(dt) * math.Pow(a-float64(deadZone), shapeExponent))
	if angle < 0 {
		return -v
	}
	return v
}

// Translator builds one instruction per sampling tick. It owns the scroll
// rate limiter and is not safe for concurrent use.
type Translator struct {
	cfg         Config
	dt          float32
	period      time.Duration
	now         Clock
	lastPadding time.Time
}

// NewTranslator returns a translator for a loop ticking every dt seconds.
// A nil clock uses time.Now.
func NewTranslator(cfg Config, dt float32, clock Clock) *Translator {
	if clock == nil {
		clock = time.Now
	}
	if cfg.PaddingFreq <= 0 {
		cfg.PaddingFreq = DefaultConfig().PaddingFreq
	}
	return &Translator{
		cfg:         cfg,
		dt:          dt,
		period:      time.Duration(float64(time.Second) / cfg.PaddingFreq),
		now:         clock,
		lastPadding: clock(),
	}
}

// Step shapes the angles into velocities and translates them.
func (t *Translator) Step(angleX, angleY float32, fingers flex.States, tap bool) wire.Instruction {
	return t.Translate(Shape(angleX, t.cfg.DeadZone, t.dt), Shape(angleY, t.cfg.DeadZone, t.dt), fingers, tap)
}

// Translate builds the instruction for one tick from shaped velocities.
func (t *Translator) Translate(velX, velY float32, fingers flex.States, tap bool) wire.Instruction {
	var in wire.Instruction
	if !tap {
		in.Mouse.X = toInt8(velX * t.cfg.RollSens)
		in.Mouse.Y = toInt8(velY * t.cfg.PitchSens)
	} else {
		now := t.now()
		if now.Sub(t.lastPadding) >= t.period {
			in.Mouse.Wheel = toInt8(-velY * t.cfg.WheelSens)
			in.Mouse.Pan = toInt8(velX * t.cfg.PanSens)
			t.lastPadding = t.lastPadding.Add(t.period)
			// After a pause the schedule would otherwise replay every missed
			// period back to back.
			if now.Sub(t.lastPadding) >= t.period {
				t.lastPadding = now
			}
		}
	}

	// Middle overrides index when both are closed.
	if fingers[flex.Index] == flex.Closed {
		in.Mouse.Buttons = mouse.BtnLeft
	}
	if fingers[flex.Middle] == flex.Closed {
		in.Mouse.Buttons = mouse.BtnRight
	}
	return in
}

// toInt8 rounds v and saturates it to the int8 range, so a fast swing
// never flips the pointer direction.
func toInt8(v float32) int8 {
	r := math.Round(float64(v))
	switch {
	case r > math.MaxInt8:
		return math.MaxInt8
	case r < math.MinInt8:
		return math.MinInt8
	case math.IsNaN(r):
		return 0
	}
	return int8(r)
}
