// Package flex reads the finger flex sensors and debounces them into
// open/closed finger states.
package flex

import "context"

// Finger indices into Readings and States.
const (
	Thumb = iota
	Index
	Middle
	NumFingers
)

// Finger states. Opened is the zero value.
const (
	Opened = false
	Closed = true
)

// Default Schmitt trigger thresholds in raw ADC counts.
const (
	DefaultSupBand = 900
	DefaultLowBand = 500
)

// Readings holds one raw ADC sample per finger.
type Readings [NumFingers]uint16

// States holds the debounced state of each finger.
type States [NumFingers]bool

// Reader samples the flex sensors.
type Reader interface {
	Read(ctx context.Context) (Readings, error)
}

// TapReader reports whether the thumb touches the index finger pad.
type TapReader interface {
	Tap(ctx context.Context) (bool, error)
}

// Debouncer applies a per-finger Schmitt trigger. Values strictly between
// LowBand and SupBand leave the previous state untouched.
type Debouncer struct {
	SupBand uint16
	LowBand uint16

	states States
}

// NewDebouncer returns a Debouncer using the default thresholds with every finger open.
func NewDebouncer() *Debouncer {
	return &Debouncer{SupBand: DefaultSupBand, LowBand: DefaultLowBand}
}

// Update folds r into the finger states and returns them.
func (d *Debouncer) Update(r Readings) States {
	for i, v := range r {
		switch {
		case v >= d.SupBand:
			d.states[i] = Opened
		case v <= d.LowBand:
			d.states[i] = Closed
		}
	}
	return d.states
}

// States returns the current finger states.
func (d *Debouncer) States() States { return d.states }
