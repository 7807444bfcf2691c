package hw

import (
	"context"
	"math"
	"time"

	"github.com/losdos/motionglove/internal/glove/flex"
	"github.com/losdos/motionglove/internal/glove/orientation"
)

// Sim generates a slow circular hand sweep with periodic clicks and scroll
// gestures, for running the glove without hardware.
type Sim struct {
	start time.Time
	now   func() time.Time
	// Period of one full sweep.
	Period time.Duration
	// Tilt is the sweep amplitude in degrees.
	Tilt float64
}

// NewSim returns a simulator driven by now; nil uses time.Now.
func NewSim(now func() time.Time) *Sim {
	if now == nil {
		now = time.Now
	}
	return &Sim{start: now(), now: now, Period: 8 * time.Second, Tilt: 20}
}

func (s *Sim) phase() float64 {
	el := s.now().Sub(s.start)
	return 2 * math.Pi * float64(el%s.Period) / float64(s.Period)
}

func (s *Sim) ReadMotion(ctx context.Context) (orientation.Sample, error) {
	ph := s.phase()
	roll := s.Tilt * math.Sin(ph) * math.Pi / 180
	pitch := s.Tilt * math.Cos(ph) * math.Pi / 180
	// Gravity vector of a hand rolled about X then pitched about Y.
	ax := -math.Sin(pitch) * 1000
	ay := math.Cos(pitch) * math.Sin(roll) * 1000
	az := math.Cos(pitch) * math.Cos(roll) * 1000
	return orientation.Sample{Accel: [3]int16{int16(ax), int16(ay), int16(az)}}, ctx.Err()
}

// Read closes the index finger during the second quarter of each sweep.
func (s *Sim) Read(ctx context.Context) (flex.Readings, error) {
	r := flex.Readings{1000, 1000, 1000}
	ph := s.phase()
	if ph >= math.Pi/2 && ph < math.Pi {
		r[flex.Index] = 200
	}
	return r, ctx.Err()
}

// Tap holds the thumb on the index pad during the last quarter of each sweep.
func (s *Sim) Tap(ctx context.Context) (bool, error) {
	return s.phase() >= 3*math.Pi/2, ctx.Err()
}
