// Package sampler runs the glove's fixed-rate loop: read the sensors, fuse
// and debounce them, translate the result into an instruction and hand it
// to the link queue.
package sampler

import (
	"context"
	"log/slog"
	"time"

	"github.com/losdos/motionglove/internal/glove/flex"
	"github.com/losdos/motionglove/internal/glove/gesture"
	"github.com/losdos/motionglove/internal/glove/orientation"
	"github.com/losdos/motionglove/internal/log"
	"github.com/losdos/motionglove/internal/transport"
	"github.com/losdos/motionglove/wire"
)

// Sensors groups the hardware the sampler owns. Tap may be nil.
type Sensors struct {
	Motion orientation.MotionReader
	Flex   flex.Reader
	Tap    flex.TapReader
}

// Snapshot is the per-tick state handed to observers.
type Snapshot struct {
	Pose     orientation.Pose `json:"pose"`
	Readings flex.Readings    `json:"readings"`
	Fingers  flex.States      `json:"fingers"`
	Tap      bool             `json:"tap"`
}

// Config holds the sampling loop tunables.
type Config struct {
	ReadFreq int
	Alpha    float32
	SupBand  uint16
	LowBand  uint16
	Gesture  gesture.Config
	Clock    gesture.Clock
}

// Sampler is the glove pipeline from sensors to transport queue.
type Sampler struct {
	sensors    Sensors
	out        *transport.Queue
	interval   time.Duration
	estimator  *orientation.Estimator
	debouncer  *flex.Debouncer
	translator *gesture.Translator
	observe    func(Snapshot)
	logger     *slog.Logger
}

// New wires a sampler. observe may be nil.
func New(cfg Config, sensors Sensors, out *transport.Queue, observe func(Snapshot), logger *slog.Logger) *Sampler {
	if cfg.ReadFreq <= 0 {
		cfg.ReadFreq = orientation.DefaultReadFreq
	}
	est := orientation.NewEstimator(cfg.Alpha, cfg.ReadFreq)
	deb := flex.NewDebouncer()
	if cfg.SupBand != 0 {
		deb.SupBand = cfg.SupBand
	}
	if cfg.LowBand != 0 {
		deb.LowBand = cfg.LowBand
	}
	return &Sampler{
		sensors:    sensors,
		out:        out,
		interval:   time.Second / time.Duration(cfg.ReadFreq),
		estimator:  est,
		debouncer:  deb,
		translator: gesture.NewTranslator(cfg.Gesture, est.DT, cfg.Clock),
		observe:    observe,
		logger:     logger,
	}
}

// Run ticks until ctx is cancelled. A full queue stalls the loop; ticks
// missed meanwhile are dropped by the ticker rather than replayed.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("Sampling started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sampling stopped")
			return nil
		case <-ticker.C:
		}
		in := s.Tick(ctx)
		if err := s.out.Send(ctx, in); err != nil {
			s.logger.Info("Sampling stopped")
			return nil
		}
	}
}

// Tick performs one sampling step and returns the resulting instruction.
// Sensor errors are logged and replaced by neutral readings.
func (s *Sampler) Tick(ctx context.Context) wire.Instruction {
	sample, err := s.sensors.Motion.ReadMotion(ctx)
	if err != nil {
		s.logger.Warn("IMU read failed, using zero sample", "error", err)
		sample = orientation.Sample{}
	}
	readings, err := s.sensors.Flex.Read(ctx)
	if err != nil {
		s.logger.Warn("Flex read failed, using zero readings", "error", err)
		readings = flex.Readings{}
	}
	tap := false
	if s.sensors.Tap != nil {
		if tap, err = s.sensors.Tap.Tap(ctx); err != nil {
			s.logger.Warn("Tap read failed, assuming no contact", "error", err)
			tap = false
		}
	}

	fingers := s.debouncer.Update(readings)
	ax, ay := s.estimator.Update(sample)

	s.logger.Log(ctx, log.LevelTrace, "Sensors",
		"accel", sample.Accel, "gyro", sample.Gyro,
		"flex", readings, "tap", tap,
		"angle_x", ax, "angle_y", ay)

	if s.observe != nil {
		s.observe(Snapshot{Pose: s.estimator.Pose(), Readings: readings, Fingers: fingers, Tap: tap})
	}
	return s.translator.Step(ax, ay, fingers, tap)
}
