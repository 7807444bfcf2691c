// Package orientation fuses accelerometer and gyroscope samples into roll
// and pitch angles with a complementary filter.
package orientation

import (
	"context"
	"math"
)

// Defaults of the complementary filter.
const (
	DefaultAlpha    = 0.05
	DefaultReadFreq = 1000
)

// Sample is one raw IMU reading: acceleration in milli-g and angular rate in deg/s.
type Sample struct {
	Accel [3]int16
	Gyro  [3]int16
}

// MotionReader samples the IMU.
type MotionReader interface {
	ReadMotion(ctx context.Context) (Sample, error)
}

// Pose is the estimator state as published to telemetry.
type Pose struct {
	Roll  float32 `json:"roll"`
	Pitch float32 `json:"pitch"`
}

// Estimator is a complementary filter. The gyro is integrated over DT and
// blended with the accelerometer tilt angle by Alpha. State is never
// recentered.
type Estimator struct {
	Alpha float32
	DT    float32

	AngleX float32
	AngleY float32
}

// NewEstimator returns an Estimator sampling at readFreq Hz.
func NewEstimator(alpha float32, readFreq int) *Estimator {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if readFreq <= 0 {
		readFreq = DefaultReadFreq
	}
	return &Estimator{Alpha: alpha, DT: 1 / float32(readFreq)}
}

// Update folds s into the estimate and returns the new angles in degrees.
func (e *Estimator) Update(s Sample) (angleX, angleY float32) {
	ax, ay, az := float64(s.Accel[0]), float64(s.Accel[1]), float64(s.Accel[2])
	roll := float32(math.Atan2(ay, az) * 180 / math.Pi)
	pitch := float32(math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * 180 / math.Pi)

	e.AngleX = (1-e.Alpha)*(e.AngleX+float32(s.Gyro[0])*e.DT) + e.Alpha*roll
	e.AngleY = (1-e.Alpha)*(e.AngleY+float32(s.Gyro[1])*e.DT) + e.Alpha*pitch
	return e.AngleX, e.AngleY
}

// Reset zeroes the angles.
func (e *Estimator) Reset() {
	e.AngleX, e.AngleY = 0, 0
}

// Pose returns the current angles.
func (e *Estimator) Pose() Pose {
	return Pose{Roll: e.AngleX, Pitch: e.AngleY}
}
