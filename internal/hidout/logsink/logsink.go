// Package logsink logs HID reports instead of delivering them.
package logsink

import (
	"context"
	"log/slog"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
)

// Sink logs every report. Release reports are logged one level lower than
// reports that press or move something.
type Sink struct {
	logger *slog.Logger
	level  slog.Level
}

// New returns a sink logging at level.
func New(logger *slog.Logger, level slog.Level) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger.With("sink", "log"), level: level}
}

func (s *Sink) levelFor(active bool) slog.Level {
	if active {
		return s.level
	}
	return s.level - 4
}

func (s *Sink) WriteMouse(r mouse.Report) error {
	s.logger.Log(context.Background(), s.levelFor(r != mouse.Report{}), "Mouse report",
		"buttons", r.Buttons, "x", r.X, "y", r.Y, "wheel", r.Wheel, "pan", r.Pan)
	return nil
}

func (s *Sink) WriteKeyboard(r keyboard.Report) error {
	s.logger.Log(context.Background(), s.levelFor(r.Pressed()), "Keyboard report",
		"modifier", r.Modifier, "keycodes", r.Keycodes[:])
	return nil
}

func (s *Sink) WriteMedia(r media.Report) error {
	s.logger.Log(context.Background(), s.levelFor(r != media.Release), "Media report", "usage", r.String())
	return nil
}
