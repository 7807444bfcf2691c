package usbip

import (
	"fmt"
	"log/slog"

	"github.com/losdos/motionglove/device"
	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/log"
	"github.com/losdos/motionglove/usb"
	"github.com/losdos/motionglove/virtualbus"
)

// Sink queues reports on the three exported devices. Reports for a device
// no host has imported are discarded, since nobody would ever poll them.
type Sink struct {
	srv      *Server
	Mouse    *mouse.Mouse
	Keyboard *keyboard.Keyboard
	Media    *media.Keys
}

// NewSink creates the server with mouse, keyboard and media keys on bus
// cfg.BusID, exported as <bus>-1, <bus>-2 and <bus>-3.
func NewSink(cfg Config, pollMS uint8, logger *slog.Logger, raw log.RawLogger) (*Sink, *Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := &device.CreateOptions{PollMS: pollMS, QueueLimit: cfg.QueueLimit}
	s := &Sink{
		Mouse:    mouse.New(opts),
		Keyboard: keyboard.New(opts),
		Media:    media.New(opts),
	}
	s.Keyboard.SetLEDCallback(func(st keyboard.LEDState) {
		logger.Info("Host keyboard LEDs", "num", st.NumLock, "caps", st.CapsLock, "scroll", st.ScrollLock)
	})

	bus := virtualbus.New(cfg.BusID)
	for _, d := range []usb.Device{s.Mouse, s.Keyboard, s.Media} {
		meta, err := bus.Add(d)
		if err != nil {
			return nil, nil, fmt.Errorf("add device: %w", err)
		}
		logger.Info("Exported HID device", "busid", meta.BusIDString())
	}
	s.srv = New(cfg, bus, logger, raw)
	return s, s.srv, nil
}

func (s *Sink) WriteMouse(r mouse.Report) error {
	if !s.srv.Attached(s.Mouse) {
		return nil
	}
	return s.Mouse.Push(r)
}

func (s *Sink) WriteKeyboard(r keyboard.Report) error {
	if !s.srv.Attached(s.Keyboard) {
		return nil
	}
	return s.Keyboard.Push(r)
}

func (s *Sink) WriteMedia(r media.Report) error {
	if !s.srv.Attached(s.Media) {
		return nil
	}
	return s.Media.Push(r)
}
