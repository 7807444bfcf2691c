// Package gadget writes HID reports to Linux USB gadget character devices
// (/dev/hidgN), so an SBC plugged into the host acts as the mouse, keyboard
// and media keys.
package gadget

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
)

// Config locates the gadget devices.
type Config struct {
	MouseDev     string        `help:"Mouse HID gadget device" default:"/dev/hidg0" env:"MOTIONGLOVE_GADGET_MOUSE"`
	KeyboardDev  string        `help:"Keyboard HID gadget device" default:"/dev/hidg1" env:"MOTIONGLOVE_GADGET_KEYBOARD"`
	MediaDev     string        `help:"Media key HID gadget device" default:"/dev/hidg2" env:"MOTIONGLOVE_GADGET_MEDIA"`
	WriteTimeout time.Duration `help:"Give up on a report the host does not poll within this time" default:"5ms" env:"MOTIONGLOVE_GADGET_WRITE_TIMEOUT"`
	Setup        bool          `help:"Create the gadget in configfs before opening the devices" env:"MOTIONGLOVE_GADGET_SETUP"`
	ConfigFS     ConfigFS      `embed:"" prefix:"configfs."`
}

// Endpoint is one opened gadget device.
type Endpoint interface {
	io.WriteCloser
	SetWriteDeadline(t time.Time) error
}

// Sink writes each report to its gadget device.
type Sink struct {
	mouse    Endpoint
	keyboard Endpoint
	media    Endpoint
	timeout  time.Duration
}

// NewSink returns a sink over already opened endpoints.
func NewSink(mouse, keyboard, media Endpoint, timeout time.Duration) *Sink {
	return &Sink{mouse: mouse, keyboard: keyboard, media: media, timeout: timeout}
}

// Open opens the three gadget devices, creating the gadget first when
// cfg.Setup is set.
func Open(cfg Config) (*Sink, error) {
	if cfg.Setup {
		if err := cfg.ConfigFS.Create(); err != nil {
			return nil, err
		}
	}
	var eps []*os.File
	for _, path := range []string{cfg.MouseDev, cfg.KeyboardDev, cfg.MediaDev} {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			for _, e := range eps {
				_ = e.Close()
			}
			return nil, fmt.Errorf("open gadget device: %w", err)
		}
		eps = append(eps, f)
	}
	return NewSink(eps[0], eps[1], eps[2], cfg.WriteTimeout), nil
}

func (s *Sink) write(ep Endpoint, report []byte) error {
	if s.timeout > 0 {
		// Regular files and some drivers do not support deadlines.
		if err := ep.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, os.ErrNoDeadline) {
			return err
		}
	}
	_, err := ep.Write(report)
	return err
}

func (s *Sink) WriteMouse(r mouse.Report) error {
	return s.write(s.mouse, r.BuildReport())
}

func (s *Sink) WriteKeyboard(r keyboard.Report) error {
	return s.write(s.keyboard, r.BuildReport())
}

func (s *Sink) WriteMedia(r media.Report) error {
	return s.write(s.media, r.BuildReport())
}

// Close closes all three devices.
func (s *Sink) Close() error {
	return errors.Join(s.mouse.Close(), s.keyboard.Close(), s.media.Close())
}
