// Package hidout holds what the HID output sinks share.
package hidout

import (
	"sync"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/replay"
)

// Changes wraps sink so that only reports carrying information reach it.
// Keyboard and media reports are level state and are forwarded only when they
// differ from the previous one. Mouse reports are relative and are forwarded
// unless an idle report follows another idle report.
//
// Every instruction ends with a keyboard and a media release, so without this
// filter a 1 kHz glove produces twice as many keyboard reports as a 1 ms
// interrupt endpoint can carry.
func Changes(sink replay.Sink) replay.Sink {
	return &changes{sink: sink, mouseIdle: true}
}

type changes struct {
	sink replay.Sink

	mu        sync.Mutex
	mouseIdle bool
	keyboard  keyboard.Report
	media     media.Report
}

func (c *changes) WriteMouse(r mouse.Report) error {
	idle := r == mouse.Report{}
	c.mu.Lock()
	skip := idle && c.mouseIdle
	c.mu.Unlock()
	if skip {
		return nil
	}
	if err := c.sink.WriteMouse(r); err != nil {
		return err
	}
	c.mu.Lock()
	c.mouseIdle = idle
	c.mu.Unlock()
	return nil
}

func (c *changes) WriteKeyboard(r keyboard.Report) error {
	c.mu.Lock()
	same := r == c.keyboard
	c.mu.Unlock()
	if same {
		return nil
	}
	if err := c.sink.WriteKeyboard(r); err != nil {
		return err
	}
	c.mu.Lock()
	c.keyboard = r
	c.mu.Unlock()
	return nil
}

func (c *changes) WriteMedia(r media.Report) error {
	c.mu.Lock()
	same := r == c.media
	c.mu.Unlock()
	if same {
		return nil
	}
	if err := c.sink.WriteMedia(r); err != nil {
		return err
	}
	c.mu.Lock()
	c.media = r
	c.mu.Unlock()
	return nil
}
