// Package testing holds fakes shared by package tests.
package testing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/log"
)

type testWriter struct {
	t    testing.TB
	done atomic.Bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	if !w.done.Load() {
		w.t.Log(strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

// NewLogger returns a trace-level logger writing through t.Log. Records
// logged after the test finished are discarded.
func NewLogger(t testing.TB) *slog.Logger {
	w := &testWriter{t: t}
	t.Cleanup(func() { w.done.Store(true) })
	return slog.New(log.NewHandler(w, log.LevelTrace))
}

// Clock is a manually advanced clock.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock set to a fixed instant.
func NewClock() *Clock { return &Clock{t: time.Unix(1_700_000_000, 0)} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Indicator records every state it is set to.
type Indicator struct {
	mu     sync.Mutex
	states []bool
}

func (i *Indicator) Set(on bool) {
	i.mu.Lock()
	i.states = append(i.states, on)
	i.mu.Unlock()
}

// States returns the recorded states in order.
func (i *Indicator) States() []bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]bool(nil), i.states...)
}

// Last returns the latest state, false when never set.
func (i *Indicator) Last() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.states) == 0 {
		return false
	}
	return i.states[len(i.states)-1]
}

// Write is one report recorded by Sink.
type Write struct {
	Kind     string
	Mouse    mouse.Report
	Keyboard keyboard.Report
	Media    media.Report
}

// Sink records HID writes. A non-nil Fail is consulted per write kind
// ("mouse", "keyboard", "media") and its error returned.
type Sink struct {
	mu     sync.Mutex
	writes []Write
	Fail   func(kind string) error
	// Written receives a value after each write when non-nil.
	Written chan struct{}
}

func (s *Sink) record(w Write) error {
	s.mu.Lock()
	s.writes = append(s.writes, w)
	fail := s.Fail
	s.mu.Unlock()
	if s.Written != nil {
		s.Written <- struct{}{}
	}
	if fail != nil {
		return fail(w.Kind)
	}
	return nil
}

func (s *Sink) WriteMouse(r mouse.Report) error {
	return s.record(Write{Kind: "mouse", Mouse: r})
}

func (s *Sink) WriteKeyboard(r keyboard.Report) error {
	return s.record(Write{Kind: "keyboard", Keyboard: r})
}

func (s *Sink) WriteMedia(r media.Report) error {
	return s.record(Write{Kind: "media", Media: r})
}

// Writes returns the recorded writes in order.
func (s *Sink) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// Station is a scripted WiFi station. JoinErrs are returned by successive
// Join calls; once exhausted Join succeeds.
type Station struct {
	mu       sync.Mutex
	JoinErrs []error
	joins    int
	leaves   int
	// JoinBlock makes Join wait for ctx when true for the matching attempt index.
	JoinBlock map[int]bool
}

func (s *Station) Join(ctx context.Context) error {
	s.mu.Lock()
	n := s.joins
	s.joins++
	var err error
	if n < len(s.JoinErrs) {
		err = s.JoinErrs[n]
	}
	block := s.JoinBlock[n]
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *Station) WaitLinkUp(ctx context.Context) error   { return ctx.Err() }
func (s *Station) WaitConfigUp(ctx context.Context) error { return ctx.Err() }

func (s *Station) Leave(ctx context.Context) error {
	s.mu.Lock()
	s.leaves++
	s.mu.Unlock()
	return nil
}

// Joins returns the number of Join calls.
func (s *Station) Joins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joins
}

// Leaves returns the number of Leave calls.
func (s *Station) Leaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaves
}
