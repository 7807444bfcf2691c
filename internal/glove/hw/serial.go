package hw

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/jacobsa/go-serial/serial"

	"github.com/losdos/motionglove/internal/glove/flex"
	"github.com/losdos/motionglove/internal/glove/orientation"
)

// SerialConfig selects the port of a microcontroller streaming sensor lines.
type SerialConfig struct {
	Port string `help:"Serial port streaming sensor lines" default:"/dev/ttyACM0" env:"MOTIONGLOVE_HW_SERIAL_PORT"`
	Baud uint   `help:"Serial baud rate" default:"115200" env:"MOTIONGLOVE_HW_SERIAL_BAUD"`
}

// ErrNoData is returned until the first complete line has been parsed.
var ErrNoData = errors.New("no sensor line received yet")

// Line is one parsed sensor line:
//
//	ax,ay,az,gx,gy,gz,thumb,index,middle,tap
//
// Acceleration is in milli-g, rates in deg/s, flex values are raw ADC codes
// and tap is 0 or 1.
type Line struct {
	Sample   orientation.Sample
	Readings flex.Readings
	Tap      bool
}

const lineFields = 10

// ParseLine decodes one sensor line. Blank lines and lines starting with '#'
// return io.EOF so callers can skip them.
func ParseLine(s string) (Line, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "#") {
		return Line{}, io.EOF
	}
	parts := strings.Split(s, ",")
	if len(parts) != lineFields {
		return Line{}, fmt.Errorf("expected %d fields, got %d", lineFields, len(parts))
	}
	var l Line
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 16)
		if err != nil {
			return Line{}, fmt.Errorf("field %d: %w", i, err)
		}
		if i < 3 {
			l.Sample.Accel[i] = int16(v)
		} else {
			l.Sample.Gyro[i-3] = int16(v)
		}
	}
	for i := 0; i < flex.NumFingers; i++ {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[6+i]), 10, 16)
		if err != nil {
			return Line{}, fmt.Errorf("field %d: %w", 6+i, err)
		}
		l.Readings[i] = uint16(v)
	}
	switch strings.TrimSpace(parts[9]) {
	case "0":
	case "1":
		l.Tap = true
	default:
		return Line{}, fmt.Errorf("field 9: tap must be 0 or 1")
	}
	return l, nil
}

// SerialSource keeps the latest line read from a serial stream and serves it
// as motion, flex and tap readings.
type SerialSource struct {
	rc     io.ReadCloser
	logger *slog.Logger

	mu   sync.Mutex
	last Line
	ok   bool
	err  error
}

// OpenSerial opens the configured port in 8N1 mode.
func OpenSerial(cfg SerialConfig, logger *slog.Logger) (*SerialSource, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        cfg.Port,
		BaudRate:        cfg.Baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	logger.Info("Serial sensor source opened", "port", cfg.Port, "baud", cfg.Baud)
	return NewSerialSource(port, logger), nil
}

// NewSerialSource wraps an already open stream.
func NewSerialSource(rc io.ReadCloser, logger *slog.Logger) *SerialSource {
	return &SerialSource{rc: rc, logger: logger}
}

// Run reads lines until the stream ends or ctx is cancelled.
func (s *SerialSource) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.rc.Close() })
	defer stop()

	sc := bufio.NewScanner(s.rc)
	for sc.Scan() {
		l, err := ParseLine(sc.Text())
		if errors.Is(err, io.EOF) {
			continue
		}
		if err != nil {
			s.logger.Debug("Bad sensor line", "line", sc.Text(), "error", err)
			continue
		}
		s.mu.Lock()
		s.last, s.ok = l, true
		s.mu.Unlock()
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("serial stream: %w", err)
}

// Close closes the underlying stream.
func (s *SerialSource) Close() error { return s.rc.Close() }

func (s *SerialSource) latest() (Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Line{}, s.err
	}
	if !s.ok {
		return Line{}, ErrNoData
	}
	return s.last, nil
}

func (s *SerialSource) ReadMotion(context.Context) (orientation.Sample, error) {
	l, err := s.latest()
	return l.Sample, err
}

func (s *SerialSource) Read(context.Context) (flex.Readings, error) {
	l, err := s.latest()
	return l.Readings, err
}

func (s *SerialSource) Tap(context.Context) (bool, error) {
	l, err := s.latest()
	return l.Tap, err
}
