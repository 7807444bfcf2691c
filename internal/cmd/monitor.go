package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/losdos/motionglove/internal/glove/flex"
	"github.com/losdos/motionglove/internal/glove/orientation"
	"github.com/losdos/motionglove/internal/telemetry"
)

// Monitor prints the pose and finger telemetry published by a glove.
type Monitor struct {
	Telemetry telemetry.Config `embed:"" prefix:"telemetry."`
	JSON      bool             `help:"Print JSON lines even on a terminal" env:"MOTIONGLOVE_MONITOR_JSON"`
}

// Run is called by Kong when the monitor command is executed.
func (m *Monitor) Run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if m.Telemetry.Broker == "" {
		return errors.New("monitor needs --telemetry.broker")
	}
	cfg := m.Telemetry
	cfg.ClientID += "-monitor"
	client, err := telemetry.Connect(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	asJSON := m.JSON || !term.IsTerminal(int(os.Stdout.Fd()))
	p := newPrinter(os.Stdout, asJSON)
	if err := telemetry.Subscribe(client, cfg, logger, p.Pose, p.Fingers); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

const headerEvery = 20

// printer renders telemetry as JSON lines or as a table, one row per update.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	json    bool
	rows    int
	pose    orientation.Pose
	fingers telemetry.Fingers
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, json: asJSON}
}

type jsonLine struct {
	Topic   string             `json:"topic"`
	Pose    *orientation.Pose  `json:"pose,omitempty"`
	Fingers *telemetry.Fingers `json:"fingers,omitempty"`
}

func (p *printer) Pose(pose orientation.Pose) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pose = pose
	if p.json {
		p.line(jsonLine{Topic: "pose", Pose: &pose})
		return
	}
	p.row()
}

func (p *printer) Fingers(f telemetry.Fingers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fingers = f
	if p.json {
		p.line(jsonLine{Topic: "fingers", Fingers: &f})
		return
	}
	p.row()
}

func (p *printer) line(l jsonLine) {
	b, err := json.Marshal(l)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(p.w, "%s\n", b)
}

func (p *printer) row() {
	if p.rows%headerEvery == 0 {
		_, _ = fmt.Fprintf(p.w, "%8s %8s %6s %6s %6s %4s\n", "ROLL", "PITCH", "THUMB", "INDEX", "MIDDLE", "TAP")
	}
	p.rows++
	_, _ = fmt.Fprintf(p.w, "%8.2f %8.2f %6s %6s %6s %4s\n",
		p.pose.Roll, p.pose.Pitch,
		finger(p.fingers, flex.Thumb), finger(p.fingers, flex.Index), finger(p.fingers, flex.Middle),
		onOff(p.fingers.Tap))
}

func finger(f telemetry.Fingers, i int) string {
	s := fmt.Sprintf("%d", f.Readings[i])
	if f.Closed[i] {
		s += "*"
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "-"
}
