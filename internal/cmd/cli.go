// Package cmd holds the motionglove subcommands.
package cmd

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/losdos/motionglove/internal/log"
	"github.com/losdos/motionglove/internal/util"
)

// CLI is the root command line.
type CLI struct {
	Config string     `help:"Config file (JSON, YAML or TOML by extension)" env:"MOTIONGLOVE_CONFIG" type:"path"`
	Log    log.Config `embed:"" prefix:"log."`

	Glove     Glove          `cmd:"" help:"Run the glove: sample the sensors and stream instructions to the dongle"`
	Dongle    Dongle         `cmd:"" help:"Run the dongle: receive instructions and replay them as HID reports"`
	Monitor   Monitor        `cmd:"" help:"Print glove telemetry from an MQTT broker"`
	ConfigCmd ConfigCommand  `cmd:"" name:"config" help:"Configuration helpers"`
	Service   ServiceCommand `cmd:"" help:"Manage the systemd service of a node"`
}

// task is a long-running loop of a node.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// runTasks runs every task until ctx is cancelled. The first task failing
// stops the others and its error is returned.
func runTasks(ctx context.Context, logger *slog.Logger, tasks ...task) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			err := t.run(ctx)
			if err != nil {
				logger.Error("Task failed", "task", t.name, "error", err)
			}
			return err
		})
	}
	return g.Wait()
}

func closeAll(logger *slog.Logger, closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && !util.IsClosed(err) {
			logger.Warn("Close failed", "error", err)
		}
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
