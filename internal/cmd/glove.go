package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/losdos/motionglove/internal/glove/gesture"
	"github.com/losdos/motionglove/internal/glove/hw"
	"github.com/losdos/motionglove/internal/glove/sampler"
	"github.com/losdos/motionglove/internal/link"
	"github.com/losdos/motionglove/internal/log"
	"github.com/losdos/motionglove/internal/netif"
	"github.com/losdos/motionglove/internal/telemetry"
	"github.com/losdos/motionglove/internal/transport"
)

// FilterConfig holds the sampling and sensor filter tunables.
type FilterConfig struct {
	ReadFreq int     `help:"Sampling rate in Hz" default:"1000" env:"MOTIONGLOVE_FILTER_READ_FREQ"`
	Alpha    float32 `help:"Accelerometer weight of the complementary filter" default:"0.05" env:"MOTIONGLOVE_FILTER_ALPHA"`
	SupBand  uint16  `help:"Flex reading at or above which a finger opens" default:"900" env:"MOTIONGLOVE_FILTER_SUP_BAND"`
	LowBand  uint16  `help:"Flex reading at or below which a finger closes" default:"500" env:"MOTIONGLOVE_FILTER_LOW_BAND"`
}

// Glove runs the glove node.
type Glove struct {
	Backend   string           `name:"hw.backend" help:"Sensor backend" enum:"periph,serial,sim" default:"periph" env:"MOTIONGLOVE_HW_BACKEND"`
	HW        hw.PeriphConfig  `embed:"" prefix:"hw."`
	Serial    hw.SerialConfig  `embed:"" prefix:"hw.serial."`
	Filter    FilterConfig     `embed:"" prefix:"filter."`
	Gesture   gesture.Config   `embed:"" prefix:"gesture."`
	Link      link.Config      `embed:"" prefix:"link."`
	WiFi      netif.Config     `embed:"" prefix:"wifi."`
	Join      bool             `name:"wifi.join" help:"Join the WiFi network before connecting and after link loss" default:"true" negatable:"" env:"MOTIONGLOVE_WIFI_JOIN"`
	Telemetry telemetry.Config `embed:"" prefix:"telemetry."`
}

// Run is called by Kong when the glove command is executed.
func (g *Glove) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return g.StartGlove(ctx, logger, rawLogger)
}

// StartGlove runs the glove until ctx is cancelled.
func (g *Glove) StartGlove(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	var closers []io.Closer
	defer func() { closeAll(logger, closers) }()

	sensors, led, tasks, err := g.openSensors(logger, &closers)
	if err != nil {
		return err
	}
	indicators := link.Indicators{&link.LogIndicator{Logger: logger, Name: "link"}}
	if led != nil {
		indicators = append(indicators, led)
	}

	q := transport.NewQueue(g.Link.QueueSize)

	var observe func(sampler.Snapshot)
	if g.Telemetry.Broker != "" {
		client, err := telemetry.Connect(g.Telemetry, logger)
		if err != nil {
			return err
		}
		closers = append(closers, closerFunc(func() error {
			client.Disconnect(250)
			return nil
		}))
		reporter := telemetry.NewReporter(g.Telemetry, client, logger)
		observe = reporter.Observe
		tasks = append(tasks, task{"telemetry", reporter.Run})
	}

	smp := sampler.New(sampler.Config{
		ReadFreq: g.Filter.ReadFreq,
		Alpha:    g.Filter.Alpha,
		SupBand:  g.Filter.SupBand,
		LowBand:  g.Filter.LowBand,
		Gesture:  g.Gesture,
	}, sensors, q, observe, logger)

	connector, err := g.connector(&closers)
	if err != nil {
		return err
	}
	key, err := g.Link.Key()
	if err != nil {
		return fmt.Errorf("derive link key: %w", err)
	}
	opts := []link.Option{link.WithIndicator(indicators), link.WithKey(key), link.WithRawLogger(rawLogger)}
	if g.Join {
		opts = append(opts, link.WithStation(netif.NewStation(g.WiFi, nil, logger)))
	}
	sender := link.NewSender(g.Link, q, connector, logger, opts...)

	logger.Info("Starting glove", "backend", g.Backend, "reverse", g.Link.Reverse, "auth", key != nil)
	tasks = append(tasks, task{"sampler", smp.Run}, task{"sender", sender.Run})
	return runTasks(ctx, logger, tasks...)
}

func (g *Glove) openSensors(logger *slog.Logger, closers *[]io.Closer) (sampler.Sensors, link.Indicator, []task, error) {
	switch g.Backend {
	case "periph":
		p, err := hw.OpenPeriph(g.HW, logger)
		if err != nil {
			return sampler.Sensors{}, nil, nil, err
		}
		*closers = append(*closers, p)
		sensors := sampler.Sensors{Motion: p.IMU, Flex: p.Flex}
		if p.Tap != nil {
			sensors.Tap = p.Tap
		}
		var led link.Indicator
		if p.LED != nil {
			led = p.LED
		}
		return sensors, led, nil, nil
	case "serial":
		src, err := hw.OpenSerial(g.Serial, logger)
		if err != nil {
			return sampler.Sensors{}, nil, nil, err
		}
		*closers = append(*closers, src)
		return sampler.Sensors{Motion: src, Flex: src, Tap: src}, nil, []task{{"serial", src.Run}}, nil
	case "sim":
		sim := hw.NewSim(nil)
		logger.Info("Using simulated sensors", "period", sim.Period)
		return sampler.Sensors{Motion: sim, Flex: sim, Tap: sim}, nil, nil, nil
	}
	return sampler.Sensors{}, nil, nil, fmt.Errorf("unknown sensor backend %q", g.Backend)
}

// connector dials the dongle, or listens for it when roles are reversed.
func (g *Glove) connector(closers *[]io.Closer) (link.Connector, error) {
	if !g.Link.Reverse {
		return &link.Dialer{Addr: g.Link.DongleAddr, Timeout: g.Link.DialTimeout, SocketTimeout: g.Link.SocketTimeout}, nil
	}
	ln, err := link.Listen(g.Link.ListenAddr, g.Link.SocketTimeout)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, ln)
	return ln, nil
}
