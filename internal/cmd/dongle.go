package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/losdos/motionglove/internal/hidout"
	"github.com/losdos/motionglove/internal/hidout/gadget"
	"github.com/losdos/motionglove/internal/hidout/logsink"
	"github.com/losdos/motionglove/internal/hidout/usbip"
	"github.com/losdos/motionglove/internal/link"
	"github.com/losdos/motionglove/internal/log"
	"github.com/losdos/motionglove/internal/netif"
	"github.com/losdos/motionglove/internal/replay"
	"github.com/losdos/motionglove/internal/telemetry"
	"github.com/losdos/motionglove/internal/transport"
)

// HIDConfig selects where replayed reports go.
type HIDConfig struct {
	Sink       string `help:"Report sink" enum:"gadget,usbip,log" default:"gadget" env:"MOTIONGLOVE_HID_SINK"`
	PollMS     uint8  `help:"bInterval of the emulated HID endpoints in ms" default:"1" env:"MOTIONGLOVE_HID_POLL_MS"`
	AllReports bool   `help:"Write every report, including unchanged keyboard and media reports" env:"MOTIONGLOVE_HID_ALL_REPORTS"`
}

// Dongle runs the dongle node.
type Dongle struct {
	Link        link.Config          `embed:"" prefix:"link."`
	WiFi        netif.Config         `embed:"" prefix:"wifi."`
	Join        bool                 `name:"wifi.join" help:"Join the WiFi network at startup" env:"MOTIONGLOVE_WIFI_JOIN"`
	AccessPoint bool                 `name:"wifi.access-point" help:"Host the WiFi network on this node" env:"MOTIONGLOVE_WIFI_ACCESS_POINT"`
	HID         HIDConfig            `embed:"" prefix:"hid."`
	Gadget      gadget.Config        `embed:"" prefix:"gadget."`
	USBIP       usbip.Config         `embed:"" prefix:"usbip."`
	Feed        telemetry.FeedConfig `embed:"" prefix:"feed."`
}

// Run is called by Kong when the dongle command is executed.
func (d *Dongle) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.StartDongle(ctx, logger, rawLogger)
}

// StartDongle runs the dongle until ctx is cancelled.
func (d *Dongle) StartDongle(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	var closers []io.Closer
	defer func() { closeAll(logger, closers) }()

	if err := d.network(ctx, logger, &closers); err != nil {
		return err
	}

	sink, tasks, err := d.openSink(logger, rawLogger, &closers)
	if err != nil {
		return err
	}
	if !d.HID.AllReports {
		sink = hidout.Changes(sink)
	}

	var observers []replay.Observer
	if d.Feed.Addr != "" {
		feed := telemetry.NewFeed(logger)
		observers = append(observers, feed.Observe)
		tasks = append(tasks, task{"feed", func(ctx context.Context) error {
			return feed.ListenAndServe(ctx, d.Feed.Addr)
		}})
	}

	q := transport.NewQueue(d.Link.QueueSize)
	engine := replay.New(q, sink, logger, observers...)

	connector, err := d.connector(&closers)
	if err != nil {
		return err
	}
	key, err := d.Link.Key()
	if err != nil {
		return fmt.Errorf("derive link key: %w", err)
	}
	receiver := link.NewReceiver(d.Link, q, connector, logger,
		link.WithIndicator(&link.LogIndicator{Logger: logger, Name: "glove"}),
		link.WithKey(key),
		link.WithRawLogger(rawLogger))

	logger.Info("Starting dongle", "sink", d.HID.Sink, "reverse", d.Link.Reverse, "auth", key != nil)
	tasks = append(tasks, task{"receiver", receiver.Run}, task{"replay", engine.Run})
	err = runTasks(ctx, logger, tasks...)

	rs, es := receiver.Stats(), engine.Stats()
	logger.Info("Dongle stopped",
		"connections", rs.Connections, "frames", rs.Frames, "dropped_bytes", rs.DroppedBytes,
		"replayed", es.Instructions, "write_failures", es.Failures)
	return err
}

// network brings up the access point or joins the network once. Both are
// optional; without them the host network is used as is.
func (d *Dongle) network(ctx context.Context, logger *slog.Logger, closers *[]io.Closer) error {
	switch {
	case d.AccessPoint:
		ap := netif.NewAccessPoint(d.WiFi, nil, logger)
		if err := ap.Start(ctx); err != nil {
			return err
		}
		*closers = append(*closers, closerFunc(func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ap.Stop(sctx)
		}))
	case d.Join:
		st := netif.NewStation(d.WiFi, nil, logger)
		for _, step := range []func(context.Context) error{st.Join, st.WaitLinkUp, st.WaitConfigUp} {
			if err := step(ctx); err != nil {
				return fmt.Errorf("join network: %w", err)
			}
		}
	}
	return nil
}

func (d *Dongle) openSink(logger *slog.Logger, rawLogger log.RawLogger, closers *[]io.Closer) (replay.Sink, []task, error) {
	switch d.HID.Sink {
	case "gadget":
		g := d.Gadget
		sink, err := gadget.Open(g)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, sink)
		if g.Setup {
			*closers = append(*closers, closerFunc(g.ConfigFS.Remove))
		}
		logger.Info("Writing reports to USB gadget", "mouse", g.MouseDev, "keyboard", g.KeyboardDev, "media", g.MediaDev)
		return sink, nil, nil
	case "usbip":
		sink, srv, err := usbip.NewSink(d.USBIP, d.HID.PollMS, logger, rawLogger)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, srv)
		ln, err := net.Listen("tcp", d.USBIP.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("usbip listen: %w", err)
		}
		*closers = append(*closers, ln)
		run := func(ctx context.Context) error {
			stop := context.AfterFunc(ctx, func() {
				_ = ln.Close()
				_ = srv.Close()
			})
			defer stop()
			return srv.Serve(ln)
		}
		return sink, []task{{"usbip", run}}, nil
	case "log":
		return logsink.New(logger, slog.LevelInfo), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown HID sink %q", d.HID.Sink)
}

// connector accepts the glove, or dials it when roles are reversed.
func (d *Dongle) connector(closers *[]io.Closer) (link.Connector, error) {
	if d.Link.Reverse {
		return &link.Dialer{Addr: d.Link.GloveAddr, Timeout: d.Link.DialTimeout, SocketTimeout: d.Link.SocketTimeout}, nil
	}
	ln, err := link.Listen(d.Link.ListenAddr, d.Link.SocketTimeout)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, ln)
	return ln, nil
}
