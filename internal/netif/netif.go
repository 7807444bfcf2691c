// Package netif drives the host's WiFi interface through NetworkManager's
// nmcli: joining the glove network as a station, applying the static
// addresses of the link and hosting the network as an access point.
package netif

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config describes the WiFi network shared by glove and dongle.
type Config struct {
	Interface    string        `help:"WiFi interface" default:"wlan0" env:"MOTIONGLOVE_WIFI_INTERFACE"`
	SSID         string        `help:"Network name" default:"MotionGlove-Network" env:"MOTIONGLOVE_WIFI_SSID"`
	Password     string        `help:"WPA2 passphrase" default:"Password123" env:"MOTIONGLOVE_WIFI_PASSWORD"`
	Address      string        `help:"Static IPv4 address in CIDR form; empty waits for DHCP" env:"MOTIONGLOVE_WIFI_ADDRESS"`
	Channel      int           `help:"Radio channel of the access point" default:"5" env:"MOTIONGLOVE_WIFI_CHANNEL"`
	PollInterval time.Duration `help:"Interval of link and address checks" default:"250ms" env:"MOTIONGLOVE_WIFI_POLL_INTERVAL"`
	Nmcli        string        `help:"nmcli binary" default:"nmcli" env:"MOTIONGLOVE_WIFI_NMCLI"`
}

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

// Station joins the network as a client.
type Station struct {
	cfg    Config
	run    Runner
	logger *slog.Logger

	sysfs string
	addrs func(iface string) ([]net.Addr, error)
}

// NewStation returns a station using run; nil selects ExecRunner.
func NewStation(cfg Config, run Runner, logger *slog.Logger) *Station {
	if run == nil {
		run = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Station{
		cfg:    cfg,
		run:    run,
		logger: logger.With("iface", cfg.Interface),
		sysfs:  "/sys/class/net",
		addrs:  interfaceAddrs,
	}
}

// Join connects to the SSID. ctx bounds the attempt.
func (s *Station) Join(ctx context.Context) error {
	args := []string{"--wait", waitSeconds(ctx), "device", "wifi", "connect", s.cfg.SSID}
	if s.cfg.Password != "" {
		args = append(args, "password", s.cfg.Password)
	}
	args = append(args, "ifname", s.cfg.Interface)
	if _, err := s.run.Run(ctx, s.cfg.Nmcli, args...); err != nil {
		return fmt.Errorf("join %q: %w", s.cfg.SSID, err)
	}
	s.logger.Info("Joined WiFi network", "ssid", s.cfg.SSID)
	return nil
}

// WaitLinkUp polls the interface's operstate until it reads "up".
func (s *Station) WaitLinkUp(ctx context.Context) error {
	path := filepath.Join(s.sysfs, s.cfg.Interface, "operstate")
	return s.poll(ctx, func() (bool, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(string(b)) == "up", nil
	})
}

// WaitConfigUp applies the static address when one is configured, then
// waits until the interface has an IPv4 address.
func (s *Station) WaitConfigUp(ctx context.Context) error {
	if s.cfg.Address != "" {
		if _, _, err := net.ParseCIDR(s.cfg.Address); err != nil {
			return fmt.Errorf("static address: %w", err)
		}
		if _, err := s.run.Run(ctx, "ip", "addr", "replace", s.cfg.Address, "dev", s.cfg.Interface); err != nil {
			return err
		}
	}
	return s.poll(ctx, func() (bool, error) {
		addrs, err := s.addrs(s.cfg.Interface)
		if err != nil {
			return false, err
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
				s.logger.Info("IPv4 address configured", "addr", ipn.String())
				return true, nil
			}
		}
		return false, nil
	})
}

// Leave drops the current association. Not being connected is not an error.
func (s *Station) Leave(ctx context.Context) error {
	out, err := s.run.Run(ctx, s.cfg.Nmcli, "device", "disconnect", s.cfg.Interface)
	if err != nil && bytes.Contains(out, []byte("not active")) {
		return nil
	}
	return err
}

// poll calls check every PollInterval until it reports done or ctx ends.
// Check errors are logged at debug and polling continues.
func (s *Station) poll(ctx context.Context, check func() (bool, error)) error {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		ok, err := check()
		if err != nil {
			s.logger.Debug("Interface check failed", "error", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func interfaceAddrs(name string) ([]net.Addr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return ifi.Addrs()
}

// waitSeconds turns ctx's deadline into nmcli's --wait argument.
func waitSeconds(ctx context.Context) string {
	dl, ok := ctx.Deadline()
	if !ok {
		return "0"
	}
	secs := int(time.Until(dl).Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
