package netif

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
)

// APConnection is the NetworkManager connection profile created by AccessPoint.
const APConnection = "motionglove-ap"

// AccessPoint hosts the WPA2 network the glove joins.
type AccessPoint struct {
	cfg    Config
	run    Runner
	logger *slog.Logger
}

// NewAccessPoint returns an access point using run; nil selects ExecRunner.
func NewAccessPoint(cfg Config, run Runner, logger *slog.Logger) *AccessPoint {
	if run == nil {
		run = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessPoint{cfg: cfg, run: run, logger: logger.With("iface", cfg.Interface)}
}

// Start (re)creates the access point profile and brings it up. The
// configured Address becomes the access point's own address.
func (a *AccessPoint) Start(ctx context.Context) error {
	if a.cfg.Address == "" {
		return fmt.Errorf("access point needs a static address")
	}
	if _, _, err := net.ParseCIDR(a.cfg.Address); err != nil {
		return fmt.Errorf("access point address: %w", err)
	}
	_, _ = a.run.Run(ctx, a.cfg.Nmcli, "connection", "delete", APConnection)

	args := []string{
		"connection", "add", "type", "wifi",
		"ifname", a.cfg.Interface,
		"con-name", APConnection,
		"autoconnect", "no",
		"ssid", a.cfg.SSID,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"802-11-wireless.channel", strconv.Itoa(a.cfg.Channel),
		"ipv4.method", "manual",
		"ipv4.addresses", a.cfg.Address,
	}
	if a.cfg.Password != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.proto", "rsn", "wifi-sec.psk", a.cfg.Password)
	}
	if _, err := a.run.Run(ctx, a.cfg.Nmcli, args...); err != nil {
		return fmt.Errorf("create access point: %w", err)
	}
	if _, err := a.run.Run(ctx, a.cfg.Nmcli, "connection", "up", APConnection); err != nil {
		return fmt.Errorf("start access point: %w", err)
	}
	a.logger.Info("Access point up", "ssid", a.cfg.SSID, "channel", a.cfg.Channel, "addr", a.cfg.Address)
	return nil
}

// Stop takes the access point down.
func (a *AccessPoint) Stop(ctx context.Context) error {
	if _, err := a.run.Run(ctx, a.cfg.Nmcli, "connection", "down", APConnection); err != nil {
		return fmt.Errorf("stop access point: %w", err)
	}
	return nil
}
