//go:build linux

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	unitDir   = "/etc/systemd/system"
	systemctl = runSystemctl
)

func install(logger *slog.Logger, node, config string) error {
	exePath, err := currentExecutable()
	if err != nil {
		return err
	}

	name := serviceName(node)
	path := filepath.Join(unitDir, name)
	if err := os.WriteFile(path, []byte(systemdUnitContent(exePath, node, config)), 0o644); err != nil {
		return err
	}

	steps := [][]string{
		{"daemon-reload"},
		{"enable", name},
		{"restart", name},
	}
	for _, args := range steps {
		if err := systemctl(args...); err != nil {
			return err
		}
	}

	logger.Info("Systemd service installed", "path", path, "exe", exePath)
	return nil
}

func uninstall(logger *slog.Logger, node string) error {
	var errs []error
	name := serviceName(node)
	path := filepath.Join(unitDir, name)

	if err := systemctl("stop", name); err != nil {
		errs = append(errs, err)
	}
	if err := systemctl("disable", name); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := systemctl("daemon-reload"); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("Systemd service removed", "path", path)
	return nil
}

func systemdUnitContent(exePath, node, config string) string {
	start := fmt.Sprintf("%q %s", exePath, node)
	if config != "" {
		start += fmt.Sprintf(" --config=%q", config)
	}
	return fmt.Sprintf(`[Unit]
Description=motionglove %s
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s
WorkingDirectory=%s
Restart=on-failure
RestartSec=1

[Install]
WantedBy=multi-user.target
`, node, start, filepath.Dir(exePath))
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}

func currentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}
