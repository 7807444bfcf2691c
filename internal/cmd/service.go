package cmd

import (
	"log/slog"
)

// ServiceCommand manages the systemd unit of a node.
type ServiceCommand struct {
	Install   ServiceInstall   `cmd:"" help:"Install and start a systemd service running the node"`
	Uninstall ServiceUninstall `cmd:"" help:"Stop and remove the node's systemd service"`
}

// ServiceInstall writes the unit, then enables and restarts it.
type ServiceInstall struct {
	Node       string `arg:"" name:"node" help:"Node to run" enum:"glove,dongle"`
	ConfigFile string `name:"config-file" help:"Config file passed to the service with --config" type:"path"`
}

// ServiceUninstall stops, disables and deletes the unit.
type ServiceUninstall struct {
	Node string `arg:"" name:"node" help:"Node whose service is removed" enum:"glove,dongle"`
}

func (s *ServiceInstall) Run(logger *slog.Logger) error {
	return install(logger, s.Node, s.ConfigFile)
}

func (s *ServiceUninstall) Run(logger *slog.Logger) error {
	return uninstall(logger, s.Node)
}

func serviceName(node string) string {
	return "motionglove-" + node + ".service"
}
