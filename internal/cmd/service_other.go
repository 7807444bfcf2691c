//go:build !linux

package cmd

import (
	"errors"
	"log/slog"
)

var errServiceUnsupported = errors.New("service management is only supported on Linux")

func install(*slog.Logger, string, string) error { return errServiceUnsupported }

func uninstall(*slog.Logger, string) error { return errServiceUnsupported }
