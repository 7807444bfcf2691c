//go:build !linux

package link

import (
	"net"
	"time"
)

// setUserTimeout is a no-op; write and read deadlines still apply.
func setUserTimeout(*net.TCPConn, time.Duration) error { return nil }
