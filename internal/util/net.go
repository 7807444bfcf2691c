// Package util holds small helpers shared by the link and USB-IP servers.
package util

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// IsClientDisconnect reports whether err is an ordinary peer disconnect
// (EOF, ECONNRESET, broken pipe, or the Windows WSAECONNRESET text). Those are
// logged at info level instead of error.
func IsClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") || strings.Contains(e, "forcibly closed") || strings.Contains(e, "aborted")
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsClosed reports whether err comes from using a closed listener or connection.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) || strings.Contains(strings.ToLower(err.Error()), "use of closed network connection")
}
