//go:build !linux

package conn

import (
	"net"
	"time"
)

// TCP_USER_TIMEOUT is Linux-only; other platforms rely on keep-alive
// probes alone.
func setUserTimeout(conn *net.TCPConn, d time.Duration) error {
	return nil
}
