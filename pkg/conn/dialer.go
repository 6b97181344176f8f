package conn

import (
	"context"
	"net"
	"strconv"
)

// dial establishes the TCP transport to the device. Keep-alive probes
// and (on Linux) TCP_USER_TIMEOUT catch peers that die without closing
// the socket.
func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	d := net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: DefaultKeepAlive,
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	sock, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if tcp, ok := sock.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		if err := setUserTimeout(tcp, cfg.UserTimeout); err != nil {
			sock.Close()
			return nil, err
		}
	}
	return sock, nil
}
