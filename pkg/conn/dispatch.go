package conn

import (
	"net"

	"wallctl-go/pkg/errors"
	"wallctl-go/pkg/metrics"
	"wallctl-go/pkg/wire"
)

// readLoop is the per-connection goroutine turning socket bytes into
// frames and routing each one. Frames are handled strictly in arrival
// order; no frame's handling interleaves with another's.
func (c *Client) readLoop(sock net.Conn, gen uint64) {
	framer := wire.NewFramer()
	buf := make([]byte, 4096)

	for {
		n, err := sock.Read(buf)
		if n > 0 {
			// Inbound data re-arms the handshake trigger in case the
			// connect-time trigger lost a race with the socket.
			if c.needsHandshake(gen) {
				go c.startHandshake(gen)
			}

			for _, frame := range framer.Feed(buf[:n]) {
				if wire.IsBlank(frame) {
					continue
				}
				metrics.Global().FramesIn.Inc()

				msg, derr := wire.DecodeMessage(frame)
				if derr != nil {
					// A malformed line is dropped; the stream and the
					// buffer stay intact.
					metrics.Global().FramesMalformed.Inc()
					c.logger.WithError(errors.FrameParseError(string(frame), derr)).
						Warn("dropping malformed frame")
					continue
				}
				c.dispatch(msg, gen)
			}
		}
		if err != nil {
			c.teardown(gen, errors.TransportError("read", err), false)
			return
		}
	}
}

// dispatch classifies one inbound frame: responses go to the
// correlator, pings are answered in place, everything else carrying a
// method is a notification for the registered handler.
func (c *Client) dispatch(msg *wire.Message, gen uint64) {
	if msg.IsResponse() {
		c.corr.HandleResponse(msg)
		return
	}

	if msg.Method == MethodPing && msg.ID != nil {
		c.handlePing(*msg.ID, gen)
		return
	}

	if c.onNotification != nil {
		c.onNotification(msg)
	}
}

// handlePing answers a keep-alive only once the connection is Ready.
// Replying before the handshake completes would put a non-handshake
// frame first on the wire, so earlier pings are ignored.
func (c *Client) handlePing(id int64, gen uint64) {
	c.mu.Lock()
	ready := c.gen == gen && c.state == Ready
	c.mu.Unlock()

	if !ready {
		metrics.Global().PingsIgnored.Inc()
		c.logger.Debug("ignoring ping id=%d before handshake completion", id)
		return
	}

	data, err := wire.Encode(wire.Reply{ID: id, Result: "pong"})
	if err != nil {
		return
	}
	if err := c.WriteFrame(data); err != nil {
		c.logger.WithError(err).Warn("failed to answer ping")
		return
	}
	metrics.Global().PingsAnswered.Inc()
	c.logger.Debug("answered ping id=%d", id)
}
