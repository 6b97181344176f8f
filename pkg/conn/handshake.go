package conn

import (
	"context"

	"wallctl-go/pkg/errors"
	"wallctl-go/pkg/metrics"
	"wallctl-go/pkg/wire"
)

// handshakeParams is the payload of the mandatory first call.
type handshakeParams struct {
	ClientSupportedVersions []int `json:"client_supported_versions"`
}

// versionField is accepted nested under result or flattened beside the
// response id, depending on firmware generation.
const versionField = "server_selected_version"

// startHandshake drives version negotiation on the connection
// generation gen. It is triggered on transport connect, on a queued
// call and on inbound data; the re-entrancy guard makes every trigger
// but the first a no-op. The handshake request is the first frame on
// the wire: nothing else passes the gate until Ready.
func (c *Client) startHandshake(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != AwaitingHandshake || c.handshaking {
		c.mu.Unlock()
		return
	}
	c.handshaking = true
	versions := c.cfg.SupportedVersions
	c.mu.Unlock()

	c.logger.Info("negotiating protocol version, offering %v", versions)

	params := handshakeParams{ClientSupportedVersions: versions}
	call, err := c.corr.Send(c, MethodHandshake, params)
	if err != nil {
		c.handshakeFailed(gen, errors.HandshakeError("send", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	msg, err := call.Wait(ctx)
	cancel()
	if err != nil {
		c.handshakeFailed(gen, errors.HandshakeError("negotiation", err))
		return
	}

	var version int
	found, err := wire.ResultField(msg, versionField, &version)
	if err != nil {
		c.handshakeFailed(gen, errors.HandshakeError("decode", err))
		return
	}
	if !found {
		// Silently defaulting the negotiated version is unacceptable;
		// a response without the field is a hard failure.
		c.handshakeFailed(gen, errors.HandshakeError("decode", errors.DecodeError(versionField)))
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != AwaitingHandshake {
		c.mu.Unlock()
		return
	}
	c.version = version
	c.state = Ready
	c.handshaking = false
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()
	c.publishState(Ready)
	c.logger.Info("handshake complete, protocol version %d", version)

	// Flush the deferred calls in the order they were issued. Each is
	// re-issued as a normal call; its outcome flows back to the
	// original caller.
	for _, q := range queue {
		call, err := c.corr.Send(c, q.method, q.params)
		q.done <- callResult{call: call, err: err}
	}

	if c.onReady != nil {
		go c.onReady()
	}
}

// handshakeFailed escalates to a hard connection failure: the link is
// unusable until a fresh handshake succeeds on a new connection.
func (c *Client) handshakeFailed(gen uint64, err *errors.DeviceError) {
	metrics.Global().HandshakeFailures.Inc()
	c.logger.WithError(err).Error("handshake failed")
	c.teardown(gen, err, true)
}
