// Package conn owns the TCP connection to the wall processor and the
// handshake state machine gating traffic on it. Calls issued before the
// handshake completes are queued and flushed in order once the
// negotiated connection is ready.
package conn

import (
	"context"
	"net"
	"sync"
	"time"

	"wallctl-go/pkg/errors"
	"wallctl-go/pkg/log"
	"wallctl-go/pkg/metrics"
	"wallctl-go/pkg/rpc"
	"wallctl-go/pkg/wire"
)

// MethodHandshake is the mandatory first call on every connection.
const MethodHandshake = "handshake"

// MethodPing is the server keep-alive request.
const MethodPing = "ping"

// Default timing constants.
const (
	DefaultDialTimeout      = 5 * time.Second
	DefaultHandshakeTimeout = 7 * time.Second
	DefaultKeepAlive        = 30 * time.Second
)

// Config carries the externally-supplied connection parameters.
type Config struct {
	// Host and Port address the device.
	Host string
	Port int

	// DialTimeout bounds the TCP connect.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the version negotiation call.
	HandshakeTimeout time.Duration

	// UserTimeout, when set on Linux, bounds how long written data may
	// stay unacknowledged before the kernel declares the peer dead.
	UserTimeout time.Duration

	// SupportedVersions is sent as client_supported_versions.
	SupportedVersions []int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DialTimeout == 0 {
		out.DialTimeout = DefaultDialTimeout
	}
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if len(out.SupportedVersions) == 0 {
		out.SupportedVersions = []int{1, 2}
	}
	return out
}

// NotificationHandler receives server-initiated messages that are not
// keep-alive pings.
type NotificationHandler func(msg *wire.Message)

type callResult struct {
	call *rpc.Call
	err  error
}

// queuedCall is a call captured while the handshake is incomplete. The
// queue preserves issue order and is flushed FIFO on Ready.
type queuedCall struct {
	method string
	params interface{}
	done   chan callResult
}

// Client is the connection lifecycle owner. A single Client serves the
// whole process; the underlying socket is replaced on every (re)connect
// attempt and a generation counter keeps late goroutines of a dead
// connection from touching the new one.
type Client struct {
	cfg    Config
	corr   *rpc.Correlator
	logger *log.Logger

	mu          sync.Mutex
	state       State
	failed      bool // last attempt ended in a handshake failure
	sock        net.Conn
	gen         uint64
	queue       []*queuedCall
	handshaking bool
	version     int

	writeMu sync.Mutex

	onNotification NotificationHandler
	onReady        func()
	onDown         func(err error)
}

// New creates a client around an existing correlator so request ids
// survive reconnects.
func New(cfg Config, corr *rpc.Correlator, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.GetLogger("conn")
	}
	return &Client{
		cfg:    cfg.withDefaults(),
		corr:   corr,
		logger: logger,
	}
}

// SetNotificationHandler registers the handler for server notifications.
// Must be called before Connect.
func (c *Client) SetNotificationHandler(h NotificationHandler) {
	c.onNotification = h
}

// SetReadyHandler registers a hook invoked (on its own goroutine) after
// every successful handshake. Used to prime the state cache.
func (c *Client) SetReadyHandler(h func()) {
	c.onReady = h
}

// SetDownHandler registers a hook invoked when the connection drops or
// the handshake fails. The error distinguishes the two:
// errors.Is(err, errors.ErrHandshake) marks a hard connection failure.
func (c *Client) SetDownHandler(h func(err error)) {
	c.onDown = h
}

// Connect dials the device and arms the handshake state machine. It
// returns once the transport is up; version negotiation proceeds in the
// background and calls issued meanwhile are queued.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return errors.RuntimeError("connect requested while " + c.state.String())
	}
	c.state = TcpConnecting
	c.failed = false
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.publishState(TcpConnecting)
	if gen > 1 {
		metrics.Global().Reconnects.Inc()
	}

	sock, err := dial(ctx, c.cfg)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		c.publishState(Disconnected)
		return errors.TransportError("connect", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		sock.Close()
		return errors.ConnectionLostError()
	}
	c.sock = sock
	c.state = AwaitingHandshake
	c.mu.Unlock()
	c.publishState(AwaitingHandshake)
	c.logger.Info("connected to %s:%d", c.cfg.Host, c.cfg.Port)

	go c.readLoop(sock, gen)
	go c.startHandshake(gen)
	return nil
}

// Call is the lifecycle gate. When Ready the call goes straight through
// the correlator; otherwise it is queued and transmitted, in order,
// after the handshake succeeds.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*wire.Message, error) {
	c.mu.Lock()
	if c.state == Ready {
		c.mu.Unlock()
		call, err := c.corr.Send(c, method, params)
		if err != nil {
			return nil, err
		}
		return call.Wait(ctx)
	}

	q := &queuedCall{
		method: method,
		params: params,
		done:   make(chan callResult, 1),
	}
	c.queue = append(c.queue, q)
	gen := c.gen
	c.mu.Unlock()

	metrics.Global().RPCQueued.Inc()
	c.logger.Debug("queued %s until handshake completes", method)
	go c.startHandshake(gen)

	select {
	case res := <-q.done:
		if res.err != nil {
			return nil, res.err
		}
		return res.call.Wait(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteFrame transmits one serialized frame on the current socket.
// Implements rpc.Transport.
func (c *Client) WriteFrame(data []byte) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return errors.ConnectionLostError()
	}

	c.writeMu.Lock()
	_, err := sock.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	metrics.Global().FramesOut.Inc()
	return nil
}

// Close tears the connection down without a failure status.
func (c *Client) Close() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.teardown(gen, nil, false)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the handshake has completed on the current
// connection.
func (c *Client) Ready() bool {
	return c.State() == Ready
}

// ProtocolVersion returns the last negotiated protocol version, or 0 if
// no handshake has succeeded yet.
func (c *Client) ProtocolVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Status maps the lifecycle state onto the operator-facing indicator.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Ready:
		return StatusOk
	case TcpConnecting, AwaitingHandshake:
		return StatusConnecting
	default:
		if c.failed {
			return StatusConnectionFailure
		}
		return StatusDisconnected
	}
}

// QueuedCount returns the number of calls held for the handshake.
func (c *Client) QueuedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) needsHandshake(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state == AwaitingHandshake && !c.handshaking
}

func (c *Client) publishState(s State) {
	metrics.Global().ConnectionState.Set(float64(s))
}

// teardown moves the connection to Disconnected, closes the socket,
// rejects the queued calls and fails the outstanding ones. Queued calls
// are rejected rather than silently dropped so no caller is left
// waiting forever.
func (c *Client) teardown(gen uint64, cause error, handshakeFailure bool) {
	c.mu.Lock()
	if c.gen != gen || c.state == Disconnected {
		c.mu.Unlock()
		return
	}
	sock := c.sock
	c.sock = nil
	c.state = Disconnected
	c.handshaking = false
	c.failed = handshakeFailure
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	c.publishState(Disconnected)

	lost := error(errors.ConnectionLostError())
	if handshakeFailure && cause != nil {
		lost = cause
	}
	for _, q := range queue {
		q.done <- callResult{err: lost}
	}
	c.corr.FailAll(lost)

	if cause != nil {
		c.logger.WithError(cause).Error("connection down")
	} else {
		c.logger.Info("connection closed")
	}
	if c.onDown != nil {
		go c.onDown(cause)
	}
}
