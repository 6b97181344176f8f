// Package device is the collaborator-facing surface of the wall
// controller: a facade for invoking remote methods, a mirror of device
// state, and status observables. External layers (actions, feedbacks,
// choice-list builders) depend on this package only.
package device

import (
	"context"
	"strconv"
	"time"

	"wallctl-go/pkg/conn"
	"wallctl-go/pkg/log"
	"wallctl-go/pkg/rpc"
	"wallctl-go/pkg/state"
	"wallctl-go/pkg/wire"
)

// Device method names for the modeled command subset. Anything else is
// a pass-through call with no special handling.
const (
	MethodListDisplays  = "list_displays"
	MethodListLayouts   = "list_layouts"
	MethodListSnapshots = "list_snapshots"
	MethodListWindows   = "list_windows"
	MethodListInputs    = "list_inputs"
	MethodFireSnapshot  = "fire_snapshot"
)

// Options configures the client beyond the connection parameters.
type Options struct {
	// RequestTimeout is the per-call deadline (0 selects the default).
	RequestTimeout time.Duration

	// RefreshTimeout bounds the post-handshake priming refresh.
	RefreshTimeout time.Duration

	Logger *log.Logger
}

// Client ties the lifecycle, the correlator and the cache together.
type Client struct {
	conn   *conn.Client
	cache  *state.Cache
	logger *log.Logger

	refreshTimeout time.Duration
}

// New builds a client for one device. The correlator is created here
// and lives as long as the client, so request ids are never reused even
// across reconnects.
func New(cfg conn.Config, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("device")
	}
	refreshTimeout := opts.RefreshTimeout
	if refreshTimeout == 0 {
		refreshTimeout = 30 * time.Second
	}

	corr := rpc.NewCorrelator(opts.RequestTimeout, logger.WithPrefix("rpc"))
	c := &Client{
		cache:          state.NewCache(),
		logger:         logger,
		refreshTimeout: refreshTimeout,
	}
	c.conn = conn.New(cfg, corr, logger.WithPrefix("conn"))
	c.conn.SetNotificationHandler(c.handleNotification)
	c.conn.SetReadyHandler(c.primeCache)
	return c
}

// Connect dials the device and arms the handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Close tears down the connection.
func (c *Client) Close() {
	c.conn.Close()
}

// SetDownHandler forwards connection-loss notifications; the external
// transport driver uses it to schedule reconnects.
func (c *Client) SetDownHandler(h func(err error)) {
	c.conn.SetDownHandler(h)
}

// Call invokes a named remote method and returns the response message.
// This is the single entry point for device commands; framing and
// correlation stay hidden behind it.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*wire.Message, error) {
	return c.conn.Call(ctx, method, params)
}

// Cache exposes read-only snapshots of the mirrored collections.
func (c *Client) Cache() *state.Cache {
	return c.cache
}

// OnCacheChanged registers a hook for "derived views are stale"
// signals.
func (c *Client) OnCacheChanged(fn func()) {
	c.cache.OnChange(fn)
}

// Connected reports whether a transport to the device exists, whether
// or not the handshake has completed on it yet.
func (c *Client) Connected() bool {
	return c.conn.State() != conn.Disconnected
}

// Ready reports whether the handshake has completed.
func (c *Client) Ready() bool {
	return c.conn.Ready()
}

// Status returns the operator-facing connection indicator.
func (c *Client) Status() conn.Status {
	return c.conn.Status()
}

// ProtocolVersion returns the negotiated version as a string, or ""
// before the first successful handshake.
func (c *Client) ProtocolVersion() string {
	v := c.conn.ProtocolVersion()
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// primeCache runs after every successful handshake. A failure here is
// logged but does not revert the handshake outcome.
func (c *Client) primeCache() {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()
	if err := c.RefreshAll(ctx); err != nil {
		c.logger.WithError(err).Warn("priming refresh failed; cache stays stale")
	}
}

// FireSnapshot recalls a stored snapshot on the device.
func (c *Client) FireSnapshot(ctx context.Context, snapshotID int) error {
	_, err := c.Call(ctx, MethodFireSnapshot, map[string]int{"snapshot_id": snapshotID})
	return err
}
