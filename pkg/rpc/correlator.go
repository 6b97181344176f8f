// Package rpc tracks outstanding JSON-RPC calls: it assigns request
// ids, pairs inbound responses with their callers and expires calls
// whose deadline elapses without a response.
package rpc

import (
	"context"
	"sync"
	"time"

	"wallctl-go/pkg/errors"
	"wallctl-go/pkg/log"
	"wallctl-go/pkg/metrics"
	"wallctl-go/pkg/wire"
)

// DefaultRequestTimeout is the per-call deadline applied when no
// explicit timeout is configured. Device firmware is observed to answer
// well inside this window.
const DefaultRequestTimeout = 7 * time.Second

// Transport writes one serialized frame to the device socket.
type Transport interface {
	WriteFrame(data []byte) error
}

// Call is an outstanding request. It completes exactly once: with the
// matching response, with a timeout error, or with a connection-lost
// error when the correlator is failed wholesale.
type Call struct {
	ID     int64
	Method string

	once sync.Once
	done chan struct{}
	msg  *wire.Message
	err  error
}

func newCall(id int64, method string) *Call {
	return &Call{
		ID:     id,
		Method: method,
		done:   make(chan struct{}),
	}
}

func (c *Call) complete(msg *wire.Message, err error) {
	c.once.Do(func() {
		c.msg = msg
		c.err = err
		close(c.done)
	})
}

// Done returns a channel closed when the call completes.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call completes or ctx is cancelled. A cancelled
// context abandons the caller only; the call stays registered until its
// own deadline.
func (c *Call) Wait(ctx context.Context) (*wire.Message, error) {
	select {
	case <-c.done:
		return c.msg, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pendingCall struct {
	call  *Call
	timer *time.Timer
}

// Correlator owns the outstanding-call table. It lives for the whole
// process, across reconnects, so request ids are never reused.
type Correlator struct {
	timeout time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingCall
}

// NewCorrelator creates a correlator with the given per-call timeout.
// A zero timeout selects DefaultRequestTimeout.
func NewCorrelator(timeout time.Duration, logger *log.Logger) *Correlator {
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = log.GetLogger("rpc")
	}
	return &Correlator{
		timeout: timeout,
		logger:  logger,
		pending: make(map[int64]*pendingCall),
	}
}

// Send assigns the next request id, registers the call with its
// deadline and transmits the serialized frame. The id counter advances
// even when transmission fails, so ids stay strictly increasing.
func (c *Correlator) Send(t Transport, method string, params interface{}) (*Call, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	data, err := wire.Encode(wire.NewRequest(id, method, params))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRuntime, "encode request").SetMethod(method)
	}

	call := newCall(id, method)
	pc := &pendingCall{call: call}
	pc.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })

	c.mu.Lock()
	c.pending[id] = pc
	c.mu.Unlock()

	if err := t.WriteFrame(data); err != nil {
		c.remove(id)
		return nil, errors.TransportError("write", err).SetMethod(method)
	}

	metrics.Global().RPCSent.Inc()
	c.logger.Debug("sent id=%d method=%s", id, method)
	return call, nil
}

// HandleResponse resolves or rejects the call matching the response id.
// Responses with no matching call (late after timeout, or unsolicited)
// are dropped without touching any other outstanding call.
func (c *Correlator) HandleResponse(msg *wire.Message) {
	if msg.ID == nil {
		return
	}
	pc := c.remove(*msg.ID)
	if pc == nil {
		metrics.Global().RPCUnmatched.Inc()
		c.logger.Debug("dropping unmatched response id=%d", *msg.ID)
		return
	}

	if msg.Error != nil {
		metrics.Global().RPCProtocolErrors.Inc()
		pc.call.complete(nil, errors.ProtocolError(pc.call.Method, msg.Error.Message))
		return
	}
	pc.call.complete(msg, nil)
}

// FailAll rejects every outstanding call with err. Used when the
// connection drops so no caller is left waiting on a dead socket.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	calls := make([]*pendingCall, 0, len(c.pending))
	for id, pc := range c.pending {
		calls = append(calls, pc)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, pc := range calls {
		pc.timer.Stop()
		pc.call.complete(nil, err)
	}
	if len(calls) > 0 {
		c.logger.Warn("failed %d outstanding calls: %v", len(calls), err)
	}
}

// PendingCount returns the number of outstanding calls.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(id int64) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	pc.timer.Stop()
	return pc
}

func (c *Correlator) expire(id int64) {
	pc := c.remove(id)
	if pc == nil {
		return
	}
	metrics.Global().RPCTimeouts.Inc()
	c.logger.Warn("call id=%d method=%s timed out", id, pc.call.Method)
	pc.call.complete(nil, errors.TimeoutError(pc.call.Method))
}
