package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walerr "wallctl-go/pkg/errors"
	"wallctl-go/pkg/wire"
)

// fakeTransport records frames written by the correlator.
type fakeTransport struct {
	mu     sync.Mutex
	frames []wire.Request
	err    error
}

func (f *fakeTransport) WriteFrame(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var req wire.Request
	if err := json.Unmarshal(data[:len(data)-2], &req); err != nil {
		return err
	}
	f.frames = append(f.frames, req)
	return nil
}

func (f *fakeTransport) sent() []wire.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Request(nil), f.frames...)
}

func respond(t *testing.T, c *Correlator, frame string) {
	t.Helper()
	msg, err := wire.DecodeMessage([]byte(frame))
	require.NoError(t, err)
	c.HandleResponse(msg)
}

func TestSendAssignsIncreasingIDs(t *testing.T) {
	c := NewCorrelator(time.Second, nil)
	tp := &fakeTransport{}

	call1, err := c.Send(tp, "list_displays", nil)
	require.NoError(t, err)
	call2, err := c.Send(tp, "list_layouts", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), call1.ID)
	assert.Equal(t, int64(2), call2.ID)

	frames := tp.sent()
	require.Len(t, frames, 2)
	assert.Equal(t, "2.0", frames[0].JSONRPC)
	assert.Equal(t, int64(1), frames[0].ID)
	assert.Equal(t, "list_displays", frames[0].Method)
}

func TestIDsAdvancePastWriteFailure(t *testing.T) {
	c := NewCorrelator(time.Second, nil)

	broken := &fakeTransport{err: errors.New("socket closed")}
	_, err := c.Send(broken, "fire_snapshot", nil)
	require.Error(t, err)
	assert.True(t, walerr.Is(err, walerr.ErrTransport))
	assert.Equal(t, 0, c.PendingCount())

	// The failed id is burned, never reused
	call, err := c.Send(&fakeTransport{}, "fire_snapshot", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), call.ID)
}

func TestResolveMatchingResponse(t *testing.T) {
	c := NewCorrelator(time.Second, nil)
	tp := &fakeTransport{}

	call, err := c.Send(tp, "list_displays", nil)
	require.NoError(t, err)

	respond(t, c, `{"id":1,"result":{"displays":[]}}`)

	msg, err := call.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, int64(1), *msg.ID)
	assert.Equal(t, 0, c.PendingCount())
}

func TestRejectOnServerError(t *testing.T) {
	c := NewCorrelator(time.Second, nil)
	tp := &fakeTransport{}

	call, err := c.Send(tp, "fire_snapshot", map[string]int{"snapshot_id": 99})
	require.NoError(t, err)

	respond(t, c, `{"id":1,"error":{"message":"no such snapshot"}}`)

	_, err = call.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, walerr.Is(err, walerr.ErrRPCProtocol))
	assert.Contains(t, err.Error(), "fire_snapshot")
	assert.Contains(t, err.Error(), "no such snapshot")
}

func TestRejectOnServerErrorWithoutMessage(t *testing.T) {
	c := NewCorrelator(time.Second, nil)
	tp := &fakeTransport{}

	call, err := c.Send(tp, "fire_snapshot", nil)
	require.NoError(t, err)

	respond(t, c, `{"id":1,"error":{}}`)

	_, err = call.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error")
}

func TestUnmatchedResponseDropped(t *testing.T) {
	c := NewCorrelator(time.Second, nil)
	tp := &fakeTransport{}

	call, err := c.Send(tp, "list_inputs", nil)
	require.NoError(t, err)

	// Response for an id never issued must not touch the pending call
	respond(t, c, `{"id":777,"result":{}}`)
	assert.Equal(t, 1, c.PendingCount())

	respond(t, c, `{"id":1,"result":{}}`)
	_, err = call.Wait(context.Background())
	assert.NoError(t, err)
}

func TestTimeoutRejectsAndLateResponseIsDropped(t *testing.T) {
	c := NewCorrelator(20*time.Millisecond, nil)
	tp := &fakeTransport{}

	call, err := c.Send(tp, "list_windows", map[string]int{"display_id": 1})
	require.NoError(t, err)

	_, err = call.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, walerr.Is(err, walerr.ErrRPCTimeout))
	assert.Contains(t, err.Error(), "list_windows")
	assert.Equal(t, 0, c.PendingCount())

	// The late response finds no pending call and is discarded
	respond(t, c, `{"id":1,"result":{"windows":[]}}`)
	assert.Equal(t, 0, c.PendingCount())
}

func TestTimeoutScopedToSingleCall(t *testing.T) {
	c := NewCorrelator(30*time.Millisecond, nil)
	tp := &fakeTransport{}

	slow, err := c.Send(tp, "slow_method", nil)
	require.NoError(t, err)
	fast, err := c.Send(tp, "fast_method", nil)
	require.NoError(t, err)

	respond(t, c, `{"id":2,"result":{}}`)
	_, err = fast.Wait(context.Background())
	assert.NoError(t, err)

	_, err = slow.Wait(context.Background())
	assert.True(t, walerr.Is(err, walerr.ErrRPCTimeout))
}

func TestFailAllRejectsOutstanding(t *testing.T) {
	c := NewCorrelator(time.Second, nil)
	tp := &fakeTransport{}

	call1, err := c.Send(tp, "list_displays", nil)
	require.NoError(t, err)
	call2, err := c.Send(tp, "list_layouts", nil)
	require.NoError(t, err)

	c.FailAll(walerr.ConnectionLostError())

	for _, call := range []*Call{call1, call2} {
		_, err := call.Wait(context.Background())
		require.Error(t, err)
		assert.True(t, walerr.Is(err, walerr.ErrTransport))
		assert.Contains(t, err.Error(), "connection lost")
	}
	assert.Equal(t, 0, c.PendingCount())
}

func TestWaitHonorsContext(t *testing.T) {
	c := NewCorrelator(time.Minute, nil)
	tp := &fakeTransport{}

	call, err := c.Send(tp, "list_displays", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = call.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The call itself is still pending; only the waiter gave up
	assert.Equal(t, 1, c.PendingCount())
}
