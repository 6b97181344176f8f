package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallctl-go/pkg/conn"
	"wallctl-go/pkg/state"
)

type fakeWall struct {
	mu     sync.Mutex
	cache  *state.Cache
	status conn.Status
	fired  []int
}

func newFakeWall() *fakeWall {
	return &fakeWall{cache: state.NewCache(), status: conn.StatusOk}
}

func (f *fakeWall) Status() conn.Status      { return f.status }
func (f *fakeWall) ProtocolVersion() string  { return "2" }
func (f *fakeWall) Ready() bool              { return f.status == conn.StatusOk }
func (f *fakeWall) Cache() *state.Cache      { return f.cache }
func (f *fakeWall) OnCacheChanged(fn func()) { f.cache.OnChange(fn) }

func (f *fakeWall) FireSnapshot(ctx context.Context, snapshotID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, snapshotID)
	return nil
}

func newTestGateway(t *testing.T) (*fakeWall, *httptest.Server) {
	t.Helper()
	wall := newFakeWall()
	gw := New(Config{Device: wall})
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { gw.Stop() })
	return wall, srv
}

func getResult(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Result
}

func TestStatusEndpoint(t *testing.T) {
	_, srv := newTestGateway(t)

	result := getResult(t, srv.URL+"/status")
	assert.Equal(t, "Ok", result["status"])
	assert.Equal(t, "2", result["protocol_version"])
	assert.Equal(t, true, result["ready"])
}

func TestDisplaysIncludeWindowsAndInputs(t *testing.T) {
	wall, srv := newTestGateway(t)
	wall.cache.ReplaceAll([]state.Display{{ID: 1, Name: "Main"}}, nil, nil)
	wall.cache.SetDisplayIO(1,
		[]state.Window{{ID: 10, Name: "Cam A"}},
		[]state.Input{{ID: 20, Name: "SDI 1"}})

	result := getResult(t, srv.URL+"/wall/displays")
	displays := result["displays"].([]any)
	require.Len(t, displays, 1)

	d := displays[0].(map[string]any)
	assert.Equal(t, "Main", d["name"])
	assert.Len(t, d["windows"].([]any), 1)
	assert.Len(t, d["inputs"].([]any), 1)
}

func TestFireSnapshotEndpoint(t *testing.T) {
	wall, srv := newTestGateway(t)

	resp, err := http.Post(srv.URL+"/wall/snapshots/fire", "application/json",
		strings.NewReader(`{"snapshot_id":5}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	wall.mu.Lock()
	defer wall.mu.Unlock()
	assert.Equal(t, []int{5}, wall.fired)
}

func TestFireSnapshotRequiresID(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Post(srv.URL+"/wall/snapshots/fire", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFireSnapshotRejectsGet(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/wall/snapshots/fire")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketPushOnCacheChange(t *testing.T) {
	wall, srv := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	// First frame is the seeded status push
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var first map[string]any
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, "notify_status", first["method"])

	wall.cache.UpsertSnapshot(state.Snapshot{ID: 7, Name: "Intermission"})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var msg map[string]any
		ws.SetReadDeadline(deadline)
		require.NoError(t, ws.ReadJSON(&msg))
		if msg["method"] == "notify_wall_changed" {
			params := msg["params"].(map[string]any)
			assert.Equal(t, float64(1), params["snapshots"])
			return
		}
	}
	t.Fatal("never received notify_wall_changed")
}
