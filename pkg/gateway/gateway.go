// Package gateway exposes the controller's view of the wall over HTTP
// and WebSocket so dashboards can observe the device without speaking
// its TCP protocol themselves.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"wallctl-go/pkg/conn"
	"wallctl-go/pkg/errors"
	"wallctl-go/pkg/log"
	"wallctl-go/pkg/state"
)

// Device is the surface of the device client the gateway consumes.
type Device interface {
	Status() conn.Status
	ProtocolVersion() string
	Ready() bool
	Cache() *state.Cache
	OnCacheChanged(fn func())
	FireSnapshot(ctx context.Context, snapshotID int) error
}

// Config holds gateway configuration.
type Config struct {
	// HTTP address to listen on (e.g., ":7020")
	Addr string

	Device Device
	Logger *log.Logger
}

// Server serves the REST endpoints and pushes change notifications to
// WebSocket clients.
type Server struct {
	device Device
	logger *log.Logger

	httpServer *http.Server
	addr       string

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*wsClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	running   atomic.Bool
	startTime time.Time
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger("gateway")
	}

	s := &Server{
		device:    cfg.Device,
		logger:    logger,
		addr:      cfg.Addr,
		wsClients: make(map[int64]*wsClient),
		startTime: time.Now(),
	}

	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Dashboards live on other origins
		},
	}

	if cfg.Device != nil {
		cfg.Device.OnCacheChanged(s.broadcastWallChanged)
	}

	return s
}

// Handler builds the route table. Exposed separately from Start so
// tests can mount it on httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/wall/displays", s.handleDisplays)
	mux.HandleFunc("/wall/layouts", s.handleLayouts)
	mux.HandleFunc("/wall/snapshots", s.handleSnapshots)
	mux.HandleFunc("/wall/snapshots/fire", s.handleFireSnapshot)
	mux.HandleFunc("/websocket", s.handleWebSocket)

	return s.corsMiddleware(mux)
}

// Start serves until the listener is closed.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.running.Store(true)
	s.logger.WithField("addr", s.addr).Info("gateway listening")

	go s.statusBroadcastLoop()

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return errors.GatewayError("listen", err)
	}
	return nil
}

// Stop closes the listener and disconnects all WebSocket clients.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.close()
	}
	s.wsClients = make(map[int64]*wsClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

type statusPayload struct {
	Status          string  `json:"status"`
	ProtocolVersion string  `json:"protocol_version,omitempty"`
	Ready           bool    `json:"ready"`
	Uptime          float64 `json:"uptime"`
}

func (s *Server) statusSnapshot() statusPayload {
	p := statusPayload{
		Status: conn.StatusDisconnected.String(),
		Uptime: time.Since(s.startTime).Seconds(),
	}
	if s.device != nil {
		p.Status = s.device.Status().String()
		p.ProtocolVersion = s.device.ProtocolVersion()
		p.Ready = s.device.Ready()
	}
	return p
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{"result": s.statusSnapshot()})
}

// displayView is a display together with its window and input sources.
type displayView struct {
	state.Display
	Windows []state.Window `json:"windows"`
	Inputs  []state.Input  `json:"inputs"`
}

func (s *Server) handleDisplays(w http.ResponseWriter, r *http.Request) {
	cache := s.device.Cache()
	displays := cache.Displays()

	views := make([]displayView, 0, len(displays))
	for _, d := range displays {
		views = append(views, displayView{
			Display: d,
			Windows: cache.Windows(d.ID),
			Inputs:  cache.Inputs(d.ID),
		})
	}
	s.writeJSON(w, map[string]any{"result": map[string]any{"displays": views}})
}

func (s *Server) handleLayouts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{"result": map[string]any{
		"layouts": s.device.Cache().Layouts(),
	}})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{"result": map[string]any{
		"snapshots": s.device.Cache().Snapshots(),
	}})
}

func (s *Server) handleFireSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params struct {
		SnapshotID *int `json:"snapshot_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil || params.SnapshotID == nil {
		s.writeError(w, http.StatusBadRequest, "missing 'snapshot_id' parameter")
		return
	}

	if err := s.device.FireSnapshot(r.Context(), *params.SnapshotID); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]any{"result": map[string]any{
		"snapshot_id": *params.SnapshotID,
	}})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
