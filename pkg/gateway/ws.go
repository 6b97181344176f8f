package gateway

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendDepth  = 64
)

// wsClient is one dashboard connection. Outbound traffic goes through
// sendCh so a slow client never blocks a broadcast.
type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     atomic.AddInt64(&s.nextWSID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, wsSendDepth),
		done:   make(chan struct{}),
	}
}

func (c *wsClient) send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		// Channel full, drop rather than stall the broadcaster
		c.server.logger.WithField("client", c.id).Warn("dropping gateway push (send queue full)")
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

// readPump drains inbound frames. The gateway push channel is one-way;
// inbound frames only keep the connection's read deadline alive.
func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithField("client", c.id).WithError(err).Debug("websocket read failed")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.WithField("client", c.id).WithError(err).Debug("websocket write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := s.newWSClient(conn)

	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()

	s.logger.WithField("client", client.id).Debug("websocket client connected")

	go client.writePump()

	// Seed the new client with current state so it does not have to
	// wait for the next change.
	client.send(pushMessage("notify_status", s.statusSnapshot()))

	client.readPump()
}

func (s *Server) removeClient(client *wsClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()

	s.logger.WithField("client", client.id).Debug("websocket client disconnected")
}

func pushMessage(method string, params any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
}

func (s *Server) broadcast(msg any) {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, client := range s.wsClients {
		client.send(msg)
	}
}

// broadcastWallChanged is registered as the device's cache hook.
func (s *Server) broadcastWallChanged() {
	cache := s.device.Cache()
	s.broadcast(pushMessage("notify_wall_changed", map[string]any{
		"displays":  len(cache.Displays()),
		"layouts":   len(cache.Layouts()),
		"snapshots": len(cache.Snapshots()),
	}))
}

// statusBroadcastLoop pushes connection status at 1 Hz so dashboards
// notice reconnects without polling.
func (s *Server) statusBroadcastLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for s.running.Load() {
		<-ticker.C
		s.broadcast(pushMessage("notify_status", s.statusSnapshot()))
	}
}
