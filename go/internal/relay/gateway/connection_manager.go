package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// ConnectionManager owns every relay connection. Frames read from any
// connection are queued on a single inbound channel and handled one at a time
// by Start, so the cache and fan-out never run concurrently.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config ConnectionConfig

	inboundCh chan inboundFrame
	stopCh    chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool
	lastFrame atomic.Int64 // unix nanos of the last dispatched frame

	cache   *SnapshotCache
	mirror  UpdateMirror
	metrics *relayMetrics
}

// Connection represents a WebSocket connection to one browser tab or client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Role is empty until the client sends its snapshot request
	Role protocol.Role

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	InboundBuffer   int
	CheckOrigin     func(r *http.Request) bool
}

type inboundFrame struct {
	conn  *Connection
	frame []byte
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  8 << 20, // rosters carry face templates
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		SendBufferSize:  256,
		InboundBuffer:   1000,
		CheckOrigin: func(r *http.Request) bool {
			// Kiosks and admin tabs are served from arbitrary origins
			return true
		},
	}
}

// NewConnectionManager creates a connection manager backed by cache. mirror
// may be nil.
func NewConnectionManager(config ConnectionConfig, cache *SnapshotCache, mirror UpdateMirror, metrics *relayMetrics) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.InboundBuffer <= 0 {
		config.InboundBuffer = 1000
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		inboundCh: make(chan inboundFrame, config.InboundBuffer),
		stopCh:    make(chan struct{}),
		cache:     cache,
		mirror:    mirror,
		metrics:   metrics,
	}
}

// Start runs the dispatcher until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	cm.running.Store(true)
	defer func() {
		cm.running.Store(false)
		cm.stopOnce.Do(func() { close(cm.stopCh) })
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case in := <-cm.inboundCh:
			cm.lastFrame.Store(time.Now().UnixNano())
			cm.dispatch(in.conn, in.frame)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true
	cm.metrics.connectionOpened(conn.Role)

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager. Safe to call
// more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)
	cm.metrics.connectionClosed(conn.Role)

	log.Info().
		Str("connection_id", conn.ID).
		Str("role", roleLabel(conn.Role)).
		Msg("connection unregistered")
}

// setRole records the role a connection announced
func (cm *ConnectionManager) setRole(conn *Connection, role protocol.Role) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	cm.metrics.roleAnnounced(conn.Role, role)
	conn.Role = role
}

// sendTo queues data on every registered connection accepted by match.
// Connections whose buffer is full are closed. Returns the number of
// connections the frame was queued on.
func (cm *ConnectionManager) sendTo(data []byte, match func(*Connection) bool) int {
	var slow []*Connection
	sent := 0

	// Held for reading so unregisterConnection can't close a Send channel mid-send
	cm.mu.RLock()
	for conn := range cm.connections {
		if !match(conn) {
			continue
		}
		select {
		case conn.Send <- data:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.metrics.messageDropped("slow_consumer")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
	return sent
}

// CloseAll closes every open connection; their pumps unregister them.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}
}

// Running reports whether the dispatcher loop is active
func (cm *ConnectionManager) Running() bool {
	return cm.running.Load()
}

// ConnectionCount returns the number of registered connections
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// LastMessageTime returns when the dispatcher last took a frame, zero if never
func (cm *ConnectionManager) LastMessageTime() time.Time {
	nanos := cm.lastFrame.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roles := map[string]int{
		string(protocol.RolePublisher):  0,
		string(protocol.RoleSubscriber): 0,
		"unannounced":                   0,
	}
	for conn := range cm.connections {
		roles[roleLabel(conn.Role)]++
	}

	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"publishers":        roles[string(protocol.RolePublisher)],
		"subscribers":       roles[string(protocol.RoleSubscriber)],
		"unannounced":       roles["unannounced"],
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump queues every frame from the connection for the dispatcher
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		select {
		case c.Manager.inboundCh <- inboundFrame{conn: c, frame: message}:
		case <-c.Manager.stopCh:
			return
		}
	}
}
