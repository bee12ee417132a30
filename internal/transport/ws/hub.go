// Package ws streams run events to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Connection is one subscriber to a run's events.
type Connection struct {
	ID    string
	RunID string
	Conn  *websocket.Conn
	Send  chan outbound

	// seen holds event ids already written during backfill; only the
	// connection's writer touches it.
	seen map[string]bool
	mu   sync.Mutex
}

type outbound struct {
	eventID string
	data    []byte
}

type runMessage struct {
	runID string
	msg   outbound
}

// Hub fans pipeline events out to the connections subscribed to each run.
type Hub struct {
	connections map[string]*Connection
	// runs maps run_id to the set of subscribed connection ids
	runs map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan runMessage
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		runs:        make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan runMessage, 256),
		done:        make(chan struct{}),
		logger:      logger.Named("ws"),
	}
}

// Run is the hub's main loop. When ctx ends every connection's send
// channel is closed and Run returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				close(conn.Send)
				delete(h.connections, id)
			}
			h.runs = make(map[string]map[string]bool)
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.runs[conn.RunID] == nil {
				h.runs[conn.RunID] = make(map[string]bool)
			}
			h.runs[conn.RunID][conn.ID] = true
			h.mu.Unlock()
			h.logger.Debug("connection registered", zap.String("conn_id", conn.ID), zap.String("run_id", conn.RunID))

		case conn := <-h.unregister:
			h.remove(conn)

		case m := <-h.broadcast:
			h.mu.RLock()
			var slow []*Connection
			for connID := range h.runs[m.runID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- m.msg:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.logger.Warn("connection buffer full, closing", zap.String("conn_id", conn.ID))
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.runs[conn.RunID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.runs, conn.RunID)
		}
	}
	close(conn.Send)
	h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))
}

// NewConnection wraps ws as a subscriber of runID. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn, runID string) *Connection {
	return &Connection{
		ID:    uuid.New().String(),
		RunID: runID,
		Conn:  ws,
		Send:  make(chan outbound, 256),
		seen:  make(map[string]bool),
	}
}

// Register subscribes conn. It returns false once the hub has stopped.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish implements the pipeline notifier. It never blocks the pipeline:
// events are dropped with a warning when the hub is saturated or stopped.
func (h *Hub) Publish(runID string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to marshal event", zap.String("run_id", runID), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- runMessage{runID: runID, msg: outbound{eventID: event.EventID, data: data}}:
	case <-h.done:
	default:
		h.logger.Warn("event dropped, hub saturated", zap.String("run_id", runID), zap.String("event_id", event.EventID))
	}
}

// Subscribers returns how many connections follow runID.
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runs[runID])
}

// WriteMessage writes to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

func (c *Connection) Close() error {
	return c.Conn.Close()
}
