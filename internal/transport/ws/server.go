package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// backfillLimit bounds how many stored events a new subscriber replays.
const backfillLimit = 1000

// EventSource is the read side the stream needs.
type EventSource interface {
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)
}

// Server upgrades stream requests and pumps events to subscribers.
type Server struct {
	cfg      config.StreamConfig
	hub      *Hub
	source   EventSource
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewServer(cfg config.StreamConfig, h *Hub, source EventSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		hub:    h,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.Named("ws"),
	}
}

// HandleStream serves GET /v1/runs/:run_id/stream. Stored events after the
// optional after_ts are replayed first, then live events follow.
func (s *Server) HandleStream(c echo.Context) error {
	runID := c.Param("run_id")
	ctx := c.Request().Context()

	run, err := s.source.GetRun(ctx, runID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	var afterTs int64
	if v := c.QueryParam("after_ts"); v != "" {
		afterTs, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid after_ts"})
		}
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	conn := s.hub.NewConnection(ws, runID)
	if !s.hub.Register(conn) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return nil
	}

	// registered first so nothing published during the replay is missed
	if err := s.backfill(ctx, conn, afterTs); err != nil {
		s.logger.Warn("event backfill failed", zap.String("run_id", runID), zap.Error(err))
	}

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *Server) backfill(ctx context.Context, conn *Connection, afterTs int64) error {
	events, err := s.source.GetRunEvents(ctx, conn.RunID, afterTs, nil, backfillLimit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
		conn.seen[ev.EventID] = true
	}
	return nil
}

// readPump only services control frames; clients do not send commands.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if conn.seen[msg.eventID] {
				delete(conn.seen, msg.eventID)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				s.logger.Debug("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
