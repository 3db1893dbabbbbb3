// Package ws exposes sprint event rooms over WebSocket.
package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/hub"
)

const (
	sendBufferSize = 256
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
)

// Server upgrades HTTP connections and registers them as room subscribers.
type Server struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewServer creates a WebSocket server over the hub.
func NewServer(h *hub.Hub) *Server {
	return &Server{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the subscription endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/sprints/:sprint_id/ws", s.HandleSubscribe)
}

// connection adapts a websocket to hub.Subscriber. Send never blocks: a
// full buffer is an error, which makes the hub drop the subscriber.
type connection struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (c *connection) ID() string { return c.id }

func (c *connection) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return hub.ErrSlowSubscriber
	}
}

// HandleSubscribe upgrades the connection and joins the sprint room.
func (s *Server) HandleSubscribe(c echo.Context) error {
	room := c.Param("sprint_id")
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: failed to upgrade websocket: %v", err)
		return err
	}

	conn := &connection{
		id:   uuid.New().String(),
		conn: ws,
		send: make(chan []byte, sendBufferSize),
	}
	s.hub.Subscribe(room, conn)

	go s.writePump(room, conn)
	go s.readPump(room, conn)
	return nil
}

func (s *Server) readPump(room string, conn *connection) {
	defer func() {
		s.hub.Unsubscribe(room, conn)
		conn.conn.Close()
	}()

	conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		// Subscribers are read-only; inbound frames only keep the
		// connection alive.
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: websocket error in sprint %s: %v", room, err)
			}
			return
		}
	}
}

func (s *Server) writePump(room string, conn *connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WARN: failed to write to subscriber in sprint %s: %v", room, err)
				return
			}
		case <-ticker.C:
			conn.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
