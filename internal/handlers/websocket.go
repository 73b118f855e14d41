package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"promo-kiosk-backend/internal/services"
)

const (
	MessageTypeView = "VIEW"
	MessageTypePing = "PING"
	MessageTypePong = "PONG"

	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// The kiosk page and the host are served from the kiosk machine itself.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// client is one websocket connection. Only writePump writes to conn.
type client struct {
	conn   *websocket.Conn
	send   chan any
	closed chan struct{}
	once   sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		send:   make(chan any, sendBuffer),
		closed: make(chan struct{}),
	}
}

// enqueue hands msg to the writer. It reports false when the client is gone.
func (cl *client) enqueue(ctx context.Context, msg any) bool {
	select {
	case cl.send <- msg:
		return true
	case <-cl.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// offer is enqueue without waiting.
func (cl *client) offer(msg any) bool {
	select {
	case cl.send <- msg:
		return true
	default:
		return false
	}
}

func (cl *client) close() {
	cl.once.Do(func() { close(cl.closed) })
}

func (cl *client) writePump() {
	defer cl.conn.Close()
	for {
		select {
		case <-cl.closed:
			cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(msg); err != nil {
				cl.close()
				return
			}
		}
	}
}

// ViewHub pushes kiosk views to every connected screen. It implements
// services.Broadcaster.
type ViewHub struct {
	views      func() services.KioskView
	logger     *slog.Logger
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	done       chan struct{}
}

func NewViewHub(views func() services.KioskView, logger *slog.Logger) *ViewHub {
	return &ViewHub{
		views:      views,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 100),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done.
func (hub *ViewHub) Run(ctx context.Context) {
	defer close(hub.done)
	for {
		select {
		case <-ctx.Done():
			for cl := range hub.clients {
				delete(hub.clients, cl)
				cl.close()
			}
			return

		case cl := <-hub.register:
			hub.clients[cl] = struct{}{}
			hub.logger.Debug("kiosk screen connected", "clients", len(hub.clients))

		case cl := <-hub.unregister:
			if _, ok := hub.clients[cl]; ok {
				delete(hub.clients, cl)
				cl.close()
				hub.logger.Debug("kiosk screen disconnected", "clients", len(hub.clients))
			}

		case msg := <-hub.broadcast:
			for cl := range hub.clients {
				if !cl.offer(msg) {
					// slow screen; it reconnects and gets a fresh view
					delete(hub.clients, cl)
					cl.close()
				}
			}
		}
	}
}

// BroadcastView queues view for every connected screen. Views are dropped
// when the queue is full since a newer one always follows.
func (hub *ViewHub) BroadcastView(view services.KioskView) {
	select {
	case hub.broadcast <- Message{Type: MessageTypeView, Data: view}:
	default:
		hub.logger.Warn("view broadcast queue full")
	}
}

// HandleWebSocket upgrades a kiosk screen connection and sends it the
// current view.
func (hub *ViewHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Error("failed to upgrade kiosk websocket", "error", err)
		return
	}

	cl := newClient(conn)
	go cl.writePump()
	defer cl.close()

	select {
	case hub.register <- cl:
	case <-hub.done:
		return
	}
	defer func() {
		select {
		case hub.unregister <- cl:
		case <-hub.done:
		}
	}()

	ctx := c.Request.Context()
	cl.enqueue(ctx, Message{Type: MessageTypeView, Data: hub.views()})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Warn("kiosk websocket error", "error", err)
			}
			return
		}

		if msg.Type == MessageTypePing {
			cl.enqueue(ctx, Message{Type: MessageTypePong, Data: gin.H{"timestamp": time.Now().Unix()}})
		}
	}
}
