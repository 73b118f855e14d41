package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"promo-kiosk-backend/internal/metrics"
	"promo-kiosk-backend/internal/middleware"
	"promo-kiosk-backend/internal/models"
	"promo-kiosk-backend/internal/services"
)

var ErrHostNotConnected = errors.New("mbox host is not connected")

// MboxHandler is the channel to the MBox host. Session data flows in, PIN
// requests flow out. It implements services.PlayerAuthBridge. A kiosk has a
// single host, so a new connection replaces the previous one.
type MboxHandler struct {
	session *services.SessionStore
	logger  *slog.Logger

	mu   sync.Mutex
	host *client
}

func NewMboxHandler(session *services.SessionStore, logger *slog.Logger) *MboxHandler {
	return &MboxHandler{session: session, logger: logger}
}

// RequestPlayerPin sends cmd to the connected host.
func (h *MboxHandler) RequestPlayerPin(ctx context.Context, cmd models.PlayerPinCommand) error {
	h.mu.Lock()
	host := h.host
	h.mu.Unlock()

	if host == nil {
		return ErrHostNotConnected
	}
	if !host.enqueue(ctx, cmd) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrHostNotConnected
	}
	return nil
}

// Connected reports whether a host channel is open.
func (h *MboxHandler) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.host != nil
}

func (h *MboxHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade host websocket", "error", err)
		return
	}

	cl := newClient(conn)
	go cl.writePump()

	h.mu.Lock()
	previous := h.host
	h.host = cl
	h.mu.Unlock()
	if previous != nil {
		previous.close()
	}
	metrics.HostConnections.Set(1)
	h.logger.Info("mbox host connected", "egm", c.GetString(middleware.ContextEgmCode))

	defer func() {
		cl.close()
		h.mu.Lock()
		if h.host == cl {
			h.host = nil
			metrics.HostConnections.Set(0)
		}
		h.mu.Unlock()
		h.logger.Info("mbox host disconnected")
	}()

	for {
		var msg models.MboxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("host websocket error", "error", err)
			}
			return
		}
		h.handleMessage(msg)
	}
}

func (h *MboxHandler) handleMessage(msg models.MboxMessage) {
	switch msg.MessageType {
	case models.MessageTypeMboxData:
		data := h.session.Update(msg)
		h.logger.Info("host session updated", "egm", data.EgmCode, "language", data.TwoLetterISOLanguageName)
	default:
		h.logger.Debug("ignoring host message", "type", msg.MessageType)
	}
}

// PostData accepts session data over plain HTTP, for hosts that push the
// initial context before opening the channel.
func (h *MboxHandler) PostData(c *gin.Context) {
	var msg models.MboxMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if msg.MessageType != "" && msg.MessageType != models.MessageTypeMboxData {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported message type"})
		return
	}

	data := h.session.Update(msg)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": data,
	})
}
