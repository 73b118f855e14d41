package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"promo-kiosk-backend/internal/services"
)

// AttemptResetter forgets the PIN attempts of a player.
type AttemptResetter interface {
	ClearRateLimit(ctx context.Context, playerID, action string) error
}

type KioskHandler struct {
	ctrl     *services.Controller
	session  *services.SessionStore
	attempts AttemptResetter
	logger   *slog.Logger
}

func NewKioskHandler(ctrl *services.Controller, session *services.SessionStore, attempts AttemptResetter, logger *slog.Logger) *KioskHandler {
	return &KioskHandler{
		ctrl:     ctrl,
		session:  session,
		attempts: attempts,
		logger:   logger,
	}
}

type digitRequest struct {
	Key string `json:"key" binding:"required"`
}

// Resume is where the host lands the page after PIN entry. The query string
// of the redirect URL is forwarded as is.
func (h *KioskHandler) Resume(c *gin.Context) {
	// redemption must not stop halfway because the page navigated away
	ctx := context.WithoutCancel(c.Request.Context())

	result, resumed := h.ctrl.HandleParams(ctx, c.Request.URL.Query())
	if resumed && result.IsSuccess && h.attempts != nil {
		playerID := h.session.Snapshot().OwnerID
		if err := h.attempts.ClearRateLimit(ctx, playerID, services.ActionPinAttempt); err != nil {
			h.logger.Warn("failed to reset pin attempts", "error", err)
		}
	}

	body := gin.H{
		"resumed": resumed,
		"view":    h.ctrl.View(),
	}
	if resumed {
		body["result"] = result
	}
	c.JSON(http.StatusOK, body)
}

func (h *KioskHandler) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.View())
}

func (h *KioskHandler) Reload(c *gin.Context) {
	status := h.ctrl.LoadPlayerData(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"isCustomer": status.IsCustomer,
		"view":       h.ctrl.View(),
	})
}

func (h *KioskHandler) SelectPromotion(c *gin.Context) {
	promoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || promoID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid promotion id"})
		return
	}

	err = h.ctrl.SelectPromotion(context.WithoutCancel(c.Request.Context()), promoID)
	switch {
	case errors.Is(err, services.ErrUnknownPromotion):
		c.JSON(http.StatusNotFound, gin.H{"error": "Promotion not found"})
		return
	case err != nil:
		h.logger.Error("failed to select promotion", "promo_id", promoID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to request authentication"})
		return
	}

	c.JSON(http.StatusAccepted, h.ctrl.View())
}

func (h *KioskHandler) ShowEnterCode(c *gin.Context) {
	done, err := h.ctrl.ShowEnterCode()
	if errors.Is(err, services.ErrManualCodeDisabled) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Manual code input is disabled"})
		return
	}

	select {
	case <-done:
	case <-c.Request.Context().Done():
		return
	}
	c.JSON(http.StatusOK, h.ctrl.View())
}

func (h *KioskHandler) HideEnterCode(c *gin.Context) {
	select {
	case <-h.ctrl.HideEnterCode():
	case <-c.Request.Context().Done():
		return
	}
	c.JSON(http.StatusOK, h.ctrl.View())
}

func (h *KioskHandler) AppendDigit(c *gin.Context) {
	var req digitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if err := h.ctrl.AppendDigit(req.Key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.ctrl.View())
}

func (h *KioskHandler) Backspace(c *gin.Context) {
	h.ctrl.Backspace()
	c.JSON(http.StatusOK, h.ctrl.View())
}

func (h *KioskHandler) ClearCode(c *gin.Context) {
	h.ctrl.ClearCode()
	c.JSON(http.StatusOK, h.ctrl.View())
}

func (h *KioskHandler) SubmitCode(c *gin.Context) {
	err := h.ctrl.SubmitCode(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, services.ErrInvalidVoucherCode):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid voucher code"})
		return
	case err != nil:
		h.logger.Error("failed to submit voucher code", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to request authentication"})
		return
	}

	c.JSON(http.StatusAccepted, h.ctrl.View())
}

func (h *KioskHandler) CloseConfirmation(c *gin.Context) {
	h.ctrl.CloseConfirmation()
	c.JSON(http.StatusOK, h.ctrl.View())
}
