package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promo-kiosk-backend/internal/metrics"
	"promo-kiosk-backend/internal/middleware"
)

// RouterDeps lists what the HTTP surface is built from.
type RouterDeps struct {
	Kiosk       *KioskHandler
	Views       *ViewHub
	Mbox        *MboxHandler
	Health      *HealthHandler
	HostAuth    middleware.HostTokenValidator
	Limiter     middleware.RateLimiter
	Session     middleware.SessionSource
	PinAttempts int
	Production  bool
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(metrics.Middleware())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", d.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pinLimit := middleware.PinAttemptLimit(d.Limiter, d.Session, d.PinAttempts)

	kiosk := router.Group("/kiosk")
	{
		kiosk.GET("", d.Kiosk.Resume)
		kiosk.GET("/", d.Kiosk.Resume)
		kiosk.GET("/view", d.Kiosk.GetView)
		kiosk.GET("/ws", d.Views.HandleWebSocket)
		kiosk.POST("/reload", d.Kiosk.Reload)
		kiosk.POST("/promotions/:id/select", pinLimit, d.Kiosk.SelectPromotion)

		code := kiosk.Group("/code")
		{
			code.POST("/show", d.Kiosk.ShowEnterCode)
			code.POST("/hide", d.Kiosk.HideEnterCode)
		}

		pin := kiosk.Group("/pin")
		{
			pin.POST("/digit", d.Kiosk.AppendDigit)
			pin.POST("/backspace", d.Kiosk.Backspace)
			pin.POST("/clear", d.Kiosk.ClearCode)
			pin.POST("/submit", pinLimit, d.Kiosk.SubmitCode)
		}

		kiosk.POST("/confirmation/close", d.Kiosk.CloseConfirmation)
	}

	host := router.Group("/mbox")
	host.Use(middleware.HostAuth(d.HostAuth))
	{
		host.POST("/data", d.Mbox.PostData)
		host.GET("/ws", d.Mbox.HandleWebSocket)
	}

	return router
}
