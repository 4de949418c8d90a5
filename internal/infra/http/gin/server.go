package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"stayhub/internal/infra/config"
	"stayhub/internal/infra/obs"
)

type BookingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Confirm(c *gin.Context)
	Complete(c *gin.Context)
	Cancel(c *gin.Context)
	Pay(c *gin.Context)
}

type PayoutHTTP interface {
	Schedule(c *gin.Context)
	Advance(c *gin.Context)
	Execute(c *gin.Context)
	Cancel(c *gin.Context)
}

type WebhookHTTP interface {
	Gateway(c *gin.Context)
	Reconcile(c *gin.Context)
}

type Handlers struct {
	Booking BookingHTTP
	Payout  PayoutHTTP
	Webhook WebhookHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Booking != nil {
		api.POST("/bookings", h.Booking.Create)
		api.GET("/bookings/:id", h.Booking.Get)
		api.POST("/bookings/:id/confirm", h.Booking.Confirm)
		api.POST("/bookings/:id/complete", h.Booking.Complete)
		api.POST("/bookings/:id/cancel", h.Booking.Cancel)
		api.POST("/bookings/:id/payment", h.Booking.Pay)
	}
	if h.Webhook != nil {
		api.POST("/payments/webhook", h.Webhook.Gateway)
		api.POST("/admin/payments/:reference/reconcile", h.Webhook.Reconcile)
	}
	if h.Payout != nil {
		admin := api.Group("/admin/payouts")
		admin.POST("/schedule", h.Payout.Schedule)
		admin.POST("/advance", h.Payout.Advance)
		admin.POST("/execute", h.Payout.Execute)
		admin.POST("/:id/cancel", h.Payout.Cancel)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
