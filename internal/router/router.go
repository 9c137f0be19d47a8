package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/csschan/unitpay-sub001/internal/app"
	"github.com/csschan/unitpay-sub001/internal/config"
	"github.com/csschan/unitpay-sub001/internal/handlers"
	"github.com/csschan/unitpay-sub001/internal/middleware"
)

// corsMiddleware applies the configured CORS policy. An empty allowlist
// means allow-all.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigins := []string{"*"}
		allowCredentials := true
		maxAge := 3600
		if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if strings.TrimSpace(allowed) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SetupRouter wires all HTTP routes against the service container.
func SetupRouter(container *app.ServiceContainer) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	logger := logrus.New()

	var allowedIPs []string
	if config.AppConfig != nil {
		allowedIPs = config.AppConfig.Admin.AllowedIPs
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)
	authMW := middleware.NewAuthMiddleware(logger)
	adminMW := middleware.NewAdminAuthMiddleware(logger)

	healthHandler := handlers.NewHealthHandler(container.DB)
	authHandler := handlers.NewAuthHandler()
	adminAuthHandler := handlers.NewAdminAuthHandler()
	intentHandler := handlers.NewPaymentIntentHandler(container.ClaimCoordinator, container.PaymentIntentRepo, logger)
	lpHandler := handlers.NewLPHandler(container.LPRepo, container.PaymentIntentRepo, container.ClaimCoordinator, container.LPMatchingService, logger)
	settlementHandler := handlers.NewSettlementHandler(container.SettlementQueue, logger)
	wsHandler := handlers.NewWebSocketHandler(container.WebSocketPushService)

	// ============ Health & Metrics ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ WebSocket ============
	r.GET("/ws", wsHandler.HandleWebSocket)

	// ============ API Routes ============
	api := r.Group("/api")
	{
		// Auth
		api.GET("/auth/nonce", authHandler.GenerateNonceHandler)
		api.POST("/auth/login", authHandler.AuthenticateHandler)
		api.POST("/auth/admin/login", localhostOnly.Restrict(), adminAuthHandler.AdminLoginHandler)
		api.POST("/auth/admin/totp-secret", localhostOnly.Restrict(), adminAuthHandler.GenerateTOTPSecretHandler)

		// Payment intents
		api.POST("/payment-intent", intentHandler.CreatePaymentIntent)
		api.GET("/payment-intent/:id", intentHandler.GetPaymentIntent)
		api.PUT("/payment-intent/:id/cancel", intentHandler.CancelPaymentIntent)
		api.GET("/payment-intents/user/:address", intentHandler.GetUserPaymentIntents)
		api.GET("/payment-intents/lp/:address", intentHandler.GetLPPaymentIntents)
		api.POST("/payment-intents/:id/confirm", intentHandler.ConfirmPaymentIntent)

		// LP management & task pool
		lp := api.Group("/lp")
		{
			lp.POST("/register", lpHandler.RegisterLP)
			lp.PUT("/quota", adminMW.RequireAdminAuth(), lpHandler.UpdateQuota)
			lp.GET("/available", lpHandler.GetAvailableLPs)
			lp.GET("/task-pool", lpHandler.GetTaskPool)
			lp.POST("/task/:id/claim", lpHandler.ClaimTask)
			lp.POST("/task/:id/mark-paid", lpHandler.MarkTaskPaid)
			lp.GET("/:address", lpHandler.GetLP)
		}

		// Settlement
		settlement := api.Group("/settlement", authMW.OptionalAuth())
		{
			settlement.POST("/start", settlementHandler.StartSettlement)
			settlement.GET("/:id/status", settlementHandler.GetSettlementStatus)
		}
	}

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "Endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api endpoints for available APIs",
		})
	})

	return r
}
