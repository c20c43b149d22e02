package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"paygate/internal/handler"
	"paygate/internal/identity"
	"paygate/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler *handler.PaymentHandler
	WebhookHandler *handler.WebhookHandler
	Resolver       identity.Resolver
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	authRequired := middleware.AuthMiddleware(deps.Resolver)

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Payment routes.
		payments := v1.Group("/payments")
		{
			payments.POST("/create-intent", authRequired, deps.PaymentHandler.CreateIntent)
			payments.POST("/fee", authRequired, deps.PaymentHandler.CreateFeeIntent)
			payments.POST("/confirm/:intentId", authRequired, deps.PaymentHandler.Confirm)
			payments.GET("/status/:intentId", authRequired, deps.PaymentHandler.GetStatus)
			payments.GET("/history", authRequired, deps.PaymentHandler.GetHistory)
			payments.GET("/fee-paid/:periodId", authRequired, deps.PaymentHandler.HasPaidFee)
		}

		// Backend-to-backend eligibility check, no bearer token.
		internal := v1.Group("/internal")
		{
			internal.GET("/fee-paid/:studentId/:periodId", deps.PaymentHandler.HasPaidFeeDirect)
		}

		// Webhook routes. Authenticated by payload signature, not bearer
		// token.
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/processor", deps.WebhookHandler.HandleProcessorEvent)
		}
	}

	return router
}
