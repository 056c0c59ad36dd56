package router

import (
	"github.com/riwaai/riwa-pos-backend/internal/handlers"
	"github.com/riwaai/riwa-pos-backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupAuthRoutes sets up the authentication routes.
func SetupAuthRoutes(apiGroup *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	authRoutes := apiGroup.Group("/auth")
	{
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/refresh-token", authHandler.Refresh)

		authRequiredRoutes := authRoutes.Group("")
		authRequiredRoutes.Use(middleware.AuthMiddleware())
		{
			authRequiredRoutes.GET("/me", authHandler.Me)
		}
	}
}

// SetupOrderRoutes sets up the order routes, including the payment and
// delivery dispatch actions that act on a single order.
func SetupOrderRoutes(authenticatedGroup *gin.RouterGroup, orderHandler *handlers.OrderHandler, paymentHandler *handlers.PaymentHandler, deliveryHandler *handlers.DeliveryHandler) {
	orderRoutes := authenticatedGroup.Group("/orders")
	orderRoutes.Use(middleware.RoleAuthMiddleware("admin", "manager", "cashier"))
	{
		orderRoutes.POST("", orderHandler.CreateOrder)
		orderRoutes.GET("", orderHandler.GetOrders)
		orderRoutes.GET("/:id", orderHandler.GetOrderByID)
		orderRoutes.PATCH("/:id/status", orderHandler.UpdateOrderStatus)
		orderRoutes.POST("/:id/payment", paymentHandler.InitiatePayment)
		orderRoutes.POST("/:id/delivery", deliveryHandler.CreateDelivery)
	}
}

// SetupKDSRoutes sets up the kitchen display routes. Kitchen stations run
// with their own role but every staff role may watch the feed.
func SetupKDSRoutes(authenticatedGroup *gin.RouterGroup, kdsHandler *handlers.KDSHandler) {
	kdsRoutes := authenticatedGroup.Group("/kds")
	kdsRoutes.Use(middleware.RoleAuthMiddleware("admin", "manager", "cashier", "kitchen"))
	{
		kdsRoutes.GET("/orders", kdsHandler.ListActive)
		kdsRoutes.GET("/stream", kdsHandler.Stream)
	}
}

// SetupDeliveryRoutes sets up the courier job routes addressed by delivery
// code rather than by order.
func SetupDeliveryRoutes(authenticatedGroup *gin.RouterGroup, deliveryHandler *handlers.DeliveryHandler) {
	deliveryRoutes := authenticatedGroup.Group("/delivery")
	deliveryRoutes.Use(middleware.RoleAuthMiddleware("admin", "manager", "cashier"))
	{
		deliveryRoutes.GET("/:provider/:code", deliveryHandler.GetDeliveryStatus)
		deliveryRoutes.POST("/:provider/:code/cancel", deliveryHandler.CancelDelivery)
	}
}

// SetupIntegrationRoutes sets up the admin integration routes.
func SetupIntegrationRoutes(authenticatedGroup *gin.RouterGroup, integrationHandler *handlers.IntegrationHandler) {
	integrationRoutes := authenticatedGroup.Group("/admin/integrations")
	integrationRoutes.Use(middleware.RoleAuthMiddleware("admin", "manager"))
	{
		integrationRoutes.GET("", integrationHandler.ListIntegrations)
		integrationRoutes.POST("", integrationHandler.SaveIntegration)
		integrationRoutes.POST("/test", integrationHandler.TestIntegration)
	}
}

// SetupWebhookRoutes sets up the unauthenticated provider callback routes.
func SetupWebhookRoutes(apiGroup *gin.RouterGroup, webhookHandler *handlers.WebhookHandler) {
	webhookRoutes := apiGroup.Group("/webhooks")
	{
		webhookRoutes.POST("/payments/:provider", webhookHandler.PaymentWebhook)
		webhookRoutes.GET("/payments/:provider/callback", webhookHandler.PaymentCallback)
		webhookRoutes.POST("/delivery/:provider", webhookHandler.DeliveryWebhook)
	}
}
