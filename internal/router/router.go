package router

import (
	"database/sql"

	"github.com/riwaai/riwa-pos-backend/internal/delivery"
	"github.com/riwaai/riwa-pos-backend/internal/fanout"
	"github.com/riwaai/riwa-pos-backend/internal/handlers"
	"github.com/riwaai/riwa-pos-backend/internal/middleware"
	"github.com/riwaai/riwa-pos-backend/internal/payments"
	"github.com/riwaai/riwa-pos-backend/internal/repositories"
	"github.com/riwaai/riwa-pos-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// Config carries the dependencies the router wires together.
type Config struct {
	DB            *sql.DB
	Hub           *fanout.Hub
	Publisher     fanout.Publisher
	PublicBaseURL string
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, cfg Config) {
	// Initialize Repositories
	orderRepo := repositories.NewOrderRepository(cfg.DB)
	integrationRepo := repositories.NewIntegrationRepository(cfg.DB)
	refRepo := repositories.NewReferenceRepository(cfg.DB)
	userRepo := repositories.NewUserRepository(cfg.DB)

	// Provider adapters. New gateways and couriers register here.
	providerClient := payments.NewHTTPClient(0)
	paymentRegistry := payments.NewRegistry(
		payments.NewMyFatoorahAdapter(providerClient, cfg.PublicBaseURL),
		payments.NewUPaymentsAdapter(providerClient, cfg.PublicBaseURL),
	)
	deliveryRegistry := delivery.NewRegistry(
		delivery.NewArmadaAdapter(providerClient),
	)

	// Initialize Services
	authService := services.NewAuthService(userRepo)
	orderService := services.NewOrderService(orderRepo, cfg.Publisher, cfg.DB)
	integrationService := services.NewIntegrationService(integrationRepo, paymentRegistry, deliveryRegistry, cfg.DB)
	paymentService := services.NewPaymentService(orderRepo, refRepo, integrationService, paymentRegistry, cfg.Publisher, cfg.DB)
	deliveryService := services.NewDeliveryService(orderRepo, refRepo, integrationService, deliveryRegistry, cfg.Publisher, cfg.DB)

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(authService)
	orderHandler := handlers.NewOrderHandler(orderService)
	kdsHandler := handlers.NewKDSHandler(orderService, cfg.Hub)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	deliveryHandler := handlers.NewDeliveryHandler(deliveryService)
	integrationHandler := handlers.NewIntegrationHandler(integrationService)
	webhookHandler := handlers.NewWebhookHandler(paymentService, deliveryService)

	apiV1 := engine.Group("/api/v1")

	SetupAuthRoutes(apiV1, authHandler)

	// Provider callbacks are authenticated by signature or shared key inside
	// the services, never by JWT.
	SetupWebhookRoutes(apiV1, webhookHandler)

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	{
		SetupOrderRoutes(authenticated, orderHandler, paymentHandler, deliveryHandler)
		SetupKDSRoutes(authenticated, kdsHandler)
		SetupDeliveryRoutes(authenticated, deliveryHandler)
		SetupIntegrationRoutes(authenticated, integrationHandler)
	}
}
