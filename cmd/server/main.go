package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/riwaai/riwa-pos-backend/internal/database"
	"github.com/riwaai/riwa-pos-backend/internal/fanout"
	"github.com/riwaai/riwa-pos-backend/internal/router"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize Logger
	utils.InitLogger()

	// Load database configuration from environment variables
	dbHost := utils.Getenv("DB_HOST", "localhost")
	dbPort := utils.Getenv("DB_PORT", "5432")
	dbUser := utils.Getenv("DB_USER", "riwa_pos_user")
	dbPassword := utils.Getenv("DB_PASSWORD", "riwa_pos_password")
	dbName := utils.Getenv("DB_NAME", "riwa_pos_db")
	dbSSLMode := utils.Getenv("DB_SSLMODE", "disable")
	dbSchemaPath := utils.Getenv("DB_SCHEMA_PATH", "")

	if err := database.InitDB(dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode, dbSchemaPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Order-changed fanout. With RABBITMQ_URL set, events relay through an
	// exchange so every API instance's SSE subscribers see them; without it
	// the in-process hub alone serves single-instance deployments.
	hub := fanout.NewHub()
	var publisher fanout.Publisher = hub
	if amqpURL := os.Getenv("RABBITMQ_URL"); amqpURL != "" {
		bridge, err := fanout.NewBridge(context.Background(), amqpURL, hub)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer bridge.Close()
		publisher = bridge
	}

	engine := gin.Default()

	// Add GinLogger middleware for request logging
	engine.Use(utils.GinLogger())

	// CORS configuration
	corsAllowedOriginsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	var allowedOrigins []string
	if corsAllowedOriginsEnv != "" {
		allowedOrigins = strings.Split(corsAllowedOriginsEnv, ",")
	} else {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"} // Default origins
	}

	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	config.AllowCredentials = true
	engine.Use(cors.New(config))

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	port := utils.Getenv("PORT", "8080")

	// Setup all application routes
	router.Setup(engine, router.Config{
		DB:            database.GetDB(),
		Hub:           hub,
		Publisher:     publisher,
		PublicBaseURL: utils.Getenv("PUBLIC_BASE_URL", "http://localhost:"+port),
	})

	utils.LogInfo("Server starting", map[string]interface{}{"port": port})

	if err := engine.Run(":" + port); err != nil {
		utils.LogError(err, "Failed to start server")
		log.Fatalf("Failed to start server: %v", err)
	}
}
