package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"clientportal/config"
	"clientportal/middleware"
	"clientportal/routes"
	"clientportal/utils"
	"clientportal/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "PORTAL: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Error reporting (no-op with an empty DSN)
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         config.AppConfig.SentryDSN,
		Environment: config.AppConfig.Environment,
	}); err != nil {
		logger.Printf("Sentry init failed: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Setup routes
	leadController := routes.SetupRoutes(app, config.DB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background provider sync for all connected tenants
	syncWorker := worker.NewSyncWorker(config.DB, log.New(os.Stdout, "SYNC: ", log.LstdFlags))
	go syncWorker.Start(ctx, leadController)

	// Retention redaction and reminder digests
	reminderMailer := utils.NewReminderMailer(config.DB)
	retentionWorker := worker.NewRetentionWorker(config.DB, reminderMailer, log.New(os.Stdout, "RETENTION: ", log.LstdFlags))
	go retentionWorker.Start(ctx)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
