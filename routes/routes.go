package routes

import (
	"log"
	"os"

	controller "clientportal/controllers"
	"clientportal/middleware"
	"clientportal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// SetupAPIRoutes wires every authenticated endpoint under /api/v1 and
// returns the lead controller so the background workers can reuse it.
func SetupAPIRoutes(app *fiber.App, db *gorm.DB) *controller.LeadController {
	// Initialize controllers with their respective loggers
	leadLogger := log.New(os.Stdout, "LEAD: ", log.Ldate|log.Ltime|log.Lshortfile)
	journeyLogger := log.New(os.Stdout, "JOURNEY: ", log.LstdFlags)
	agreementLogger := log.New(os.Stdout, "AGREEMENT: ", log.LstdFlags)

	classifier := utils.NewClassifier(db, nil)
	syncService := utils.NewSyncService(db, classifier)

	leadController := controller.NewLeadController(db, syncService, classifier, leadLogger)
	journeyController := controller.NewJourneyController(db, journeyLogger)
	agreementController := controller.NewAgreementController(db, agreementLogger)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Lead routes. Static segments register before /:id so they never
	// shadow as lead IDs.
	lead := api.Group("/leads")
	lead.Get("/", leadController.GetLeads)
	lead.Get("/stats", leadController.GetLeadStats)
	lead.Get("/export.csv", leadController.ExportLeads)
	lead.Get("/tags", leadController.GetTags)
	lead.Get("/views", leadController.GetSavedViews)
	lead.Post("/views", leadController.CreateSavedView)
	lead.Delete("/views/:id", leadController.DeleteSavedView)
	lead.Post("/sync", middleware.SyncRateLimiter(), leadController.SyncLeads)
	lead.Post("/clear-and-reload", middleware.SyncRateLimiter(), leadController.ClearAndReload)
	lead.Post("/reclassify", middleware.AdminOnly(), leadController.Reclassify)
	lead.Get("/:id", leadController.GetLead)
	lead.Post("/:id/rating", leadController.SetRating)
	lead.Delete("/:id/rating", leadController.ClearRating)
	lead.Patch("/:id/category", leadController.UpdateCategory)
	lead.Get("/:id/notes", leadController.GetNotes)
	lead.Post("/:id/notes", leadController.AddNote)
	lead.Post("/:id/tags", leadController.AddTag)
	lead.Delete("/:id/tags/:tag_id", leadController.RemoveTag)
	lead.Post("/:id/agree", agreementController.AgreeToService)

	// Call-tracking provider link
	api.Post("/provider/connect", leadController.ConnectProvider)

	// Journey routes
	journey := api.Group("/journeys")
	journey.Get("/", journeyController.GetJourneys)
	journey.Post("/", journeyController.CreateJourney)
	journey.Get("/:id", journeyController.GetJourney)
	journey.Patch("/:id", journeyController.UpdateJourney)
	journey.Post("/:id/apply-template", journeyController.ApplyTemplate)
	journey.Post("/:id/archive", journeyController.Archive)
	journey.Post("/:id/restore", journeyController.Restore)
	journey.Post("/:id/steps", journeyController.AddStep)
	journey.Patch("/:id/steps/:step_id", journeyController.UpdateStep)
	journey.Delete("/:id/steps/:step_id", journeyController.DeleteStep)

	// Follow-up template routes
	api.Get("/journey-template", journeyController.GetTemplate)
	api.Put("/journey-template", journeyController.PutTemplate)

	// Active client routes
	client := api.Group("/active-clients")
	client.Get("/", agreementController.GetActiveClients)
	client.Get("/:id", agreementController.GetActiveClient)
	client.Post("/:id/archive", agreementController.ArchiveActiveClient)

	// WebSocket route for live sync progress (auth happens in-band)
	app.Get("/api/v1/leads/sync/progress", websocket.New(func(c *websocket.Conn) {
		leadController.HandleSyncProgressWS(c)
	}))

	// Log initialization
	log.Println("API routes initialized successfully")

	return leadController
}

func SetupRoutes(app *fiber.App, db *gorm.DB) *controller.LeadController {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup API routes
	leadController := SetupAPIRoutes(app, db)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	return leadController
}
