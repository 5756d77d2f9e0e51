package worker

import (
	"context"
	"log"
	"time"

	controller "clientportal/controllers"
	"clientportal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"
)

// SyncWorker pulls fresh provider activity for every connected tenant on a
// fixed cadence, so the lead list stays warm between manual refreshes.
type SyncWorker struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewSyncWorker(db *gorm.DB, logger *log.Logger) *SyncWorker {
	return &SyncWorker{
		db:     db,
		logger: logger,
	}
}

func (sw *SyncWorker) Start(ctx context.Context, leadController *controller.LeadController) {
	sw.logger.Println("Starting sync worker...")
	ticker := time.NewTicker(5 * time.Minute)

	for {
		select {
		case <-ticker.C:
			sw.syncAllTenants(leadController)
		case <-ctx.Done():
			sw.logger.Println("Stopping sync worker...")
			ticker.Stop()
			return
		}
	}
}

func (sw *SyncWorker) syncAllTenants(leadController *controller.LeadController) {
	sw.logger.Println("Syncing activities for all connected tenants...")

	var users []models.User
	if err := sw.db.Where("tracking_account_id IS NOT NULL AND tracking_account_id != ''").Find(&users).Error; err != nil {
		sw.logger.Printf("Failed to fetch tenants: %v", err)
		return
	}

	// Minimal Fiber app so the controller sees a real request context.
	app := fiber.New()

	for i := range users {
		user := users[i]
		fctx := app.AcquireCtx(&fasthttp.RequestCtx{})
		fctx.Locals("user", &user)

		if err := leadController.SyncLeads(fctx); err != nil {
			sw.logger.Printf("Failed to sync tenant %d: %v", user.ID, err)
		}
		app.ReleaseCtx(fctx)
	}
}
