package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"clientportal/config"
	"clientportal/models"
	"clientportal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fixture boots an in-memory app with the full route surface and a single
// authenticated tenant. The auth middleware is replaced by a stub that
// injects the tenant, everything below it is the production wiring.
type fixture struct {
	t    *testing.T
	app  *fiber.App
	db   *gorm.DB
	user *models.User
	sync *utils.SyncService
	lead *LeadController
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))

	user := &models.User{
		Email:              "owner@example.com",
		TrackingAccountID:  "acct-1",
		DefaultCountryCode: "1",
	}
	require.NoError(t, db.Create(user).Error)

	classifier := utils.NewClassifier(db, nil)
	syncService := utils.NewSyncService(db, classifier)
	discard := log.New(io.Discard, "", 0)
	leadController := NewLeadController(db, syncService, classifier, discard)
	journeyController := NewJourneyController(db, discard)
	agreementController := NewAgreementController(db, discard)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	})

	api := app.Group("/api/v1")

	lead := api.Group("/leads")
	lead.Get("/", leadController.GetLeads)
	lead.Get("/stats", leadController.GetLeadStats)
	lead.Get("/export.csv", leadController.ExportLeads)
	lead.Get("/tags", leadController.GetTags)
	lead.Get("/views", leadController.GetSavedViews)
	lead.Post("/views", leadController.CreateSavedView)
	lead.Delete("/views/:id", leadController.DeleteSavedView)
	lead.Post("/sync", leadController.SyncLeads)
	lead.Post("/clear-and-reload", leadController.ClearAndReload)
	lead.Post("/reclassify", leadController.Reclassify)
	lead.Get("/:id", leadController.GetLead)
	lead.Post("/:id/rating", leadController.SetRating)
	lead.Delete("/:id/rating", leadController.ClearRating)
	lead.Patch("/:id/category", leadController.UpdateCategory)
	lead.Get("/:id/notes", leadController.GetNotes)
	lead.Post("/:id/notes", leadController.AddNote)
	lead.Post("/:id/tags", leadController.AddTag)
	lead.Delete("/:id/tags/:tag_id", leadController.RemoveTag)
	lead.Post("/:id/agree", agreementController.AgreeToService)

	api.Post("/provider/connect", leadController.ConnectProvider)

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

	api.Get("/journey-template", journeyController.GetTemplate)
	api.Put("/journey-template", journeyController.PutTemplate)

	client := api.Group("/active-clients")
	client.Get("/", agreementController.GetActiveClients)
	client.Get("/:id", agreementController.GetActiveClient)
	client.Post("/:id/archive", agreementController.ArchiveActiveClient)

	return &fixture{
		t:    t,
		app:  app,
		db:   db,
		user: user,
		sync: syncService,
		lead: leadController,
	}
}

func (f *fixture) request(method, path string, body interface{}) *http.Response {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(f.t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func data(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := decodeBody(t, resp)
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "expected envelope with object data, got %v", body)
	return d
}

var externalIDSeq uint64

// createActivity seeds one activity for the fixture tenant.
func (f *fixture) createActivity(a models.CallActivity) *models.CallActivity {
	f.t.Helper()
	if a.UserID == 0 {
		a.UserID = f.user.ID
	}
	if a.ExternalID == "" {
		a.ExternalID = "ev-" + strconv.FormatUint(atomic.AddUint64(&externalIDSeq, 1), 10)
	}
	if a.ActivityType == "" {
		a.ActivityType = models.ActivityTypeCall
	}
	if a.Direction == "" {
		a.Direction = "inbound"
	}
	if a.Category == "" {
		a.Category = models.CategoryUnreviewed
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	require.NoError(f.t, f.db.Create(&a).Error)
	return &a
}
