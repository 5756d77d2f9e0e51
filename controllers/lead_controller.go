package controller

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"clientportal/models"
	"clientportal/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type LeadController struct {
	DB         *gorm.DB
	Sync       *utils.SyncService
	Classifier *utils.Classifier
	Logger     *log.Logger
}

func NewLeadController(db *gorm.DB, sync *utils.SyncService, classifier *utils.Classifier, logger *log.Logger) *LeadController {
	return &LeadController{
		DB:         db,
		Sync:       sync,
		Classifier: classifier,
		Logger:     logger,
	}
}

// parseLeadFilters reads the shared lead filter set from query params.
func parseLeadFilters(c *fiber.Ctx) models.LeadFilters {
	return models.LeadFilters{
		Search:       c.Query("search"),
		DateFrom:     c.Query("date_from"),
		DateTo:       c.Query("date_to"),
		CallerType:   c.Query("caller_type"),
		Category:     c.Query("category"),
		ActivityType: c.Query("type"),
		Source:       c.Query("source"),
	}
}

// parseFilterDate accepts a bare date or a full RFC3339 timestamp.
func parseFilterDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

// buildLeadQuery applies the filter set to a tenant-scoped activity query.
// Shared by the list, the CSV export and saved views. The request context
// rides along so an abandoned request cancels its queries.
func (lc *LeadController) buildLeadQuery(ctx context.Context, userID uint, f models.LeadFilters) (*gorm.DB, error) {
	query := lc.DB.WithContext(ctx).Model(&models.CallActivity{}).Where("user_id = ?", userID)

	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where(
			"LOWER(caller_name) LIKE ? OR caller_number LIKE ? OR LOWER(transcript) LIKE ?",
			pattern, "%"+f.Search+"%", pattern,
		)
	}
	if f.DateFrom != "" {
		from, _, err := parseFilterDate(f.DateFrom)
		if err != nil {
			return nil, errors.New("date_from must be YYYY-MM-DD or RFC3339")
		}
		query = query.Where("started_at >= ?", from)
	}
	if f.DateTo != "" {
		to, dateOnly, err := parseFilterDate(f.DateTo)
		if err != nil {
			return nil, errors.New("date_to must be YYYY-MM-DD or RFC3339")
		}
		if dateOnly {
			// A bare end date is inclusive of that whole day.
			to = to.Add(24 * time.Hour)
		}
		query = query.Where("started_at < ?", to)
	}
	if f.CallerType != "" {
		query = query.Where("caller_type = ?", f.CallerType)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.ActivityType != "" {
		query = query.Where("activity_type = ?", f.ActivityType)
	}
	if f.Source != "" {
		query = query.Where("source = ?", f.Source)
	}
	return query, nil
}

var leadSortColumns = map[string]bool{
	"started_at":   true,
	"rating":       true,
	"duration_sec": true,
	"caller_name":  true,
}

// GetLeads returns a paginated, filtered, sorted page of the tenant's leads.
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	limit = utils.ClampLimit(limit, defaultPageSize, maxPageSize)
	offset := (page - 1) * limit

	query, err := lc.buildLeadQuery(c.UserContext(), user.ID, parseLeadFilters(c))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	sortCol := c.Query("sort", "started_at")
	if !leadSortColumns[sortCol] {
		sortCol = "started_at"
	}
	dir := "DESC"
	if strings.EqualFold(c.Query("dir"), "asc") {
		dir = "ASC"
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to count leads", err)
	}

	var leads []models.CallActivity
	if err := query.
		Order(sortCol + " " + dir + ", id DESC").
		Offset(offset).Limit(limit).
		Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch leads", err)
	}

	return c.JSON(fiber.Map{
		"leads":      leads,
		"pagination": utils.NewPagination(page, limit, total),
	})
}

// GetLead returns one lead with its notes, tags and the caller's other
// activities on the same normalized key.
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	leadID := c.Params("id")

	var lead models.CallActivity
	if err := lc.DB.WithContext(c.UserContext()).
		Preload("Notes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Where("id = ? AND user_id = ?", leadID, user.ID).First(&lead).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch lead", err)
	}

	var tags []models.Tag
	lc.DB.WithContext(c.UserContext()).
		Joins("JOIN activity_tags ON activity_tags.tag_id = tags.id").
		Where("activity_tags.activity_id = ? AND activity_tags.deleted_at IS NULL", lead.ID).
		Find(&tags)

	var history []models.CallActivity
	if lead.CallerKey != "" {
		lc.DB.WithContext(c.UserContext()).
			Where("user_id = ? AND caller_key = ? AND id != ?", user.ID, lead.CallerKey, lead.ID).
			Order("started_at DESC").Limit(25).
			Find(&history)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"lead":    lead,
		"tags":    tags,
		"history": history,
	}))
}

// SyncLeads pulls new activity from the call-tracking provider. A provider
// outage is not an error for the caller: the cached leads keep serving and
// the response says so.
func (lc *LeadController) SyncLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result, err := lc.Sync.Sync(c.UserContext(), user, false, nil)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrUpstreamAuth):
			return utils.ErrorResponse(c, fiber.StatusForbidden, utils.ErrCodeAuth,
				"Call tracking authorization expired. Please reconnect the provider.", nil)
		case errors.Is(err, utils.ErrUpstreamUnavailable):
			lc.Logger.Printf("sync failed for user %d: provider unavailable", user.ID)
			return c.JSON(fiber.Map{
				"newCalls":     0,
				"updatedCalls": 0,
				"synced":       false,
				"message":      "Call tracking provider is unavailable. Showing cached leads.",
			})
		default:
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Sync failed", err)
		}
	}

	return c.JSON(fiber.Map{
		"newCalls":     result.NewCount,
		"updatedCalls": result.UpdatedCount,
		"synced":       true,
		"message":      "Sync completed",
	})
}

// ClearAndReload drops the cached activities and re-syncs from scratch.
func (lc *LeadController) ClearAndReload(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result, err := lc.Sync.ClearAndReload(c.UserContext(), user)
	if err != nil {
		if errors.Is(err, utils.ErrUpstreamAuth) {
			return utils.ErrorResponse(c, fiber.StatusForbidden, utils.ErrCodeAuth,
				"Call tracking authorization expired. Please reconnect the provider.", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, utils.ErrCodeUpstreamUnavailable,
			"Reload failed; the provider could not be reached", err)
	}

	return c.JSON(fiber.Map{
		"calls":   result.NewCount,
		"message": "Leads reloaded from the call tracking provider",
	})
}

type leadStats struct {
	Total          int64            `json:"total"`
	PeriodReviews  int64            `json:"periodReviews"`
	ByCategory     map[string]int64 `json:"byCategory"`
	ConversionRate float64          `json:"conversionRate"`
	NeedsAttention int64            `json:"needsAttention"`
	AverageRating  float64          `json:"averageRating"`
}

// GetLeadStats returns rollups over the last N days (default 30).
func (lc *LeadController) GetLeadStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	days, _ := strconv.Atoi(c.Query("days", "30"))
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	stats := leadStats{ByCategory: map[string]int64{}}
	db := lc.DB.WithContext(c.UserContext())

	if err := db.Model(&models.CallActivity{}).
		Where("user_id = ?", user.ID).Count(&stats.Total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to compute stats", err)
	}

	period := db.Model(&models.CallActivity{}).
		Where("user_id = ? AND started_at >= ?", user.ID, since)
	if err := period.Count(&stats.PeriodReviews).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to compute stats", err)
	}

	type categoryCount struct {
		Category string
		Count    int64
	}
	var byCategory []categoryCount
	db.Model(&models.CallActivity{}).
		Select("category, COUNT(*) as count").
		Where("user_id = ? AND started_at >= ?", user.ID, since).
		Group("category").
		Scan(&byCategory)
	for _, row := range byCategory {
		stats.ByCategory[row.Category] = row.Count
	}

	stats.NeedsAttention = stats.ByCategory[models.CategoryNeedsAttention]
	if stats.PeriodReviews > 0 {
		stats.ConversionRate = float64(stats.ByCategory[models.CategoryConverted]) / float64(stats.PeriodReviews) * 100
	}

	var avg sql.NullFloat64
	db.Model(&models.CallActivity{}).
		Where("user_id = ? AND started_at >= ? AND rating > 0", user.ID, since).
		Select("AVG(rating)").Row().Scan(&avg)
	if avg.Valid {
		stats.AverageRating = avg.Float64
	}

	return c.JSON(utils.SuccessResponse(stats))
}

type connectProviderInput struct {
	AccountID    string `json:"account_id" validate:"required,max=100"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ConnectProvider stores the tenant's call-tracking credentials. The refresh
// token is encrypted at rest; each sync decrypts it to mint access tokens.
func (lc *LeadController) ConnectProvider(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input connectProviderInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	encrypted, err := utils.Encrypt(input.RefreshToken)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to store provider credentials", err)
	}

	updates := map[string]interface{}{
		"tracking_account_id":    input.AccountID,
		"tracking_refresh_token": encrypted,
	}
	if err := lc.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to store provider credentials", err)
	}

	lc.Logger.Printf("user %d connected tracking account %s", user.ID, input.AccountID)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"connected":  true,
		"account_id": input.AccountID,
	}))
}

// csvTimeFormat is ISO-8601 with an explicit Z.
const csvTimeFormat = "2006-01-02T15:04:05Z"

// ExportLeads streams the full filtered set as RFC 4180 CSV.
func (lc *LeadController) ExportLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query, err := lc.buildLeadQuery(c.UserContext(), user.ID, parseLeadFilters(c))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	var leads []models.CallActivity
	if err := query.Order("started_at DESC, id DESC").Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch leads", err)
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", "attachment; filename=leads_export_"+time.Now().Format("20060102")+".csv")

	writer := csv.NewWriter(c)
	defer writer.Flush()

	header := []string{"started_at", "caller_name", "caller_number", "source", "category", "rating", "duration_sec", "transcript_url"}
	if err := writer.Write(header); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to generate CSV", err)
	}

	for _, lead := range leads {
		record := []string{
			lead.StartedAt.UTC().Format(csvTimeFormat),
			lead.CallerName,
			lead.CallerNumber,
			lead.Source,
			lead.Category,
			strconv.Itoa(lead.Rating),
			strconv.Itoa(lead.DurationSec),
			lead.TranscriptURL,
		}
		if err := writer.Write(record); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to generate CSV", err)
		}
	}

	return nil
}
