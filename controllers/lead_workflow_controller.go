package controller

import (
	"errors"
	"strings"

	"clientportal/models"
	"clientportal/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// findTenantLead loads an activity scoped to the tenant or answers 404.
func (lc *LeadController) findTenantLead(c *fiber.Ctx, id string) (*models.CallActivity, error) {
	user := c.Locals("user").(*models.User)
	var lead models.CallActivity
	if err := lc.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&lead).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Lead not found", nil)
		}
		return nil, utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch lead", err)
	}
	return &lead, nil
}

// SetRating sets the operator rating. Zero clears the rating and leaves the
// category untouched; forcing converted on a 5 is the agreement path's job,
// not this one's.
func (lc *LeadController) SetRating(c *fiber.Ctx) error {
	var input struct {
		Rating *int `json:"rating" validate:"required,min=0,max=5"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	lead, err := lc.findTenantLead(c, c.Params("id"))
	if lead == nil {
		return err
	}

	if err := lc.DB.Model(lead).Update("rating", *input.Rating).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to update rating", err)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// ClearRating removes the rating (rating = 0).
func (lc *LeadController) ClearRating(c *fiber.Ctx) error {
	lead, err := lc.findTenantLead(c, c.Params("id"))
	if lead == nil {
		return err
	}
	if err := lc.DB.Model(lead).Update("rating", 0).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to clear rating", err)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// UpdateCategory sets a manual category. Manual categories pin the lead
// against any future classifier run.
func (lc *LeadController) UpdateCategory(c *fiber.Ctx) error {
	var input struct {
		Category string `json:"category" validate:"required,lead_category"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	lead, err := lc.findTenantLead(c, c.Params("id"))
	if lead == nil {
		return err
	}

	if err := lc.DB.Model(lead).Updates(map[string]interface{}{
		"category":        input.Category,
		"category_source": models.CategorySourceManual,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to update category", err)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// AddTag finds the tenant tag case-insensitively or creates it, then
// attaches it to the lead. One endpoint covers the free-form tag input.
func (lc *LeadController) AddTag(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name  string `json:"name" validate:"required,max=60"`
		Color string `json:"color" validate:"omitempty,max=20"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	lead, err := lc.findTenantLead(c, c.Params("id"))
	if lead == nil {
		return err
	}

	name := strings.TrimSpace(input.Name)
	var tag models.Tag
	err = lc.DB.Where("user_id = ? AND name_lower = ?", user.ID, strings.ToLower(name)).First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tag = models.Tag{UserID: user.ID, Name: name, Color: input.Color}
		if err := lc.DB.Create(&tag).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to create tag", err)
		}
	} else if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to look up tag", err)
	}

	var existing models.ActivityTag
	err = lc.DB.Where("activity_id = ? AND tag_id = ?", lead.ID, tag.ID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := lc.DB.Create(&models.ActivityTag{ActivityID: lead.ID, TagID: tag.ID}).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to attach tag", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(tag))
}

// RemoveTag detaches a tag from the lead. The tag itself stays.
func (lc *LeadController) RemoveTag(c *fiber.Ctx) error {
	lead, err := lc.findTenantLead(c, c.Params("id"))
	if lead == nil {
		return err
	}

	// Hard delete so the (activity, tag) unique index allows re-attaching.
	result := lc.DB.Unscoped().
		Where("activity_id = ? AND tag_id = ?", lead.ID, c.Params("tag_id")).
		Delete(&models.ActivityTag{})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to remove tag", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Tag is not attached to this lead", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Tag removed"}))
}

// GetTags lists the tenant's tags.
func (lc *LeadController) GetTags(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var tags []models.Tag
	if err := lc.DB.Where("user_id = ?", user.ID).Order("name_lower ASC").Find(&tags).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch tags", err)
	}
	return c.JSON(utils.SuccessResponse(tags))
}

// GetNotes lists the notes on one lead, newest first.
func (lc *LeadController) GetNotes(c *fiber.Ctx) error {
	lead, err := lc.findTenantLead(c, c.Params("id"))
	if lead == nil {
		return err
	}

	var notes []models.ActivityNote
	if err := lc.DB.Where("activity_id = ?", lead.ID).Order("created_at DESC").Find(&notes).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch notes", err)
	}
	return c.JSON(utils.SuccessResponse(notes))
}

// AddNote attaches a note to one lead.
func (lc *LeadController) AddNote(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Body string `json:"body" validate:"required,max=10000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	lead, err := lc.findTenantLead(c, c.Params("id"))
	if lead == nil {
		return err
	}

	authorName := user.Email
	if user.Name != nil && *user.Name != "" {
		authorName = *user.Name
	}
	note := models.ActivityNote{
		ActivityID: lead.ID,
		AuthorID:   user.ID,
		AuthorName: authorName,
		Body:       input.Body,
	}
	if err := lc.DB.Create(&note).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to create note", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(note))
}

// GetSavedViews lists the requesting user's saved filter presets.
func (lc *LeadController) GetSavedViews(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var views []models.SavedView
	if err := lc.DB.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&views).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch views", err)
	}
	return c.JSON(utils.SuccessResponse(views))
}

// CreateSavedView stores a named filter preset for the requesting user.
func (lc *LeadController) CreateSavedView(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name    string             `json:"name" validate:"required,max=100"`
		Filters models.LeadFilters `json:"filters"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}
	if input.Filters.Category != "" && !models.IsValidCategory(input.Filters.Category) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "filters.category is not a known category", nil)
	}

	view := models.SavedView{UserID: user.ID, Name: input.Name}
	if err := view.SetFilters(input.Filters); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid filters", err)
	}
	if err := lc.DB.Create(&view).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to save view", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(view))
}

// DeleteSavedView removes one of the requesting user's presets.
func (lc *LeadController) DeleteSavedView(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result := lc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).Delete(&models.SavedView{})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to delete view", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "View not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "View deleted"}))
}

// Reclassify re-runs the classifier over the tenant's leads, respecting
// manual overrides. Admin-acting-as-tenant only.
func (lc *LeadController) Reclassify(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Limit int  `json:"limit" validate:"omitempty,min=1,max=1000"`
		Force bool `json:"force"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	processed, skipped, err := lc.Classifier.Reclassify(c.UserContext(), user.ID, input.Limit, input.Force)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Reclassification failed", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"processed": processed,
		"skipped":   skipped,
	}))
}
