package controller

import (
	"errors"
	"fmt"
	"log"
	"time"

	"clientportal/models"
	"clientportal/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type JourneyController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewJourneyController(db *gorm.DB, logger *log.Logger) *JourneyController {
	return &JourneyController{DB: db, Logger: logger}
}

// findTenantJourney loads a journey with its steps or answers 404.
func (jc *JourneyController) findTenantJourney(c *fiber.Ctx, id string) (*models.Journey, error) {
	user := c.Locals("user").(*models.User)
	var journey models.Journey
	err := jc.DB.WithContext(c.UserContext()).Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("id = ? AND user_id = ?", id, user.ID).First(&journey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Journey not found", nil)
		}
		return nil, utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch journey", err)
	}
	return &journey, nil
}

// recomputeNextAction reloads the journey's steps inside tx and persists a
// fresh next_action_at. Every step mutation funnels through here.
func (jc *JourneyController) recomputeNextAction(tx *gorm.DB, journeyID uint) error {
	var journey models.Journey
	if err := tx.Preload("Steps").First(&journey, journeyID).Error; err != nil {
		return err
	}
	journey.RecomputeNextAction()
	return tx.Model(&models.Journey{}).Where("id = ?", journeyID).
		Update("next_action_at", journey.NextActionAt).Error
}

// GetJourneys lists the tenant's journeys. Archived ones only show up with
// ?archived=true; within each bucket the most urgent next action sorts first.
func (jc *JourneyController) GetJourneys(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := jc.DB.WithContext(c.UserContext()).Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("user_id = ?", user.ID)

	if c.Query("archived") == "true" {
		query = query.Where("status = ?", models.JourneyStatusArchived)
	} else {
		query = query.Where("status <> ?", models.JourneyStatusArchived)
	}
	if status := c.Query("status"); status != "" {
		if !models.IsValidJourneyStatus(status) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Unknown journey status", nil)
		}
		query = query.Where("status = ?", status)
	}

	var journeys []models.Journey
	// Journeys without a next action sort last; the CASE keeps the clause
	// portable across Postgres and sqlite.
	if err := query.
		Order("CASE WHEN next_action_at IS NULL THEN 1 ELSE 0 END, next_action_at ASC, id DESC").
		Find(&journeys).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch journeys", err)
	}
	return c.JSON(utils.SuccessResponse(journeys))
}

type createJourneyInput struct {
	LeadCallID     *uint    `json:"lead_call_id"`
	ActiveClientID *uint    `json:"active_client_id"`
	ClientName     string   `json:"client_name" validate:"omitempty,max=200"`
	ClientPhone    string   `json:"client_phone" validate:"omitempty,max=40"`
	ClientEmail    string   `json:"client_email" validate:"omitempty,max=200"`
	Symptoms       []string `json:"symptoms" validate:"omitempty,max=50,dive,max=200"`
	Status         string   `json:"status" validate:"omitempty,journey_status"`
	ForceNew       bool     `json:"force_new"`
}

// CreateJourney starts a journey for exactly one lead call or active client.
// A second create against the same lead returns the existing non-archived
// journey unless force_new is set.
func (jc *JourneyController) CreateJourney(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input createJourneyInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}
	if (input.LeadCallID == nil) == (input.ActiveClientID == nil) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation,
			"Provide exactly one of lead_call_id or active_client_id", nil)
	}
	if input.Status == models.JourneyStatusArchived {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation,
			"A journey cannot be created archived", nil)
	}
	if input.ClientEmail != "" {
		if err := checkmail.ValidateFormat(input.ClientEmail); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation,
				"client_email is not a valid email address", nil)
		}
	}

	journey := models.Journey{
		UserID:     user.ID,
		ClientName: input.ClientName,
		Symptoms:   models.StringList(input.Symptoms),
		Status:     models.JourneyStatusPending,
	}
	if input.Status != "" {
		journey.Status = input.Status
	}

	if input.LeadCallID != nil {
		var lead models.CallActivity
		if err := jc.DB.Where("id = ? AND user_id = ?", *input.LeadCallID, user.ID).First(&lead).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Lead not found", nil)
			}
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch lead", err)
		}

		if !input.ForceNew {
			var existing models.Journey
			err := jc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC")
			}).Where("user_id = ? AND lead_call_id = ? AND status <> ?",
				user.ID, lead.ID, models.JourneyStatusArchived).First(&existing).Error
			if err == nil {
				return c.JSON(utils.SuccessResponse(fiber.Map{"journey": existing, "existing": true}))
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to check journeys", err)
			}
		}

		journey.LeadCallID = &lead.ID
		if journey.ClientName == "" {
			journey.ClientName = lead.CallerName
		}
		journey.ClientPhone = lead.CallerNumber
		journey.ClientEmail = lead.CallerEmail
	} else {
		var client models.ActiveClient
		if err := jc.DB.Where("id = ? AND user_id = ?", *input.ActiveClientID, user.ID).First(&client).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Active client not found", nil)
			}
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch active client", err)
		}
		journey.ActiveClientID = &client.ID
		if journey.ClientName == "" {
			journey.ClientName = client.ClientName
		}
		journey.ClientPhone = client.ClientPhone
		journey.ClientEmail = client.ClientEmail
	}

	// Contact details supplied in the body win over the ones copied from
	// the lead or client.
	if input.ClientPhone != "" {
		journey.ClientPhone = input.ClientPhone
	}
	if input.ClientEmail != "" {
		journey.ClientEmail = input.ClientEmail
	}
	if journey.ClientName == "" {
		journey.ClientName = "Unknown caller"
	}

	if err := jc.DB.Create(&journey).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to create journey", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{"journey": journey, "existing": false}))
}

// GetJourney returns one journey with its ordered steps.
func (jc *JourneyController) GetJourney(c *fiber.Ctx) error {
	journey, err := jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(journey))
}

// UpdateJourney patches status, paused, symptoms or client fields. Archival
// is rejected here; it has its own endpoint so prev_status bookkeeping never
// gets skipped.
func (jc *JourneyController) UpdateJourney(c *fiber.Ctx) error {
	var input struct {
		Status      *string   `json:"status" validate:"omitempty,journey_status"`
		Paused      *bool     `json:"paused"`
		Symptoms    *[]string `json:"symptoms" validate:"omitempty,max=50,dive,max=200"`
		ClientName  *string   `json:"client_name" validate:"omitempty,max=200"`
		ClientPhone *string   `json:"client_phone" validate:"omitempty,max=40"`
		ClientEmail *string   `json:"client_email" validate:"omitempty,max=200"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}
	if input.ClientEmail != nil && *input.ClientEmail != "" {
		if err := checkmail.ValidateFormat(*input.ClientEmail); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation,
				"client_email is not a valid email address", nil)
		}
	}

	journey, err := jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return err
	}

	updates := map[string]interface{}{}
	if input.Status != nil {
		if !journey.CanTransition(*input.Status) {
			return utils.ErrorResponse(c, fiber.StatusConflict, utils.ErrCodeConflict,
				fmt.Sprintf("Cannot move journey from %s to %s", journey.Status, *input.Status), nil)
		}
		updates["status"] = *input.Status
	}
	if input.Paused != nil {
		updates["paused"] = *input.Paused
	}
	if input.Symptoms != nil {
		updates["symptoms"] = models.StringList(*input.Symptoms)
		updates["symptoms_redacted"] = false
	}
	if input.ClientName != nil {
		updates["client_name"] = *input.ClientName
	}
	if input.ClientPhone != nil {
		updates["client_phone"] = *input.ClientPhone
	}
	if input.ClientEmail != nil {
		updates["client_email"] = *input.ClientEmail
	}
	if len(updates) == 0 {
		return c.JSON(utils.SuccessResponse(journey))
	}

	if err := jc.DB.Model(journey).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to update journey", err)
	}
	return c.JSON(utils.SuccessResponse(journey))
}

// ApplyTemplate materializes the tenant's template into this journey's
// steps. Existing steps block the apply unless replace is set; due dates
// anchor on the journey's creation time.
func (jc *JourneyController) ApplyTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Replace bool `json:"replace"`
	}
	if err := c.BodyParser(&input); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}

	journey, errResp := jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return errResp
	}
	if len(journey.Steps) > 0 && !input.Replace {
		return utils.ErrorResponse(c, fiber.StatusConflict, utils.ErrCodeConflict,
			"Journey already has steps; pass replace to overwrite them", nil)
	}

	var template []models.JourneyTemplateStep
	if err := jc.DB.Where("user_id = ?", user.ID).Order("position ASC").Find(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to load template", err)
	}
	if len(template) == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "No follow-up template configured", nil)
	}

	anchor := journey.CreatedAt.UTC().Truncate(time.Minute)
	err := jc.DB.Transaction(func(tx *gorm.DB) error {
		if input.Replace {
			if err := tx.Unscoped().Where("journey_id = ?", journey.ID).Delete(&models.JourneyStep{}).Error; err != nil {
				return err
			}
		}
		for i, t := range template {
			due := anchor.Add(time.Duration(t.OffsetWeeks) * 7 * 24 * time.Hour)
			step := models.JourneyStep{
				JourneyID:   journey.ID,
				Position:    i + 1,
				Label:       t.Label,
				Channel:     t.Channel,
				Message:     t.Message,
				OffsetWeeks: t.OffsetWeeks,
				DueAt:       &due,
			}
			if err := tx.Create(&step).Error; err != nil {
				return err
			}
		}
		return jc.recomputeNextAction(tx, journey.ID)
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to apply template", err)
	}

	journey, errResp = jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return errResp
	}
	return c.JSON(utils.SuccessResponse(journey))
}

// Archive stashes the current status and flags the journey archived.
func (jc *JourneyController) Archive(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	journey, err := jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return err
	}
	if journey.Status == models.JourneyStatusArchived {
		return c.JSON(utils.SuccessResponse(journey))
	}

	archivedBy := user.Email
	if user.Name != nil && *user.Name != "" {
		archivedBy = *user.Name
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"prev_status": journey.Status,
		"status":      models.JourneyStatusArchived,
		"archived_at": now,
		"archived_by": archivedBy,
	}
	if err := jc.DB.Model(journey).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to archive journey", err)
	}
	return c.JSON(utils.SuccessResponse(journey))
}

// Restore brings an archived journey back to the status it held before
// archival; journeys archived before that bookkeeping existed restore to
// pending.
func (jc *JourneyController) Restore(c *fiber.Ctx) error {
	journey, err := jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return err
	}
	if journey.Status != models.JourneyStatusArchived {
		return utils.ErrorResponse(c, fiber.StatusConflict, utils.ErrCodeConflict, "Journey is not archived", nil)
	}

	restored := journey.PrevStatus
	if restored == "" || restored == models.JourneyStatusArchived {
		restored = models.JourneyStatusPending
	}
	updates := map[string]interface{}{
		"status":      restored,
		"prev_status": "",
		"archived_at": nil,
		"archived_by": "",
	}
	if err := jc.DB.Model(journey).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to restore journey", err)
	}
	return c.JSON(utils.SuccessResponse(journey))
}

type stepInput struct {
	Label       string     `json:"label" validate:"required,max=200"`
	Channel     string     `json:"channel" validate:"omitempty,max=40"`
	Message     string     `json:"message" validate:"omitempty,max=5000"`
	OffsetWeeks int        `json:"offset_weeks" validate:"min=0,max=520"`
	DueAt       *time.Time `json:"due_at"`
	Notes       string     `json:"notes" validate:"omitempty,max=5000"`
}

// AddStep appends a step after the journey's current last position.
func (jc *JourneyController) AddStep(c *fiber.Ctx) error {
	var input stepInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	journey, errResp := jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return errResp
	}

	var step models.JourneyStep
	err := jc.DB.Transaction(func(tx *gorm.DB) error {
		var maxPos int
		row := tx.Model(&models.JourneyStep{}).
			Where("journey_id = ?", journey.ID).
			Select("COALESCE(MAX(position), 0)").Row()
		if err := row.Scan(&maxPos); err != nil {
			return err
		}

		step = models.JourneyStep{
			JourneyID:   journey.ID,
			Position:    maxPos + 1,
			Label:       input.Label,
			Channel:     input.Channel,
			Message:     input.Message,
			OffsetWeeks: input.OffsetWeeks,
			DueAt:       input.DueAt,
			Notes:       input.Notes,
		}
		if step.DueAt == nil && input.OffsetWeeks > 0 {
			due := journey.CreatedAt.UTC().Truncate(time.Minute).
				Add(time.Duration(input.OffsetWeeks) * 7 * 24 * time.Hour)
			step.DueAt = &due
		}
		if err := tx.Create(&step).Error; err != nil {
			return err
		}
		return jc.recomputeNextAction(tx, journey.ID)
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to add step", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(step))
}

// UpdateStep patches one step. Completion is first-writer-wins: the update
// only lands on a step whose completed_at is still NULL, and a lost race
// answers 409 so the second operator sees the earlier completion.
func (jc *JourneyController) UpdateStep(c *fiber.Ctx) error {
	var input struct {
		Label       *string    `json:"label" validate:"omitempty,max=200"`
		Channel     *string    `json:"channel" validate:"omitempty,max=40"`
		Message     *string    `json:"message" validate:"omitempty,max=5000"`
		Notes       *string    `json:"notes" validate:"omitempty,max=5000"`
		DueAt       *time.Time `json:"due_at"`
		Completed   *bool      `json:"completed"`
		CompletedAt *time.Time `json:"completed_at"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	journey, errResp := jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return errResp
	}

	var step models.JourneyStep
	if err := jc.DB.Where("id = ? AND journey_id = ?", c.Params("step_id"), journey.ID).First(&step).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Step not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch step", err)
	}

	err := jc.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if input.Label != nil {
			updates["label"] = *input.Label
		}
		if input.Channel != nil {
			updates["channel"] = *input.Channel
		}
		if input.Message != nil {
			updates["message"] = *input.Message
		}
		if input.Notes != nil {
			updates["notes"] = *input.Notes
		}
		if input.DueAt != nil {
			updates["due_at"] = *input.DueAt
		}
		if len(updates) > 0 {
			if err := tx.Model(&step).Updates(updates).Error; err != nil {
				return err
			}
		}

		if input.Completed != nil {
			if *input.Completed {
				completedAt := time.Now().UTC()
				if input.CompletedAt != nil {
					completedAt = input.CompletedAt.UTC()
				}
				result := tx.Model(&models.JourneyStep{}).
					Where("id = ? AND completed_at IS NULL", step.ID).
					Update("completed_at", completedAt)
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					return errStepAlreadyCompleted
				}
			} else {
				if err := tx.Model(&models.JourneyStep{}).
					Where("id = ?", step.ID).
					Update("completed_at", nil).Error; err != nil {
					return err
				}
			}
		}

		return jc.recomputeNextAction(tx, journey.ID)
	})
	if errors.Is(err, errStepAlreadyCompleted) {
		return utils.ErrorResponse(c, fiber.StatusConflict, utils.ErrCodeConflict,
			"Step was already completed by someone else", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to update step", err)
	}

	if err := jc.DB.First(&step, step.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to reload step", err)
	}
	return c.JSON(utils.SuccessResponse(step))
}

var errStepAlreadyCompleted = errors.New("step already completed")

// DeleteStep removes one step and refreshes the journey's next action.
func (jc *JourneyController) DeleteStep(c *fiber.Ctx) error {
	journey, errResp := jc.findTenantJourney(c, c.Params("id"))
	if journey == nil {
		return errResp
	}

	err := jc.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().
			Where("id = ? AND journey_id = ?", c.Params("step_id"), journey.ID).
			Delete(&models.JourneyStep{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return jc.recomputeNextAction(tx, journey.ID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Step not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to delete step", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Step deleted"}))
}

// GetTemplate returns the tenant's follow-up template rows in order.
func (jc *JourneyController) GetTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template []models.JourneyTemplateStep
	if err := jc.DB.Where("user_id = ?", user.ID).Order("position ASC").Find(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to load template", err)
	}
	return c.JSON(utils.SuccessResponse(template))
}

// PutTemplate replaces the tenant's template wholesale. Positions are
// assigned from array order so clients never have to manage them.
func (jc *JourneyController) PutTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Steps []stepInput `json:"steps" validate:"required,max=100,dive"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	var saved []models.JourneyTemplateStep
	err := jc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", user.ID).Delete(&models.JourneyTemplateStep{}).Error; err != nil {
			return err
		}
		for i, s := range input.Steps {
			row := models.JourneyTemplateStep{
				UserID:      user.ID,
				Position:    i + 1,
				Label:       s.Label,
				Channel:     s.Channel,
				Message:     s.Message,
				OffsetWeeks: s.OffsetWeeks,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			saved = append(saved, row)
		}
		return nil
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to save template", err)
	}
	return c.JSON(utils.SuccessResponse(saved))
}
