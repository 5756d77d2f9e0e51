package controller

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"clientportal/models"
	"clientportal/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AgreementController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAgreementController(db *gorm.DB, logger *log.Logger) *AgreementController {
	return &AgreementController{DB: db, Logger: logger}
}

type agreedServiceInput struct {
	ServiceID   string  `json:"service_id" validate:"required,max=100"`
	ServiceName string  `json:"service_name" validate:"omitempty,max=200"`
	AgreedPrice float64 `json:"agreed_price" validate:"min=0"`
}

type agreeInput struct {
	Services   []agreedServiceInput   `json:"services" validate:"required,min=1,max=50,dive"`
	Source     string                 `json:"source" validate:"omitempty,max=60"`
	FunnelData map[string]interface{} `json:"funnel_data"`
	JourneyID  *uint                  `json:"journey_id"`
}

// AgreeToService converts a lead into an active client in one transaction:
// the caller identity gets (or keeps) its ActiveClient record, the agreed
// services are appended, the lead is pinned to rating 5 / converted, and a
// linked journey moves to active_client.
func (ac *AgreementController) AgreeToService(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input agreeInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil)
	}

	var lead models.CallActivity
	if err := ac.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&lead).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch lead", err)
	}
	if lead.CallerKey == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation,
			"Lead has no caller identity; cannot create an active client", nil)
	}

	funnelJSON := ""
	if len(input.FunnelData) > 0 {
		raw, err := json.Marshal(input.FunnelData)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, utils.ErrCodeValidation, "Invalid funnel_data", err)
		}
		funnelJSON = string(raw)
	}

	var client models.ActiveClient
	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND caller_key = ?", user.ID, lead.CallerKey).First(&client).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			client = models.ActiveClient{
				UserID:      user.ID,
				CallerKey:   lead.CallerKey,
				ClientName:  lead.CallerName,
				ClientPhone: lead.CallerNumber,
				ClientEmail: lead.CallerEmail,
				Source:      input.Source,
				FunnelData:  funnelJSON,
			}
			if client.ClientName == "" {
				client.ClientName = lead.CallerNumber
			}
			if err := tx.Create(&client).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			updates := map[string]interface{}{}
			if funnelJSON != "" {
				updates["funnel_data"] = funnelJSON
			}
			if input.Source != "" {
				updates["source"] = input.Source
			}
			// Re-agreeing revives an archived client.
			if client.ArchivedAt != nil {
				updates["archived_at"] = nil
				updates["archived_by"] = ""
			}
			if len(updates) > 0 {
				if err := tx.Model(&client).Updates(updates).Error; err != nil {
					return err
				}
			}
		}

		for _, s := range input.Services {
			row := models.AgreedService{
				ActiveClientID: client.ID,
				ServiceID:      s.ServiceID,
				ServiceName:    s.ServiceName,
				AgreedPrice:    s.AgreedPrice,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&lead).Updates(map[string]interface{}{
			"rating":          5,
			"category":        models.CategoryConverted,
			"category_source": models.CategorySourceManual,
		}).Error; err != nil {
			return err
		}

		return ac.linkJourney(tx, user.ID, &lead, &client, input.JourneyID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Journey not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to record agreement", err)
	}

	if err := ac.DB.Preload("Services").First(&client, client.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to reload client", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{"active_client": client}))
}

// linkJourney attaches the new active client to a journey: the explicitly
// named one, or failing that any non-archived journey already tied to this
// lead. Either way the journey moves to active_client.
func (ac *AgreementController) linkJourney(tx *gorm.DB, userID uint, lead *models.CallActivity, client *models.ActiveClient, journeyID *uint) error {
	var journey models.Journey
	if journeyID != nil {
		if err := tx.Where("id = ? AND user_id = ?", *journeyID, userID).First(&journey).Error; err != nil {
			return err
		}
	} else {
		err := tx.Where("user_id = ? AND lead_call_id = ? AND status <> ?",
			userID, lead.ID, models.JourneyStatusArchived).First(&journey).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	updates := map[string]interface{}{
		"active_client_id": client.ID,
	}
	if journey.Status != models.JourneyStatusArchived {
		updates["status"] = models.JourneyStatusActiveClient
	}
	return tx.Model(&journey).Updates(updates).Error
}

// GetActiveClients lists the tenant's active clients with their services.
func (ac *AgreementController) GetActiveClients(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := ac.DB.WithContext(c.UserContext()).Preload("Services").Where("user_id = ?", user.ID)
	if c.Query("archived") == "true" {
		query = query.Where("archived_at IS NOT NULL")
	} else {
		query = query.Where("archived_at IS NULL")
	}

	var clients []models.ActiveClient
	if err := query.Order("created_at DESC").Find(&clients).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch active clients", err)
	}
	return c.JSON(utils.SuccessResponse(clients))
}

// GetActiveClient returns one active client with its services.
func (ac *AgreementController) GetActiveClient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var client models.ActiveClient
	err := ac.DB.WithContext(c.UserContext()).Preload("Services").
		Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Active client not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch active client", err)
	}
	return c.JSON(utils.SuccessResponse(client))
}

// ArchiveActiveClient flags an active client archived so the retention pass
// can later redact its agreed prices.
func (ac *AgreementController) ArchiveActiveClient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var client models.ActiveClient
	err := ac.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, utils.ErrCodeNotFound, "Active client not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to fetch active client", err)
	}
	if client.ArchivedAt != nil {
		return c.JSON(utils.SuccessResponse(client))
	}

	archivedBy := user.Email
	if user.Name != nil && *user.Name != "" {
		archivedBy = *user.Name
	}
	now := time.Now().UTC()
	if err := ac.DB.Model(&client).Updates(map[string]interface{}{
		"archived_at": now,
		"archived_by": archivedBy,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, utils.ErrCodeInternal, "Failed to archive active client", err)
	}
	return c.JSON(utils.SuccessResponse(client))
}
