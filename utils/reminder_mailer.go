package utils

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"clientportal/config"
	"clientportal/models"

	"github.com/badoux/checkmail"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// ReminderMailer sends tenants a daily digest of journey steps coming due.
type ReminderMailer struct {
	db        *gorm.DB
	fromEmail string
}

func NewReminderMailer(db *gorm.DB) *ReminderMailer {
	return &ReminderMailer{
		db:        db,
		fromEmail: config.AppConfig.FromEmail,
	}
}

// DueSteps returns the tenant's journey steps due within the window,
// skipping paused and archived journeys.
func (rm *ReminderMailer) DueSteps(userID uint, now time.Time, window time.Duration) ([]models.JourneyStep, map[uint]models.Journey, error) {
	var journeys []models.Journey
	if err := rm.db.
		Where("user_id = ? AND status != ? AND paused = ?", userID, models.JourneyStatusArchived, false).
		Where("next_action_at IS NOT NULL AND next_action_at <= ?", now.Add(window)).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Find(&journeys).Error; err != nil {
		return nil, nil, err
	}

	byJourney := make(map[uint]models.Journey, len(journeys))
	var due []models.JourneyStep
	for _, j := range journeys {
		byJourney[j.ID] = j
		for _, s := range j.Steps {
			if s.CompletedAt != nil || s.DueAt == nil {
				continue
			}
			if s.DueAt.Before(now.Add(window)) {
				due = append(due, s)
			}
		}
	}
	return due, byJourney, nil
}

// SendDigest emails one tenant the list of follow-ups due in the next 24h.
// No-op when the tenant has reminders off, no address, or nothing due.
func (rm *ReminderMailer) SendDigest(user *models.User, now time.Time) error {
	if !user.RemindersEnabled || user.ReminderEmail == "" {
		return nil
	}
	if err := checkmail.ValidateFormat(user.ReminderEmail); err != nil {
		return fmt.Errorf("invalid reminder address %q: %w", user.ReminderEmail, err)
	}

	due, byJourney, err := rm.DueSteps(user.ID, now, 24*time.Hour)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var body strings.Builder
	body.WriteString("Follow-ups due in the next 24 hours:\n\n")
	for _, s := range due {
		j := byJourney[s.JourneyID]
		channel := s.Channel
		if channel == "" {
			channel = "follow up"
		}
		body.WriteString(fmt.Sprintf("- %s — %s (%s), due %s\n",
			j.ClientName, s.Label, channel, s.DueAt.UTC().Format("Mon Jan 2 15:04 MST")))
	}

	m := gomail.NewMessage()
	m.SetHeader("From", rm.fromEmail)
	m.SetHeader("To", user.ReminderEmail)
	m.SetHeader("Subject", fmt.Sprintf("%d follow-ups due today", len(due)))
	m.SetBody("text/plain", body.String())

	dialer := gomail.NewDialer(
		config.AppConfig.SMTPHost,
		config.AppConfig.SMTPPort,
		config.AppConfig.SMTPUsername,
		config.AppConfig.SMTPPassword,
	)
	dialer.TLSConfig = &tls.Config{ServerName: config.AppConfig.SMTPHost}

	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send digest to %s: %w", user.ReminderEmail, err)
	}

	return rm.db.Model(user).Update("last_digest_sent_at", now).Error
}
