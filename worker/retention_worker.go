package worker

import (
	"context"
	"log"
	"time"

	"clientportal/models"
	"clientportal/utils"

	"gorm.io/gorm"
)

// Personal data on closed-out records is kept this long before redaction.
const retentionWindow = 90 * 24 * time.Hour

const digestInterval = 24 * time.Hour

// RetentionWorker redacts personal data past the retention window and
// dispatches follow-up reminder digests while it is at it.
type RetentionWorker struct {
	DB       *gorm.DB
	Reminder *utils.ReminderMailer
	Logger   *log.Logger
}

func NewRetentionWorker(db *gorm.DB, reminder *utils.ReminderMailer, logger *log.Logger) *RetentionWorker {
	return &RetentionWorker{
		DB:       db,
		Reminder: reminder,
		Logger:   logger,
	}
}

func (rw *RetentionWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	rw.Logger.Println("Retention worker started")

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Retention worker shutting down...")
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if err := RunRetentionPass(rw.DB, now); err != nil {
				rw.Logger.Printf("Retention pass failed: %v", err)
			}
			rw.sendDigests(now)
		}
	}
}

// RunRetentionPass redacts symptoms on journeys that have been archived or
// lost for longer than the retention window, and agreed prices on archived
// active clients past the same window. Running it twice is a no-op.
func RunRetentionPass(db *gorm.DB, now time.Time) error {
	cutoff := now.Add(-retentionWindow)

	var journeys []models.Journey
	if err := db.Where("status IN ? AND symptoms_redacted = ?",
		[]string{models.JourneyStatusArchived, models.JourneyStatusLost}, false).
		Find(&journeys).Error; err != nil {
		return err
	}
	for i := range journeys {
		j := &journeys[i]
		closedAt := j.UpdatedAt
		if j.ArchivedAt != nil {
			closedAt = *j.ArchivedAt
		}
		if closedAt.After(cutoff) {
			continue
		}
		if err := db.Model(j).Updates(map[string]interface{}{
			"symptoms":          models.StringList{},
			"symptoms_redacted": true,
		}).Error; err != nil {
			return err
		}
	}

	var clients []models.ActiveClient
	if err := db.Where("archived_at IS NOT NULL").Find(&clients).Error; err != nil {
		return err
	}
	for i := range clients {
		cl := &clients[i]
		if cl.ArchivedAt.After(cutoff) {
			continue
		}
		if err := db.Model(&models.AgreedService{}).
			Where("active_client_id = ? AND redacted_at IS NULL", cl.ID).
			Updates(map[string]interface{}{
				"agreed_price": 0,
				"redacted_at":  now,
			}).Error; err != nil {
			return err
		}
	}

	return nil
}

func (rw *RetentionWorker) sendDigests(now time.Time) {
	var users []models.User
	if err := rw.DB.Where("reminders_enabled = ?", true).Find(&users).Error; err != nil {
		rw.Logger.Printf("Failed to fetch reminder recipients: %v", err)
		return
	}

	for i := range users {
		user := &users[i]
		if user.LastDigestSentAt != nil && now.Sub(*user.LastDigestSentAt) < digestInterval {
			continue
		}
		if err := rw.Reminder.SendDigest(user, now); err != nil {
			rw.Logger.Printf("Failed to send digest to user %d: %v", user.ID, err)
		}
	}
}
