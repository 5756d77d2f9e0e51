package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a tenant account (one client business) in the portal.
// Authentication itself lives outside this service; the JWT middleware only
// resolves tokens issued elsewhere back to a User row.
type User struct {
	gorm.Model

	Email         string `gorm:"uniqueIndex;not null" json:"email"`
	EmailVerified bool   `gorm:"default:false" json:"email_verified"`

	// Profile information
	Name        *string `json:"name,omitempty"`
	CompanyName *string `json:"company_name,omitempty"`
	Timezone    string  `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive     bool `gorm:"default:true" json:"is_active"`
	IsAdmin      bool `gorm:"default:false" json:"is_admin"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	// Call-tracking provider link. The refresh token is AES-encrypted with
	// the app encryption key before it is stored.
	TrackingAccountID    string `json:"tracking_account_id"`
	TrackingRefreshToken string `json:"-"`

	// Applied when normalizing caller numbers that carry no country code.
	DefaultCountryCode string `gorm:"default:'1'" json:"default_country_code"`

	// Follow-up reminder digests
	RemindersEnabled bool       `gorm:"default:false" json:"reminders_enabled"`
	ReminderEmail    string     `json:"reminder_email"`
	LastDigestSentAt *time.Time `json:"last_digest_sent_at,omitempty"`

	// Relations
	Activities    []CallActivity        `gorm:"foreignKey:UserID" json:"activities,omitempty"`
	Journeys      []Journey             `gorm:"foreignKey:UserID" json:"journeys,omitempty"`
	TemplateSteps []JourneyTemplateStep `gorm:"foreignKey:UserID" json:"template_steps,omitempty"`
}
