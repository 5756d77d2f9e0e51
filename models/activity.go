package models

import (
	"time"

	"gorm.io/gorm"
)

// Activity types as delivered by the call-tracking provider.
const (
	ActivityTypeCall      = "call"
	ActivityTypeSMS       = "sms"
	ActivityTypeForm      = "form"
	ActivityTypeVoicemail = "voicemail"
)

// Workflow categories. Every activity carries exactly one.
const (
	CategoryConverted      = "converted"
	CategoryWarm           = "warm"
	CategoryVeryGood       = "very_good"
	CategoryApplicant      = "applicant"
	CategoryNeedsAttention = "needs_attention"
	CategoryUnanswered     = "unanswered"
	CategoryNotAFit        = "not_a_fit"
	CategorySpam           = "spam"
	CategoryNeutral        = "neutral"
	CategoryUnreviewed     = "unreviewed"
)

const (
	CategorySourceAuto   = "auto"
	CategorySourceManual = "manual"
)

// Caller types derived by the identity resolver.
const (
	CallerTypeNew       = "new"
	CallerTypeRepeat    = "repeat"
	CallerTypeReturning = "returning_customer"
)

var validCategories = map[string]bool{
	CategoryConverted:      true,
	CategoryWarm:           true,
	CategoryVeryGood:       true,
	CategoryApplicant:      true,
	CategoryNeedsAttention: true,
	CategoryUnanswered:     true,
	CategoryNotAFit:        true,
	CategorySpam:           true,
	CategoryNeutral:        true,
	CategoryUnreviewed:     true,
}

// IsValidCategory reports whether s is one of the workflow categories.
func IsValidCategory(s string) bool {
	return validCategories[s]
}

// CallActivity is one contact event (call, SMS, form submission or
// voicemail) pulled from the call-tracking provider, together with its
// per-lead workflow state. The activity is the lead once ingested.
type CallActivity struct {
	gorm.Model
	UserID     uint   `gorm:"not null;uniqueIndex:idx_activity_external,priority:1" json:"user_id"`
	ExternalID string `gorm:"not null;uniqueIndex:idx_activity_external,priority:2" json:"external_id"`

	ActivityType string `gorm:"not null;index" json:"activity_type"` // call, sms, form, voicemail
	Direction    string `gorm:"not null" json:"direction"`           // inbound, outbound

	CallerName   string `json:"caller_name"`
	CallerNumber string `gorm:"index" json:"caller_number"` // E.164
	CallerEmail  string `json:"caller_email"`
	CallerKey    string `gorm:"index" json:"caller_key"` // hash of normalized phone or email

	Source    string `gorm:"index" json:"source"`
	SourceKey string `json:"source_key"`
	Region    string `json:"region"`

	StartedAt     time.Time `gorm:"not null;index" json:"started_at"`
	DurationSec   int       `gorm:"default:0" json:"duration_sec"`
	Transcript    string    `gorm:"type:text" json:"transcript"`
	RecordingURL  string    `json:"recording_url"`
	TranscriptURL string    `json:"transcript_url"`
	Message       string    `gorm:"type:text" json:"message"`
	ContactID     string    `json:"contact_id"`

	// Workflow state
	Rating                int    `gorm:"default:0" json:"rating"` // 0 = unrated, 1..5
	Category              string `gorm:"default:'unreviewed';index" json:"category"`
	CategorySource        string `gorm:"default:'auto'" json:"category_source"` // auto, manual
	ClassificationSummary string `gorm:"type:text" json:"classification_summary"`
	IsFlagged             bool   `gorm:"default:false" json:"is_flagged"`

	// Identity
	CallerType   string    `gorm:"default:'new'" json:"caller_type"` // new, repeat, returning_customer
	CallSequence int       `gorm:"default:1" json:"call_sequence"`
	LastSyncedAt time.Time `json:"last_synced_at"`

	// Relations
	Notes []ActivityNote `gorm:"foreignKey:ActivityID" json:"notes,omitempty"`
}

// ManuallyReviewed reports whether the classifier must leave the category
// alone: a manual category or any rating pins it.
func (a *CallActivity) ManuallyReviewed() bool {
	return a.CategorySource == CategorySourceManual || a.Rating >= 1
}

// Caller groups activities sharing one normalized phone (or email) key.
type Caller struct {
	gorm.Model
	UserID    uint   `gorm:"not null;uniqueIndex:idx_caller_key,priority:1" json:"user_id"`
	CallerKey string `gorm:"not null;uniqueIndex:idx_caller_key,priority:2" json:"caller_key"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	TotalCount  int       `gorm:"default:0" json:"total_count"`
}
