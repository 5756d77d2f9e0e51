package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Journey statuses.
const (
	JourneyStatusPending      = "pending"
	JourneyStatusInProgress   = "in_progress"
	JourneyStatusActiveClient = "active_client"
	JourneyStatusWon          = "won"
	JourneyStatusLost         = "lost"
	JourneyStatusArchived     = "archived"
)

var validJourneyStatuses = map[string]bool{
	JourneyStatusPending:      true,
	JourneyStatusInProgress:   true,
	JourneyStatusActiveClient: true,
	JourneyStatusWon:          true,
	JourneyStatusLost:         true,
	JourneyStatusArchived:     true,
}

// IsValidJourneyStatus reports whether s is a known journey status.
func IsValidJourneyStatus(s string) bool {
	return validJourneyStatuses[s]
}

// StringList stores an ordered list of strings as a JSON text column so the
// same model runs on Postgres and sqlite.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
}

// Journey is a long-lived follow-up record for one lead or active client.
// Exactly one of LeadCallID / ActiveClientID is set at creation.
type Journey struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	LeadCallID     *uint `gorm:"index" json:"lead_call_id,omitempty"`
	ActiveClientID *uint `gorm:"index" json:"active_client_id,omitempty"`

	ClientName  string `gorm:"not null" json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ClientEmail string `json:"client_email"`

	Symptoms         StringList `gorm:"type:text" json:"symptoms"`
	SymptomsRedacted bool       `gorm:"default:false" json:"symptoms_redacted"`

	Status string `gorm:"default:'pending';index" json:"status"`
	// Status before archival, so restore can re-establish it.
	PrevStatus string `json:"-"`
	Paused     bool   `gorm:"default:false" json:"paused"`

	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	ArchivedBy   string     `json:"archived_by,omitempty"`
	NextActionAt *time.Time `gorm:"index" json:"next_action_at,omitempty"`

	Steps []JourneyStep `gorm:"foreignKey:JourneyID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

// RecomputeNextAction sets NextActionAt to the earliest due date among
// steps that are not completed, or nil when none qualifies.
func (j *Journey) RecomputeNextAction() {
	var next *time.Time
	for i := range j.Steps {
		s := &j.Steps[i]
		if s.CompletedAt != nil || s.DueAt == nil {
			continue
		}
		if next == nil || s.DueAt.Before(*next) {
			t := *s.DueAt
			next = &t
		}
	}
	j.NextActionAt = next
}

// CanTransition reports whether a PATCH may move the journey from its
// current status to target. Archival and restore go through their own
// endpoints, never through a plain status update.
func (j *Journey) CanTransition(target string) bool {
	if !IsValidJourneyStatus(target) || target == JourneyStatusArchived {
		return false
	}
	return j.Status != JourneyStatusArchived
}

// JourneyStep is one follow-up action inside a journey. Position is unique
// per journey and orders the steps; the current step is the first one
// without a completion timestamp.
type JourneyStep struct {
	gorm.Model
	JourneyID uint `gorm:"not null;uniqueIndex:idx_step_position,priority:1" json:"journey_id"`
	Position  int  `gorm:"not null;uniqueIndex:idx_step_position,priority:2" json:"position"`

	Label       string `gorm:"not null" json:"label"`
	Channel     string `json:"channel"` // call, text, email, ...
	Message     string `gorm:"type:text" json:"message"`
	OffsetWeeks int    `gorm:"default:0" json:"offset_weeks"`

	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `gorm:"type:text" json:"notes"`
}

// JourneyTemplateStep is one row of the tenant's follow-up template.
// Applying the template materializes each row into a JourneyStep with
// due_at = journey.created_at + offset_weeks*7d, truncated to the minute.
type JourneyTemplateStep struct {
	gorm.Model
	UserID   uint `gorm:"not null;index" json:"user_id"`
	Position int  `gorm:"not null" json:"position"`

	Label       string `gorm:"not null" json:"label"`
	Channel     string `json:"channel"`
	Message     string `gorm:"type:text" json:"message"`
	OffsetWeeks int    `gorm:"default:0" json:"offset_weeks"`
}
