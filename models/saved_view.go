package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

// LeadFilters is the filter set shared by the lead list, CSV export and
// saved views. Empty fields mean "no constraint".
type LeadFilters struct {
	Search       string `json:"search,omitempty"`
	DateFrom     string `json:"date_from,omitempty"` // YYYY-MM-DD or RFC3339
	DateTo       string `json:"date_to,omitempty"`
	CallerType   string `json:"caller_type,omitempty"`
	Category     string `json:"category,omitempty"`
	ActivityType string `json:"activity_type,omitempty"`
	Source       string `json:"source,omitempty"`
}

// SavedView is a per-user stored filter preset for the leads table.
type SavedView struct {
	gorm.Model
	UserID  uint   `gorm:"not null;index" json:"user_id"`
	Name    string `gorm:"not null" json:"name"`
	Filters string `gorm:"type:text" json:"-"` // JSON-encoded LeadFilters
}

func (v *SavedView) SetFilters(f LeadFilters) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	v.Filters = string(raw)
	return nil
}

func (v *SavedView) GetFilters() (LeadFilters, error) {
	var f LeadFilters
	if v.Filters == "" {
		return f, nil
	}
	err := json.Unmarshal([]byte(v.Filters), &f)
	return f, err
}

// MarshalJSON inlines the decoded filters so clients never see the raw
// JSON string column.
func (v SavedView) MarshalJSON() ([]byte, error) {
	f, err := v.GetFilters()
	if err != nil {
		return nil, err
	}
	type alias struct {
		ID        uint        `json:"id"`
		UserID    uint        `json:"user_id"`
		Name      string      `json:"name"`
		Filters   LeadFilters `json:"filters"`
		CreatedAt string      `json:"created_at"`
	}
	return json.Marshal(alias{
		ID:        v.ID,
		UserID:    v.UserID,
		Name:      v.Name,
		Filters:   f,
		CreatedAt: v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}
