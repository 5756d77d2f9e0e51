package models

import (
	"strings"

	"gorm.io/gorm"
)

// Tag is a tenant-scoped label. Names are unique per tenant ignoring case;
// NameLower backs the unique index so Postgres and sqlite behave alike.
type Tag struct {
	gorm.Model
	UserID    uint   `gorm:"not null;uniqueIndex:idx_tag_name,priority:1" json:"user_id"`
	Name      string `gorm:"not null" json:"name"`
	NameLower string `gorm:"not null;uniqueIndex:idx_tag_name,priority:2" json:"-"`
	Color     string `json:"color"`
}

func (t *Tag) BeforeSave(tx *gorm.DB) error {
	t.NameLower = strings.ToLower(strings.TrimSpace(t.Name))
	return nil
}

// ActivityTag joins tags to activities.
type ActivityTag struct {
	gorm.Model
	ActivityID uint `gorm:"not null;uniqueIndex:idx_activity_tag,priority:1" json:"activity_id"`
	TagID      uint `gorm:"not null;uniqueIndex:idx_activity_tag,priority:2" json:"tag_id"`
}
