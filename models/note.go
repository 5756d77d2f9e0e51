package models

import "gorm.io/gorm"

// ActivityNote is a free-text note an operator attaches to one activity.
type ActivityNote struct {
	gorm.Model
	ActivityID uint   `gorm:"not null;index" json:"activity_id"`
	AuthorID   uint   `gorm:"not null" json:"author_id"`
	AuthorName string `json:"author_name"`
	Body       string `gorm:"type:text;not null" json:"body"`
}
