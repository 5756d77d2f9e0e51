package models

import (
	"time"

	"gorm.io/gorm"
)

// ActiveClient is a lead promoted through a service agreement, keyed by the
// caller identity so repeat agreements land on the same record.
type ActiveClient struct {
	gorm.Model
	UserID    uint   `gorm:"not null;uniqueIndex:idx_client_caller,priority:1" json:"user_id"`
	CallerKey string `gorm:"not null;uniqueIndex:idx_client_caller,priority:2" json:"caller_key"`

	ClientName  string `gorm:"not null" json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ClientEmail string `json:"client_email"`
	Source      string `json:"source"`

	// Snapshot of the funnel answers captured at agreement time.
	FunnelData string `gorm:"type:text" json:"funnel_data,omitempty"`

	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	ArchivedBy string     `json:"archived_by,omitempty"`

	Services []AgreedService `gorm:"foreignKey:ActiveClientID" json:"services,omitempty"`
}

// AgreedService is one service line on an active client.
type AgreedService struct {
	gorm.Model
	ActiveClientID uint `gorm:"not null;index" json:"active_client_id"`

	ServiceID   string  `gorm:"not null" json:"service_id"`
	ServiceName string  `json:"service_name"`
	AgreedPrice float64 `gorm:"not null" json:"agreed_price"`

	RedactedAt *time.Time `json:"redacted_at,omitempty"`
}
