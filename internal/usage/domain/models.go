// Package domain contains persistence models for outbound API usage tracking.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIUsageLog stores a single outbound call to an external measurement
// provider, successful or not, together with its billed cost.
type APIUsageLog struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Provider     string       `gorm:"type:text;not null;index"`
	Endpoint     string       `gorm:"type:text;not null"`
	Method       string       `gorm:"type:text;not null"`
	CostUSD      float64      `gorm:"not null"`
	Address      *string      `gorm:"type:text"`
	StatusCode   *int         `gorm:""`
	Success      bool         `gorm:"not null"`
	ErrorMessage *string      `gorm:"type:text"`
	LatencyMs    *int64       `gorm:""`
	CreatedAt    time.Time    `gorm:"not null;index"`
}

// TableName sets the database table name.
func (APIUsageLog) TableName() string { return "api_usage_logs" }
