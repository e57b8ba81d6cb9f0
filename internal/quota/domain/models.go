// Package domain contains the daily spend-quota model and gate contract.
package domain

import "time"

// DailyOrderCount tracks how many paid verified-measurement orders were
// placed on a given UTC day. One row per day; the counter rolls over at UTC
// midnight simply because the next day keys a fresh row.
type DailyOrderCount struct {
	Day       string    `gorm:"primaryKey;type:text"` // YYYY-MM-DD, UTC
	Count     int       `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (DailyOrderCount) TableName() string { return "daily_order_counts" }
