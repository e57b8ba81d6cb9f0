// Package domain contains the measurement order model, its lifecycle rules
// and the repository/service contracts.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rooflens/internal/measurement"
	"gorm.io/datatypes"
)

// Order is the single persistent record for a measurement, covering both the
// free instant estimate and the paid verified report it may be upgraded to.
type Order struct {
	ID                    snowflake.ID       `gorm:"primaryKey"`
	Address               string             `gorm:"type:text;not null"`
	NormalizedAddressHash string             `gorm:"type:text;not null;index"`
	Latitude              *float64           `gorm:""`
	Longitude             *float64           `gorm:""`
	Status                measurement.Status `gorm:"type:text;not null;index"`
	Source                measurement.Source `gorm:"type:text;not null"`

	// ExternalOrderID is the provider's order reference. Unique but nullable:
	// estimates never have one, and NULLs do not collide.
	ExternalOrderID *string `gorm:"type:text;uniqueIndex"`
	ReportType      *string `gorm:"type:text"` // BASIC | PREMIUM, paid orders only

	TotalAreaSqft    float64  `gorm:"not null;default:0"`
	PredominantPitch string   `gorm:"type:text;not null;default:Unknown"`
	ConfidenceScore  *float64 `gorm:""`
	Message          *string  `gorm:"type:text"`

	// Raw provider payloads, kept verbatim so estimates can be re-normalized
	// on cache hits and verified reports can be re-derived after normalizer
	// fixes.
	RawEstimatePayload datatypes.JSON `gorm:"type:jsonb"`
	RawReportPayload   datatypes.JSON `gorm:"type:jsonb"`

	LastCheckedAt *time.Time `gorm:""`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// Report types accepted by the verified-measurement tier.
const (
	ReportTypeBasic   = "BASIC"
	ReportTypePremium = "PREMIUM"
)

// NormalizeAddress canonicalizes an address for cache-key purposes:
// lowercased, surrounding whitespace stripped. Interior spacing is preserved
// so distinct addresses never collapse.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// AddressHash returns the cache key for an address: hex sha256 of its
// normalized form.
func AddressHash(address string) string {
	sum := sha256.Sum256([]byte(NormalizeAddress(address)))
	return hex.EncodeToString(sum[:])
}

// CanTransition reports whether moving from s to next is a legal forward
// step. Terminal states accept no transitions; re-applying the current
// status is treated as a no-op by callers, not a transition.
func CanTransition(s, next measurement.Status) bool {
	switch s {
	case measurement.StatusEstimate:
		return next == measurement.StatusPending
	case measurement.StatusPending:
		return next == measurement.StatusVerified || next == measurement.StatusFailed
	default:
		return false
	}
}
