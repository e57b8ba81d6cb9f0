package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rooflens/internal/measurement"
	"gorm.io/gorm"
)

var (
	ErrInvalidAddress    = errors.New("invalid_address")
	ErrInvalidReportType = errors.New("invalid_report_type")
	ErrOrderNotFound     = errors.New("order_not_found")
)

// CreateOrderRequest places a paid verified-measurement order.
type CreateOrderRequest struct {
	Address    string `json:"address"`
	ReportType string `json:"report_type"`
}

// OrderResponse is the API shape for a single order.
type OrderResponse struct {
	ID               string             `json:"id"`
	Address          string             `json:"address"`
	Status           measurement.Status `json:"status"`
	Source           measurement.Source `json:"source"`
	ExternalOrderID  *string            `json:"external_order_id,omitempty"`
	ReportType       *string            `json:"report_type,omitempty"`
	TotalAreaSqft    float64            `json:"total_area_sqft"`
	PredominantPitch string             `json:"predominant_pitch"`
	ConfidenceScore  *float64           `json:"confidence_score,omitempty"`
	Message          *string            `json:"message,omitempty"`
	CreatedAt        string             `json:"created_at"`
	UpdatedAt        string             `json:"updated_at"`
}

// Response converts an order to its API shape.
func (o *Order) Response() OrderResponse {
	return OrderResponse{
		ID:               o.ID.String(),
		Address:          o.Address,
		Status:           o.Status,
		Source:           o.Source,
		ExternalOrderID:  o.ExternalOrderID,
		ReportType:       o.ReportType,
		TotalAreaSqft:    o.TotalAreaSqft,
		PredominantPitch: o.PredominantPitch,
		ConfidenceScore:  o.ConfidenceScore,
		Message:          o.Message,
		CreatedAt:        o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Service is the order-facing API surface.
type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, limit int) ([]Order, error)
}

// Repository is the persistence surface for orders. Locked reads take the
// transaction they must lock within; everything else runs on the pooled
// handle.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id snowflake.ID) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	FindLatestByAddressHash(ctx context.Context, hash string) (*Order, error)
	ListRecent(ctx context.Context, limit int) ([]Order, error)
	FindPending(ctx context.Context, limit int) ([]Order, error)
	LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Order, error)
	Update(ctx context.Context, tx *gorm.DB, order *Order) error
}
