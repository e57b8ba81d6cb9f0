package domain

import (
	"context"
	"time"
)

// RecordRequest captures one outbound provider call.
type RecordRequest struct {
	Provider     string
	Endpoint     string
	Method       string
	CostUSD      float64
	Address      string
	StatusCode   *int
	Success      bool
	ErrorMessage *string
	Latency      time.Duration
}

// ProviderSummary aggregates spend for a single provider.
type ProviderSummary struct {
	Provider     string  `json:"provider"`
	RequestCount int64   `json:"request_count"`
	SuccessCount int64   `json:"success_count"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// SummaryResponse is the cost report across all providers.
type SummaryResponse struct {
	Since        *time.Time        `json:"since,omitempty"`
	Providers    []ProviderSummary `json:"providers"`
	TotalCostUSD float64           `json:"total_cost_usd"`
}

// Recorder is the write side consumed by provider clients. Recording is
// best-effort: implementations log failures rather than propagate them, so a
// broken audit trail never blocks a measurement.
type Recorder interface {
	Record(ctx context.Context, req RecordRequest)
}

// Service exposes usage recording plus the aggregated cost report.
type Service interface {
	Recorder
	Summary(ctx context.Context, since *time.Time) (SummaryResponse, error)
}
