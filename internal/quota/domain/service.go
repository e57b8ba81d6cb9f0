package domain

import (
	"context"
	"errors"
)

var (
	// ErrLiveModeDisabled rejects paid orders when the provider integration
	// is switched off entirely.
	ErrLiveModeDisabled = errors.New("live_mode_disabled")
	// ErrDailyLimitExceeded rejects paid orders once the UTC-day budget is
	// spent.
	ErrDailyLimitExceeded = errors.New("daily_order_limit_exceeded")
)

// Status reports the current day's budget position.
type Status struct {
	Day        string `json:"day"`
	Used       int    `json:"used"`
	DailyLimit int    `json:"daily_limit"`
	Remaining  int    `json:"remaining"`
}

// Gate guards every paid order placement. Authorize is checked before money
// is spent; Increment is called only after the provider confirmed the order,
// and only in live mode, so mock traffic never consumes budget.
type Gate interface {
	Authorize(ctx context.Context) error
	Increment(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
}
