package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/rooflens/internal/clock"
	usagedomain "github.com/smallbiznis/rooflens/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clk clock.Clock) (usagedomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usagedomain.APIUsageLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	return svc, db
}

func TestRecordPersistsRow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, clock.NewFakeClock(now))

	status := 200
	svc.Record(context.Background(), usagedomain.RecordRequest{
		Provider:   "google_solar",
		Endpoint:   "/v1/buildingInsights:findClosest",
		Method:     "GET",
		CostUSD:    0.01,
		Address:    "123 Main St",
		StatusCode: &status,
		Success:    true,
		Latency:    42 * time.Millisecond,
	})

	var rows []usagedomain.APIUsageLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "google_solar", rows[0].Provider)
	assert.Equal(t, 0.01, rows[0].CostUSD)
	assert.True(t, rows[0].Success)
	require.NotNil(t, rows[0].Address)
	assert.Equal(t, "123 Main St", *rows[0].Address)
	require.NotNil(t, rows[0].LatencyMs)
	assert.EqualValues(t, 42, *rows[0].LatencyMs)
	assert.True(t, rows[0].CreatedAt.Equal(now))
}

func TestSummaryAggregatesPerProvider(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	svc.Record(ctx, usagedomain.RecordRequest{Provider: "google_solar", Endpoint: "/geocode", Method: "GET", CostUSD: 0.005, Success: true})
	svc.Record(ctx, usagedomain.RecordRequest{Provider: "google_solar", Endpoint: "/solar", Method: "GET", CostUSD: 0.01, Success: false})
	svc.Record(ctx, usagedomain.RecordRequest{Provider: "eagleview", Endpoint: "/orders", Method: "POST", CostUSD: 30, Success: true})

	summary, err := svc.Summary(ctx, nil)
	require.NoError(t, err)
	require.Len(t, summary.Providers, 2)

	// Providers come back in lexical order.
	assert.Equal(t, "eagleview", summary.Providers[0].Provider)
	assert.EqualValues(t, 1, summary.Providers[0].RequestCount)
	assert.Equal(t, 30.0, summary.Providers[0].TotalCostUSD)

	assert.Equal(t, "google_solar", summary.Providers[1].Provider)
	assert.EqualValues(t, 2, summary.Providers[1].RequestCount)
	assert.EqualValues(t, 1, summary.Providers[1].SuccessCount)
	assert.InDelta(t, 0.015, summary.Providers[1].TotalCostUSD, 1e-9)

	assert.InDelta(t, 30.015, summary.TotalCostUSD, 1e-9)
}

func TestSummarySinceFilter(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	svc.Record(ctx, usagedomain.RecordRequest{Provider: "eagleview", Endpoint: "/orders", Method: "POST", CostUSD: 30, Success: true})

	clk.Advance(48 * time.Hour)
	svc.Record(ctx, usagedomain.RecordRequest{Provider: "eagleview", Endpoint: "/orders", Method: "POST", CostUSD: 15, Success: true})

	since := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	summary, err := svc.Summary(ctx, &since)
	require.NoError(t, err)
	require.Len(t, summary.Providers, 1)
	assert.EqualValues(t, 1, summary.Providers[0].RequestCount)
	assert.Equal(t, 15.0, summary.TotalCostUSD)
}
