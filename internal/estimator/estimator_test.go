package estimator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	"github.com/smallbiznis/rooflens/internal/measurement"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	orderrepo "github.com/smallbiznis/rooflens/internal/order/repository"
	"github.com/smallbiznis/rooflens/internal/providers/googlesolar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const insightsPayload = `{
	"imageryQuality": "HIGH",
	"solarPotential": {
		"wholeRoofStats": {"areaMeters2": 150.0},
		"roofSegmentStats": [
			{"pitchDegrees": 26.57, "azimuthDegrees": 180, "stats": {"areaMeters2": 150.0}}
		]
	}
}`

type solarStub struct {
	mu            sync.Mutex
	geocodeCalls  int
	insightsCalls int
	geocodeErr    error
	insightsErr   error
	payload       string
}

func (s *solarStub) Geocode(_ context.Context, _ string) (*googlesolar.GeocodeResult, error) {
	s.mu.Lock()
	s.geocodeCalls++
	s.mu.Unlock()
	if s.geocodeErr != nil {
		return nil, s.geocodeErr
	}
	return &googlesolar.GeocodeResult{Latitude: 39.78, Longitude: -89.65, FormattedAddress: "formatted"}, nil
}

func (s *solarStub) BuildingInsights(_ context.Context, _, _ float64) (json.RawMessage, error) {
	s.mu.Lock()
	s.insightsCalls++
	s.mu.Unlock()
	if s.insightsErr != nil {
		return nil, s.insightsErr
	}
	payload := s.payload
	if payload == "" {
		payload = insightsPayload
	}
	return json.RawMessage(payload), nil
}

func (s *solarStub) InsightsCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insightsCalls
}

func newTestEstimator(t *testing.T, cfg config.Config, clk clock.Clock, solar googlesolar.API) (*Service, orderdomain.Repository, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orderdomain.Order{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := orderrepo.Provide(db)
	svc := NewService(ServiceParam{
		Config: cfg,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Repo:   repo,
		Solar:  solar,
	})
	return svc, repo, db
}

func TestEstimateFreshFetchPersists(t *testing.T) {
	stub := &solarStub{}
	svc, _, db := newTestEstimator(t, config.Config{}, clock.NewFakeClock(time.Now()), stub)

	m, err := svc.Estimate(context.Background(), "123 Main St")
	require.NoError(t, err)
	assert.Equal(t, measurement.StatusEstimate, m.Status)
	assert.False(t, m.IsCached)
	assert.InDelta(t, 150.0*10.764, m.TotalAreaSqft, 0.1)
	assert.Equal(t, "6/12", m.PredominantPitch)

	var rows []orderdomain.Order
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, measurement.StatusEstimate, rows[0].Status)
	assert.NotEmpty(t, rows[0].RawEstimatePayload)
	assert.Equal(t, orderdomain.AddressHash("123 Main St"), rows[0].NormalizedAddressHash)
}

func TestEstimateCacheHitSkipsNetwork(t *testing.T) {
	stub := &solarStub{}
	svc, _, _ := newTestEstimator(t, config.Config{}, clock.NewFakeClock(time.Now()), stub)
	ctx := context.Background()

	_, err := svc.Estimate(ctx, "123 Main St")
	require.NoError(t, err)
	require.Equal(t, 1, stub.InsightsCalls())

	m, err := svc.Estimate(ctx, "123 Main St")
	require.NoError(t, err)
	assert.True(t, m.IsCached)
	assert.Equal(t, 1, stub.InsightsCalls(), "cache hit must not refetch")
}

func TestEstimateCacheKeyNormalization(t *testing.T) {
	stub := &solarStub{}
	svc, _, _ := newTestEstimator(t, config.Config{}, clock.NewFakeClock(time.Now()), stub)
	ctx := context.Background()

	_, err := svc.Estimate(ctx, "123 Main St")
	require.NoError(t, err)

	// Case and surrounding whitespace changes hit the same cache entry.
	m, err := svc.Estimate(ctx, "  123 MAIN ST  ")
	require.NoError(t, err)
	assert.True(t, m.IsCached)
	assert.Equal(t, 1, stub.InsightsCalls())
}

func TestEstimateTTLExpiry(t *testing.T) {
	stub := &solarStub{}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	svc, _, _ := newTestEstimator(t, config.Config{EstimateCacheTTL: 24 * time.Hour}, clk, stub)
	ctx := context.Background()

	_, err := svc.Estimate(ctx, "123 Main St")
	require.NoError(t, err)

	clk.Advance(23 * time.Hour)
	m, err := svc.Estimate(ctx, "123 Main St")
	require.NoError(t, err)
	assert.True(t, m.IsCached)
	require.Equal(t, 1, stub.InsightsCalls())

	clk.Advance(2 * time.Hour)
	m, err = svc.Estimate(ctx, "123 Main St")
	require.NoError(t, err)
	assert.False(t, m.IsCached)
	assert.Equal(t, 2, stub.InsightsCalls(), "expired entry must refetch")
}

func TestEstimateManualReviewDegradation(t *testing.T) {
	stub := &solarStub{insightsErr: googlesolar.ErrBuildingNotFound}
	svc, _, db := newTestEstimator(t, config.Config{}, clock.NewFakeClock(time.Now()), stub)

	m, err := svc.Estimate(context.Background(), "nowhere special")
	require.NoError(t, err)
	assert.Equal(t, measurement.StatusManualReview, m.Status)
	assert.Equal(t, "Unknown", m.PredominantPitch)
	require.NotNil(t, m.ConfidenceScore)
	assert.Equal(t, 0.0, *m.ConfidenceScore)
	require.NotNil(t, m.Message)

	// Degraded responses are not cached; the next request retries.
	var count int64
	require.NoError(t, db.Model(&orderdomain.Order{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestEstimateInvalidAddress(t *testing.T) {
	svc, _, _ := newTestEstimator(t, config.Config{}, clock.NewFakeClock(time.Now()), &solarStub{})
	_, err := svc.Estimate(context.Background(), "   ")
	assert.ErrorIs(t, err, orderdomain.ErrInvalidAddress)
}

func TestEstimateServesVerifiedReport(t *testing.T) {
	stub := &solarStub{}
	clk := clock.NewFakeClock(time.Now())
	svc, repo, _ := newTestEstimator(t, config.Config{}, clk, stub)
	ctx := context.Background()

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	externalID := "EV-777"
	require.NoError(t, repo.Create(ctx, &orderdomain.Order{
		ID:                    node.Generate(),
		Address:               "123 Main St",
		NormalizedAddressHash: orderdomain.AddressHash("123 Main St"),
		Status:                measurement.StatusVerified,
		Source:                measurement.SourceEagleView,
		ExternalOrderID:       &externalID,
		PredominantPitch:      "6/12",
		TotalAreaSqft:         2500,
		RawReportPayload:      datatypes.JSON(`{"totalArea": 2500, "predominantPitch": "6/12"}`),
		CreatedAt:             clk.Now(),
		UpdatedAt:             clk.Now(),
	}))

	m, err := svc.Estimate(ctx, "123 Main St")
	require.NoError(t, err)
	assert.Equal(t, measurement.StatusVerified, m.Status)
	assert.Equal(t, measurement.SourceEagleView, m.Source)
	assert.Equal(t, 2500.0, m.TotalAreaSqft)
	assert.True(t, m.IsCached)
	require.NotNil(t, m.ConfidenceScore)
	assert.Equal(t, 0.98, *m.ConfidenceScore)
	assert.Equal(t, 0, stub.InsightsCalls())
}
