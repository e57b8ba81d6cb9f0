package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/measurement"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	orderrepo "github.com/smallbiznis/rooflens/internal/order/repository"
	"github.com/smallbiznis/rooflens/internal/providers/eagleview"
	"github.com/smallbiznis/rooflens/internal/providers/googlesolar"
	quotadomain "github.com/smallbiznis/rooflens/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gateStub struct {
	authorizeErr error
	incremented  int
}

func (g *gateStub) Authorize(context.Context) error { return g.authorizeErr }
func (g *gateStub) Increment(context.Context) error {
	g.incremented++
	return nil
}
func (g *gateStub) Status(context.Context) (quotadomain.Status, error) {
	return quotadomain.Status{}, nil
}

type solarStub struct {
	geocodeErr error
}

func (s *solarStub) Geocode(context.Context, string) (*googlesolar.GeocodeResult, error) {
	if s.geocodeErr != nil {
		return nil, s.geocodeErr
	}
	return &googlesolar.GeocodeResult{Latitude: 39.78, Longitude: -89.65}, nil
}

func (s *solarStub) BuildingInsights(context.Context, float64, float64) (json.RawMessage, error) {
	return json.RawMessage(`{
		"imageryQuality": "HIGH",
		"solarPotential": {
			"wholeRoofStats": {"areaMeters2": 200.0},
			"roofSegmentStats": [
				{"pitchDegrees": 26.57, "azimuthDegrees": 90, "stats": {"areaMeters2": 200.0}}
			]
		}
	}`), nil
}

type eagleviewStub struct {
	orderID    string
	placeErr   error
	placeCalls int
	lastType   string
}

func (e *eagleviewStub) PlaceOrder(_ context.Context, _ string, _, _ *float64, reportType string) (string, error) {
	e.placeCalls++
	e.lastType = reportType
	if e.placeErr != nil {
		return "", e.placeErr
	}
	return e.orderID, nil
}

func (e *eagleviewStub) PollStatus(context.Context, string) (eagleview.OrderState, error) {
	return eagleview.StatePending, nil
}

func (e *eagleviewStub) FetchReport(context.Context, string) (json.RawMessage, error) {
	return nil, eagleview.ErrReportFetch
}

func newTestService(t *testing.T, gate *gateStub, solar *solarStub, ev *eagleviewStub) (orderdomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orderdomain.Order{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Now()),
		Repo:      orderrepo.Provide(db),
		Gate:      gate,
		Solar:     solar,
		EagleView: ev,
	})
	return svc, db
}

func TestCreateOrder(t *testing.T) {
	gate := &gateStub{}
	ev := &eagleviewStub{orderID: "EV-1001"}
	svc, db := newTestService(t, gate, &solarStub{}, ev)

	ord, err := svc.Create(context.Background(), orderdomain.CreateOrderRequest{
		Address:    "  123 Main St  ",
		ReportType: "premium",
	})
	require.NoError(t, err)
	assert.Equal(t, measurement.StatusPending, ord.Status)
	assert.Equal(t, measurement.SourceEagleView, ord.Source)
	assert.Equal(t, "123 Main St", ord.Address)
	require.NotNil(t, ord.ExternalOrderID)
	assert.Equal(t, "EV-1001", *ord.ExternalOrderID)
	assert.Equal(t, orderdomain.ReportTypePremium, ev.lastType)
	assert.Equal(t, 1, gate.incremented, "counter bumps once after confirmed placement")

	// The free-tier baseline rode along.
	require.NotNil(t, ord.Latitude)
	assert.Equal(t, "6/12", ord.PredominantPitch)
	assert.NotEmpty(t, ord.RawEstimatePayload)

	var count int64
	require.NoError(t, db.Model(&orderdomain.Order{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateOrderDefaultsToPremium(t *testing.T) {
	ev := &eagleviewStub{orderID: "EV-1002"}
	svc, _ := newTestService(t, &gateStub{}, &solarStub{}, ev)

	_, err := svc.Create(context.Background(), orderdomain.CreateOrderRequest{Address: "123 Main St"})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.ReportTypePremium, ev.lastType)
}

func TestCreateOrderValidation(t *testing.T) {
	gate := &gateStub{}
	ev := &eagleviewStub{orderID: "EV-1003"}
	svc, _ := newTestService(t, gate, &solarStub{}, ev)
	ctx := context.Background()

	_, err := svc.Create(ctx, orderdomain.CreateOrderRequest{Address: "   "})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidAddress)

	_, err = svc.Create(ctx, orderdomain.CreateOrderRequest{Address: "123 Main St", ReportType: "DELUXE"})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidReportType)

	assert.Equal(t, 0, ev.placeCalls)
	assert.Equal(t, 0, gate.incremented)
}

func TestCreateOrderQuotaRejected(t *testing.T) {
	gate := &gateStub{authorizeErr: quotadomain.ErrDailyLimitExceeded}
	ev := &eagleviewStub{orderID: "EV-1004"}
	svc, db := newTestService(t, gate, &solarStub{}, ev)

	_, err := svc.Create(context.Background(), orderdomain.CreateOrderRequest{Address: "123 Main St"})
	assert.ErrorIs(t, err, quotadomain.ErrDailyLimitExceeded)
	assert.Equal(t, 0, ev.placeCalls, "rejected orders never reach the provider")

	var count int64
	require.NoError(t, db.Model(&orderdomain.Order{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestCreateOrderSnapshotFailureIsNotFatal(t *testing.T) {
	ev := &eagleviewStub{orderID: "EV-1005"}
	svc, _ := newTestService(t, &gateStub{}, &solarStub{geocodeErr: googlesolar.ErrAddressNotFound}, ev)

	ord, err := svc.Create(context.Background(), orderdomain.CreateOrderRequest{Address: "123 Main St"})
	require.NoError(t, err)
	assert.Nil(t, ord.Latitude)
	assert.Equal(t, "Unknown", ord.PredominantPitch)
	assert.Equal(t, measurement.StatusPending, ord.Status)
}

func TestCreateOrderPlacementFailure(t *testing.T) {
	gate := &gateStub{}
	placeErr := errors.New("provider down")
	svc, db := newTestService(t, gate, &solarStub{}, &eagleviewStub{placeErr: placeErr})

	_, err := svc.Create(context.Background(), orderdomain.CreateOrderRequest{Address: "123 Main St"})
	assert.ErrorIs(t, err, placeErr)
	assert.Equal(t, 0, gate.incremented, "failed placements never consume quota")

	var count int64
	require.NoError(t, db.Model(&orderdomain.Order{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestCreateOrderDuplicateExternalID(t *testing.T) {
	gate := &gateStub{}
	ev := &eagleviewStub{orderID: "EV-1006"}
	svc, _ := newTestService(t, gate, &solarStub{}, ev)
	ctx := context.Background()

	first, err := svc.Create(ctx, orderdomain.CreateOrderRequest{Address: "123 Main St"})
	require.NoError(t, err)

	second, err := svc.Create(ctx, orderdomain.CreateOrderRequest{Address: "123 Main St"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same external order id resolves to the existing row")
}

func TestGetByID(t *testing.T) {
	svc, _ := newTestService(t, &gateStub{}, &solarStub{}, &eagleviewStub{orderID: "EV-1007"})
	ctx := context.Background()

	ord, err := svc.Create(ctx, orderdomain.CreateOrderRequest{Address: "123 Main St"})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, ord.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ord.ID, got.ID)

	_, err = svc.GetByID(ctx, "not-a-snowflake")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestGetByExternalOrderID(t *testing.T) {
	svc, _ := newTestService(t, &gateStub{}, &solarStub{}, &eagleviewStub{orderID: "EV-1009"})
	ctx := context.Background()

	ord, err := svc.Create(ctx, orderdomain.CreateOrderRequest{Address: "123 Main St"})
	require.NoError(t, err)

	// The provider's order id resolves to the same row as the internal id.
	got, err := svc.GetByID(ctx, "EV-1009")
	require.NoError(t, err)
	assert.Equal(t, ord.ID, got.ID)

	got, err = svc.GetByID(ctx, " EV-1009 ")
	require.NoError(t, err)
	assert.Equal(t, ord.ID, got.ID)

	_, err = svc.GetByID(ctx, "EV-9999")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestList(t *testing.T) {
	svc, _ := newTestService(t, &gateStub{}, &solarStub{}, &eagleviewStub{orderID: "EV-1008"})
	ctx := context.Background()

	_, err := svc.Create(ctx, orderdomain.CreateOrderRequest{Address: "123 Main St"})
	require.NoError(t, err)

	orders, err := svc.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
