package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/measurement"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	"github.com/smallbiznis/rooflens/internal/providers/eagleview"
	"github.com/smallbiznis/rooflens/internal/providers/googlesolar"
	quotadomain "github.com/smallbiznis/rooflens/internal/quota/domain"
	pkgdb "github.com/smallbiznis/rooflens/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      orderdomain.Repository
	Gate      quotadomain.Gate
	Solar     googlesolar.API
	EagleView eagleview.API
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      orderdomain.Repository
	gate      quotadomain.Gate
	solar     googlesolar.API
	eagleview eagleview.API
}

func NewService(p ServiceParam) orderdomain.Service {
	return &Service{
		log:       p.Log.Named("order.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		gate:      p.Gate,
		solar:     p.Solar,
		eagleview: p.EagleView,
	}
}

// Create places a paid verified-measurement order. The quota gate is checked
// before anything costs money, and the daily counter is bumped only after
// the provider confirmed the order, so failed placements never consume
// budget.
func (s *Service) Create(ctx context.Context, req orderdomain.CreateOrderRequest) (*orderdomain.Order, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, orderdomain.ErrInvalidAddress
	}

	reportType := strings.ToUpper(strings.TrimSpace(req.ReportType))
	if reportType == "" {
		reportType = orderdomain.ReportTypePremium
	}
	if reportType != orderdomain.ReportTypeBasic && reportType != orderdomain.ReportTypePremium {
		return nil, orderdomain.ErrInvalidReportType
	}

	if err := s.gate.Authorize(ctx); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:                    s.genID.Generate(),
		Address:               address,
		NormalizedAddressHash: orderdomain.AddressHash(address),
		Status:                measurement.StatusPending,
		Source:                measurement.SourceEagleView,
		ReportType:            &reportType,
		PredominantPitch:      "Unknown",
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	// Baseline snapshot from the free tier, best-effort. The verified report
	// replaces these numbers later; until then the order carries the
	// instant-estimate view of the roof.
	s.snapshotEstimate(ctx, order)

	externalID, err := s.eagleview.PlaceOrder(ctx, address, order.Latitude, order.Longitude, reportType)
	if err != nil {
		return nil, err
	}
	order.ExternalOrderID = &externalID

	if err := s.repo.Create(ctx, order); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// Provider handed back an order id we already track.
			return s.repo.GetByExternalID(ctx, externalID)
		}
		return nil, err
	}

	if err := s.gate.Increment(ctx); err != nil {
		// The order is placed and recorded; a broken counter must not fail
		// it, but it does need eyes.
		s.log.Error("failed to increment daily order count",
			zap.String("external_order_id", externalID),
			zap.Error(err),
		)
	}

	s.log.Info("placed verified measurement order",
		zap.String("order_id", order.ID.String()),
		zap.String("external_order_id", externalID),
		zap.String("report_type", reportType),
	)
	return order, nil
}

// snapshotEstimate geocodes the address and, when possible, stores the free
// tier's view of the roof on the order. Every failure here is swallowed: the
// paid order can proceed on address alone.
func (s *Service) snapshotEstimate(ctx context.Context, order *orderdomain.Order) {
	geo, err := s.solar.Geocode(ctx, order.Address)
	if err != nil {
		s.log.Debug("geocode unavailable for order baseline", zap.Error(err))
		return
	}
	order.Latitude = &geo.Latitude
	order.Longitude = &geo.Longitude

	raw, err := s.solar.BuildingInsights(ctx, geo.Latitude, geo.Longitude)
	if err != nil {
		s.log.Debug("estimate snapshot unavailable for order baseline", zap.Error(err))
		return
	}

	m, err := googlesolar.Normalize(raw, order.Address)
	if err != nil {
		return
	}
	order.RawEstimatePayload = datatypes.JSON(raw)
	order.TotalAreaSqft = m.TotalAreaSqft
	order.PredominantPitch = m.PredominantPitch
	order.ConfidenceScore = m.ConfidenceScore
}

// GetByID resolves an order by internal snowflake id or by the provider's
// external order id, so callers can use whichever identifier they hold.
func (s *Service) GetByID(ctx context.Context, id string) (*orderdomain.Order, error) {
	id = strings.TrimSpace(id)
	if parsed, err := snowflake.ParseString(id); err == nil {
		ord, err := s.repo.GetByID(ctx, parsed)
		if !errors.Is(err, orderdomain.ErrOrderNotFound) {
			return ord, err
		}
	}
	return s.repo.GetByExternalID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]orderdomain.Order, error) {
	return s.repo.ListRecent(ctx, limit)
}
