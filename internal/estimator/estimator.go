// Package estimator implements the free instant-estimate tier: geocode,
// fetch building insights, normalize, and cache by address hash.
package estimator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	"github.com/smallbiznis/rooflens/internal/measurement"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	"github.com/smallbiznis/rooflens/internal/providers/eagleview"
	"github.com/smallbiznis/rooflens/internal/providers/googlesolar"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Messages returned with manual-review responses.
const (
	msgAddressNotFound  = "Address could not be located. Please verify the address and try again."
	msgNoRoofData       = "No roof data is available for this address. A manual review is required."
	msgEstimateFailed   = "Automated estimate is unavailable for this address. A manual review is required."
	msgEstimateDisabled = "Instant estimates are not configured. A manual review is required."
)

type ServiceParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   orderdomain.Repository
	Solar  googlesolar.API
}

type Service struct {
	cfg   config.Config
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  orderdomain.Repository
	solar googlesolar.API
}

func NewService(p ServiceParam) *Service {
	return &Service{
		cfg:   p.Config,
		log:   p.Log.Named("estimator"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		solar: p.Solar,
	}
}

// Estimate returns a roof measurement for the address, serving from cache
// when a prior order for the same normalized address exists. Cached rows are
// re-normalized from their stored raw payload on every hit, so normalizer
// improvements apply retroactively without refetching.
func (s *Service) Estimate(ctx context.Context, address string) (measurement.Measurement, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return measurement.Measurement{}, orderdomain.ErrInvalidAddress
	}

	hash := orderdomain.AddressHash(address)
	cached, err := s.repo.FindLatestByAddressHash(ctx, hash)
	if err != nil {
		return measurement.Measurement{}, err
	}
	if cached != nil {
		if m, ok := s.fromCache(cached); ok {
			return m, nil
		}
	}

	return s.fetchFresh(ctx, address, hash)
}

// fromCache tries to serve a measurement from a stored order. A miss (no
// usable payload, or an expired estimate) falls back to a fresh fetch.
func (s *Service) fromCache(cached *orderdomain.Order) (measurement.Measurement, bool) {
	// A completed verified report always wins over an estimate.
	if cached.Status == measurement.StatusVerified && len(cached.RawReportPayload) > 0 {
		externalID := ""
		if cached.ExternalOrderID != nil {
			externalID = *cached.ExternalOrderID
		}
		m, err := eagleview.NormalizeReport(json.RawMessage(cached.RawReportPayload), cached.Address, externalID)
		if err != nil {
			s.log.Warn("stored report payload no longer normalizes",
				zap.String("order_id", cached.ID.String()),
				zap.Error(err),
			)
			return measurement.Measurement{}, false
		}
		m.IsCached = true
		return m, true
	}

	if len(cached.RawEstimatePayload) == 0 {
		return measurement.Measurement{}, false
	}
	if s.expired(cached) {
		return measurement.Measurement{}, false
	}

	m, err := googlesolar.Normalize(json.RawMessage(cached.RawEstimatePayload), cached.Address)
	if err != nil {
		s.log.Warn("stored estimate payload no longer normalizes",
			zap.String("order_id", cached.ID.String()),
			zap.Error(err),
		)
		return measurement.Measurement{}, false
	}
	m.IsCached = true

	// A pending paid order keeps its lifecycle status visible on the
	// estimate it was seeded from.
	if cached.Status == measurement.StatusPending {
		m.Status = measurement.StatusPending
		if cached.ExternalOrderID != nil {
			m.OrderID = measurement.String(*cached.ExternalOrderID)
		}
	}
	return m, true
}

// expired applies the estimate TTL; zero means cached estimates never
// expire. Verified rows are exempt upstream.
func (s *Service) expired(cached *orderdomain.Order) bool {
	if s.cfg.EstimateCacheTTL <= 0 {
		return false
	}
	return s.clock.Now().Sub(cached.CreatedAt) > s.cfg.EstimateCacheTTL
}

func (s *Service) fetchFresh(ctx context.Context, address, hash string) (measurement.Measurement, error) {
	geo, err := s.solar.Geocode(ctx, address)
	if err != nil {
		return s.degrade(address, err), nil
	}

	raw, err := s.solar.BuildingInsights(ctx, geo.Latitude, geo.Longitude)
	if err != nil {
		return s.degrade(address, err), nil
	}

	m, err := googlesolar.Normalize(raw, address)
	if err != nil {
		return s.degrade(address, err), nil
	}

	now := s.clock.Now()
	row := &orderdomain.Order{
		ID:                    s.genID.Generate(),
		Address:               address,
		NormalizedAddressHash: hash,
		Latitude:              &geo.Latitude,
		Longitude:             &geo.Longitude,
		Status:                measurement.StatusEstimate,
		Source:                measurement.SourceGoogleSolar,
		TotalAreaSqft:         m.TotalAreaSqft,
		PredominantPitch:      m.PredominantPitch,
		ConfidenceScore:       m.ConfidenceScore,
		RawEstimatePayload:    datatypes.JSON(raw),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		// The estimate itself is good; failing to cache it should not turn
		// a valid answer into an error.
		s.log.Error("failed to cache estimate", zap.Error(err))
	}

	return m, nil
}

// degrade maps provider failures onto a manual-review response. Nothing is
// persisted: the next request simply retries.
func (s *Service) degrade(address string, cause error) measurement.Measurement {
	var msg string
	switch {
	case errors.Is(cause, googlesolar.ErrNotConfigured):
		msg = msgEstimateDisabled
	case errors.Is(cause, googlesolar.ErrAddressNotFound):
		msg = msgAddressNotFound
	case errors.Is(cause, googlesolar.ErrBuildingNotFound),
		errors.Is(cause, googlesolar.ErrNoRoofData),
		errors.Is(cause, googlesolar.ErrPermissionDenied):
		msg = msgNoRoofData
	default:
		s.log.Warn("estimate degraded to manual review", zap.Error(cause))
		msg = msgEstimateFailed
	}
	return measurement.ManualReview(address, msg)
}
