package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rooflens/internal/clock"
	usagedomain "github.com/smallbiznis/rooflens/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Record persists one outbound call. Failures are logged and swallowed; a
// measurement must never fail because its audit row did.
func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) {
	row := usagedomain.APIUsageLog{
		ID:           s.genID.Generate(),
		Provider:     req.Provider,
		Endpoint:     req.Endpoint,
		Method:       req.Method,
		CostUSD:      req.CostUSD,
		StatusCode:   req.StatusCode,
		Success:      req.Success,
		ErrorMessage: req.ErrorMessage,
		CreatedAt:    s.clock.Now(),
	}
	if req.Address != "" {
		addr := req.Address
		row.Address = &addr
	}
	if req.Latency > 0 {
		ms := req.Latency.Milliseconds()
		row.LatencyMs = &ms
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Warn("failed to record api usage",
			zap.String("provider", req.Provider),
			zap.String("endpoint", req.Endpoint),
			zap.Error(err),
		)
	}
}

// Summary aggregates spend per provider, optionally bounded to rows created
// at or after since.
func (s *Service) Summary(ctx context.Context, since *time.Time) (usagedomain.SummaryResponse, error) {
	query := s.db.WithContext(ctx).
		Model(&usagedomain.APIUsageLog{}).
		Select(`provider,
			COUNT(*) AS request_count,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_count,
			COALESCE(SUM(cost_usd), 0) AS total_cost_usd`).
		Group("provider").
		Order("provider ASC")
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	var providers []usagedomain.ProviderSummary
	if err := query.Scan(&providers).Error; err != nil {
		return usagedomain.SummaryResponse{}, err
	}

	resp := usagedomain.SummaryResponse{
		Since:     since,
		Providers: providers,
	}
	for _, p := range providers {
		resp.TotalCostUSD += p.TotalCostUSD
	}
	return resp, nil
}
