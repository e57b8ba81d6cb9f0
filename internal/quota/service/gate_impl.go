package service

import (
	"context"

	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	quotadomain "github.com/smallbiznis/rooflens/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dayLayout = "2006-01-02"

type GateParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Clock  clock.Clock
}

type Gate struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   config.Config
	clock clock.Clock
}

func NewGate(p GateParam) quotadomain.Gate {
	return &Gate{
		db:    p.DB,
		log:   p.Log.Named("quota.gate"),
		cfg:   p.Config,
		clock: p.Clock,
	}
}

func (g *Gate) today() string {
	return g.clock.Now().UTC().Format(dayLayout)
}

// Authorize decides whether a paid order may be placed right now. Disabled
// mode rejects outright; mock mode always passes since no money moves; live
// mode enforces the per-UTC-day order budget.
func (g *Gate) Authorize(ctx context.Context) error {
	switch {
	case g.cfg.IsDisabled():
		return quotadomain.ErrLiveModeDisabled
	case g.cfg.IsMock():
		return nil
	}

	used, err := g.usedToday(ctx)
	if err != nil {
		return err
	}
	if used >= g.cfg.EagleViewDailyLimit {
		g.log.Warn("daily order limit reached",
			zap.String("day", g.today()),
			zap.Int("used", used),
			zap.Int("limit", g.cfg.EagleViewDailyLimit),
		)
		return quotadomain.ErrDailyLimitExceeded
	}
	return nil
}

// Increment bumps today's counter. Called only after the provider confirmed
// the order: a failed placement never consumes budget. Mock and disabled
// modes are no-ops.
func (g *Gate) Increment(ctx context.Context) error {
	if !g.cfg.IsLive() {
		return nil
	}

	now := g.clock.Now().UTC()
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":      gorm.Expr("count + 1"),
			"updated_at": now,
		}),
	}).Create(&quotadomain.DailyOrderCount{
		Day:       now.Format(dayLayout),
		Count:     1,
		UpdatedAt: now,
	}).Error
}

// Status reports the current day's budget position for the cost dashboard.
func (g *Gate) Status(ctx context.Context) (quotadomain.Status, error) {
	used, err := g.usedToday(ctx)
	if err != nil {
		return quotadomain.Status{}, err
	}
	remaining := g.cfg.EagleViewDailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return quotadomain.Status{
		Day:        g.today(),
		Used:       used,
		DailyLimit: g.cfg.EagleViewDailyLimit,
		Remaining:  remaining,
	}, nil
}

func (g *Gate) usedToday(ctx context.Context) (int, error) {
	var row quotadomain.DailyOrderCount
	err := g.db.WithContext(ctx).
		Where("day = ?", g.today()).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return row.Count, nil
}
