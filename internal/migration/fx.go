package migration

import (
	"github.com/smallbiznis/rooflens/internal/config"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	quotadomain "github.com/smallbiznis/rooflens/internal/quota/domain"
	usagedomain "github.com/smallbiznis/rooflens/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The versioned SQL migrations target postgres. Other dialects,
		// mainly sqlite for local development, get the gorm auto-migrated
		// equivalent of the same schema.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&orderdomain.Order{},
				&quotadomain.DailyOrderCount{},
				&usagedomain.APIUsageLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
