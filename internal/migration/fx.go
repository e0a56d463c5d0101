package migration

import (
	checkoutdomain "github.com/smallbiznis/fiskal/internal/checkout/domain"
	"github.com/smallbiznis/fiskal/internal/config"
	fiscaldomain "github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// SQL migrations target postgres; other dialects (sqlite in
		// development) fall back to schema sync.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&fiscaldomain.FiscalConfig{},
				&checkoutdomain.Sale{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
