package migration

import (
	"github.com/smallbiznis/crmbilling/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply brings the schema up to date before any service touches it.
func Apply(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
	if cfg.IsSQLite() {
		log.Info("applying sqlite schema")
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("applying sql migrations")
	return RunMigrations(sqlDB)
}
