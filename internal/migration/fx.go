package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Config       config.Config
	ImportConfig *config.ImportConfigHolder
	Node         *snowflake.Node
	Log          *zap.Logger
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		if !p.Config.DBAutoMigrate {
			p.Log.Info("schema migrations disabled")
			return nil
		}
		if err := Apply(p.DB); err != nil {
			return err
		}

		ctx := context.Background()
		if err := seed.EnsureAdmin(ctx, p.DB, p.Node, seed.AdminOptions{
			Username: p.Config.AdminUsername,
			Password: p.Config.AdminPassword,
		}, p.Log); err != nil {
			return err
		}

		created, err := seed.EnsurePhases(ctx, p.DB, p.Node, p.ImportConfig.Get().PhaseOrder)
		if err != nil {
			return err
		}
		if created > 0 {
			p.Log.Info("root phases seeded", zap.Int("count", created))
		}
		return nil
	}),
)
