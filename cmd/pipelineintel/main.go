package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pipelineintel/internal/clock"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/metricspush"
	"github.com/smallbiznis/pipelineintel/internal/migration"
	"github.com/smallbiznis/pipelineintel/internal/observability"
	"github.com/smallbiznis/pipelineintel/internal/scheduler"
	"github.com/smallbiznis/pipelineintel/internal/server"
	"github.com/smallbiznis/pipelineintel/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		metricspush.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
