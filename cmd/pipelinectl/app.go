package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pipelineintel/internal/catalog"
	"github.com/smallbiznis/pipelineintel/internal/clock"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/importer"
	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/internal/migration"
	"github.com/smallbiznis/pipelineintel/internal/observability"
	obscontext "github.com/smallbiznis/pipelineintel/internal/observability/context"
	"github.com/smallbiznis/pipelineintel/internal/traceability"
	tracedomain "github.com/smallbiznis/pipelineintel/internal/traceability/domain"
	"github.com/smallbiznis/pipelineintel/pkg/db"
	"go.uber.org/fx"
)

type services struct {
	Import importdomain.Service
	Trace  tracedomain.Service
}

// withServices boots the catalog stack without the HTTP server, runs fn and
// shuts everything down again.
func withServices(ctx context.Context, opts *globalOptions, fn func(ctx context.Context, svc services) error) error {
	var svc services
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Decorate(func(c observability.Config) observability.Config {
			c.LogLevel = opts.logLevel
			return c
		}),
		fx.Provide(func() (*snowflake.Node, error) { return snowflake.NewNode(2) }),
		db.Module,
		clock.Module,
		migration.Module,
		catalog.Module,
		importer.Module,
		traceability.Module,
		fx.Populate(&svc.Import, &svc.Trace),
	)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(obscontext.WithActor(ctx, actorName()), svc)
}

// actorName tags log lines written from the command line.
func actorName() string {
	if user := os.Getenv("USER"); user != "" {
		return "pipelinectl:" + user
	}
	return "pipelinectl"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
