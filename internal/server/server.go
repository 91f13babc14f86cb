package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/pipelineintel/internal/catalog"
	catalogdomain "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/importer"
	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/internal/observability"
	obsmiddleware "github.com/smallbiznis/pipelineintel/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pipelineintel/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pipelineintel/internal/observability/tracing"
	"github.com/smallbiznis/pipelineintel/internal/ratelimit"
	"github.com/smallbiznis/pipelineintel/internal/traceability"
	tracedomain "github.com/smallbiznis/pipelineintel/internal/traceability/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	catalog.Module,
	importer.Module,
	traceability.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// maxUploadBytes bounds import files and backups.
const maxUploadBytes = 32 << 20

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.MaxMultipartMemory = maxUploadBytes

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	catalogSvc catalogdomain.Service
	importSvc  importdomain.Service
	traceSvc   tracedomain.Service
	limiter    *ratelimit.ImportLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	CatalogSvc catalogdomain.Service
	ImportSvc  importdomain.Service
	TraceSvc   tracedomain.Service
	Limiter    *ratelimit.ImportLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		catalogSvc: p.CatalogSvc,
		importSvc:  p.ImportSvc,
		traceSvc:   p.TraceSvc,
		limiter:    p.Limiter,
	}

	svc.RegisterAPIRoutes()
	return svc
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	data := api.Group("/data-management")
	{
		data.GET("/state/:id", s.GetImportState)
		data.GET("/backup", s.ExportBackup)

		writes := data.Group("", s.ThrottleImports())
		writes.POST("/analyze", s.AnalyzeImport)
		writes.POST("/resolve", s.ResolveImport)
		writes.POST("/finalize", s.FinalizeImport)
		writes.POST("/full-import", s.FullImport)
		writes.POST("/backup", s.RestoreBackup)
	}

	api.POST("/export", s.ExportEntities)

	trace := api.Group("/challenge-traceability")
	{
		trace.GET("/data", s.GetTraceability)
		trace.GET("/filters", s.GetTraceabilityFilters)
		trace.GET("/templates-by-modality/:id", s.ListTemplatesByModality)
		trace.GET("/node-details/:type/:id", s.GetNodeDetails)
	}

	api.GET("/products/:id/effective-challenges", s.GetEffectiveChallenges)

	cat := api.Group("/catalog")
	{
		cat.GET("/:entity", s.ListCatalog)
		cat.GET("/:entity/:id", s.GetCatalogItem)
		cat.PATCH("/:entity/:id", s.UpdateCatalogField)
		cat.DELETE("/:entity/:id", s.DeleteCatalogItem)
	}
}
