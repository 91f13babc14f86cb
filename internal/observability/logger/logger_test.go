package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/pipelineintel/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "alice")
	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "alice", fields["actor"])
	assert.Equal(t, "", fields["trace_id"])
}

func TestGormLoggerSkipsBelowLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), DefaultGormLoggerConfig())

	gl.Info(context.Background(), "ignored")
	gl.Warn(context.Background(), "kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)

	verbose := gl.LogMode(gormlogger.Info)
	verbose.Info(context.Background(), "now kept")
	assert.Equal(t, 2, logs.Len())
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "INSERT", operationFromSQL(" insert into products values (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestWithEntryTagsImportEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithEntry(WithRun(zap.New(core), " 01J "), "products", "PRD-1", "update").Info("import entry finalized")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "01J", fields["run_id"])
	assert.Equal(t, "products", fields["entity"])
	assert.Equal(t, "PRD-1", fields["identifier"])
	assert.Equal(t, "update", fields["action"])
	assert.Nil(t, WithEntry(nil, "products", "PRD-1", "update"))
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/data-management/finalize", http.StatusInternalServerError, ""))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/data-management/analyze", http.StatusUnprocessableEntity, "validation_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/catalog/:entity/:id", http.StatusConflict, ""))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/catalog/:entity", http.StatusOK, ""))
}

func TestGinMiddlewareLogsImportKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/finalize", func(c *gin.Context) {
		c.Set("state_id", "state-1")
		c.Set("run_id", "run-1")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/finalize", nil)
	req.Header.Set("X-Request-Id", "req-9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-9", w.Header().Get("X-Request-Id"))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "state-1", fields["state_id"])
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "/finalize", fields["route"])
}
