package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/pipelineintel/internal/catalog/catalogtest"
	catalogdomain "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/pipelineintel/internal/catalog/service"
	"github.com/smallbiznis/pipelineintel/internal/config"
	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
	importservice "github.com/smallbiznis/pipelineintel/internal/importer/service"
	"github.com/smallbiznis/pipelineintel/internal/importer/state"
	obsmetrics "github.com/smallbiznis/pipelineintel/internal/observability/metrics"
	traceservice "github.com/smallbiznis/pipelineintel/internal/traceability/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := catalogtest.NewDB(t)
	repo := repository.Provide()
	importCfg := config.NewStaticImportConfigHolder(config.DefaultImportConfig())
	node := catalogtest.NewNode(t)

	router := gin.New()
	router.Use(obsmetrics.GinMiddleware(obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())))
	router.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin: router,
		Cfg: config.Config{AppVersion: "test"},
		Log: zap.NewNop(),
		CatalogSvc: catalogservice.New(catalogservice.Params{
			DB:   db,
			Log:  zap.NewNop(),
			Repo: repo,
		}),
		ImportSvc: importservice.New(importservice.Params{
			DB:        db,
			Log:       zap.NewNop(),
			GenID:     node,
			Repo:      repo,
			Store:     state.NewMemoryStore(nil),
			Config:    importCfg,
			AppConfig: config.Config{AppVersion: "test"},
		}),
		TraceSvc: traceservice.New(traceservice.Params{
			DB:     db,
			Log:    zap.NewNop(),
			Repo:   repo,
			Config: importCfg,
		}),
	})

	return &testServer{router: router, db: db}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func (s *testServer) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	return s.do(t, method, path, body, "application/json")
}

func multipartUpload(t *testing.T, field, filename, content string, form map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range form {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error errorPayload    `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

func TestAnalyzeUploadThenFinalize(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, "file", "modalities.json",
		`[{"modality_name":"Small Molecule","modality_category":"Chemical"}]`,
		map[string]string{"entity_type": "modalities"})
	resp := srv.do(t, http.MethodPost, "/api/data-management/analyze", body, contentType)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var analyzed analyzeResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &analyzed))
	require.NotEmpty(t, analyzed.StateID)
	assert.Equal(t, 1, analyzed.Summary.New)

	resp = srv.do(t, http.MethodGet, "/api/data-management/state/"+analyzed.StateID, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = srv.doJSON(t, http.MethodPost, "/api/data-management/finalize", importdomain.FinalizeRequest{StateID: analyzed.StateID})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var report importdomain.Report
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &report))
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.Added)

	resp = srv.do(t, http.MethodGet, "/api/catalog/modalities", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list catalogdomain.ListResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Small Molecule", list.Items[0]["modality_name"])
}

func TestAnalyzeAcceptsJSONBody(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/api/data-management/analyze",
		[]byte(`{"entity_type":"modalities","items":[{"modality_name":"ADC"}]}`), "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var analyzed analyzeResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &analyzed))
	assert.Equal(t, 1, analyzed.Summary.Total)
}

func TestAnalyzeRejectsNonJSONUpload(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, "file", "modalities.csv", "modality_name\nADC\n",
		map[string]string{"entity_type": "modalities"})
	resp := srv.do(t, http.MethodPost, "/api/data-management/analyze", body, contentType)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, "validation_error", env.Error.Type)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "invalid_file_type", env.Error.Errors[0].Code)
}

func TestAnalyzeRejectsWrongTopLevel(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, "file", "modalities.json", `{"modality_name":"ADC"}`,
		map[string]string{"entity_type": "modalities"})
	resp := srv.do(t, http.MethodPost, "/api/data-management/analyze", body, contentType)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_input", decodeEnvelope(t, resp).Error.Errors[0].Code)
}

func TestFinalizeUnknownStateIsNotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.doJSON(t, http.MethodPost, "/api/data-management/finalize", importdomain.FinalizeRequest{StateID: "missing"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = srv.doJSON(t, http.MethodPost, "/api/data-management/finalize", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestBackupExportAndRestore(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.db.Create(&catalogdomain.Modality{ModalityID: 1, ModalityName: "ADC"}).Error)

	resp := srv.do(t, http.MethodGet, "/api/data-management/backup", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "pipelineintel_backup_")
	backup := resp.Body.Bytes()

	resp = srv.do(t, http.MethodPost, "/api/data-management/backup", backup, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var result importdomain.RestoreResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &result))
	assert.Equal(t, 1, result.Tables["modalities"])

	body, contentType := multipartUpload(t, "full_backup_file", "backup.json", `{"products":[]}`, nil)
	resp = srv.do(t, http.MethodPost, "/api/data-management/full-import", body, contentType)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestExportEntities(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.db.Create(&catalogdomain.Modality{ModalityID: 1, ModalityName: "ADC"}).Error)
	require.NoError(t, srv.db.Create(&catalogdomain.Modality{ModalityID: 2, ModalityName: "Gene Therapy"}).Error)

	resp := srv.doJSON(t, http.MethodPost, "/api/export", importdomain.ExportRequest{
		Entity: "modalities",
		Fields: []string{"modality_name"},
		IDs:    []int64{2},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "modalities")

	var items []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"modality_name": "Gene Therapy"}, items[0])

	resp = srv.doJSON(t, http.MethodPost, "/api/export", importdomain.ExportRequest{Entity: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCatalogEditAndDelete(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.db.Create(&catalogdomain.Modality{ModalityID: 1, ModalityName: "ADC"}).Error)
	require.NoError(t, srv.db.Create(&catalogdomain.Modality{ModalityID: 2, ModalityName: "Cell Therapy"}).Error)

	resp := srv.doJSON(t, http.MethodPatch, "/api/catalog/modalities/1", catalogdomain.UpdateFieldRequest{
		Field: "modality_name",
		Value: "Antibody Drug Conjugate",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = srv.doJSON(t, http.MethodPatch, "/api/catalog/modalities/1", catalogdomain.UpdateFieldRequest{
		Field: "modality_name",
		Value: "Cell Therapy",
	})
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = srv.do(t, http.MethodGet, "/api/catalog/modalities/1", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var row map[string]any
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &row))
	assert.Equal(t, "Antibody Drug Conjugate", row["modality_name"])

	resp = srv.do(t, http.MethodDelete, "/api/catalog/modalities/1", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = srv.do(t, http.MethodDelete, "/api/catalog/modalities/1", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = srv.do(t, http.MethodGet, "/api/catalog/widgets", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = srv.do(t, http.MethodGet, "/api/catalog/modalities/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestTraceabilityRoutes(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.db.Create(&catalogdomain.Modality{ModalityID: 1, ModalityName: "ADC"}).Error)
	require.NoError(t, srv.db.Create(&catalogdomain.ProcessTemplate{TemplateID: 10, TemplateName: "ADC Platform", ModalityID: catalogtest.Ptr(int64(1))}).Error)

	resp := srv.do(t, http.MethodGet, "/api/challenge-traceability/data?modality_id=1", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = srv.do(t, http.MethodGet, "/api/challenge-traceability/data?modality_id=1&template_id=10", nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = srv.do(t, http.MethodGet, "/api/challenge-traceability/data?modality_id=1&template_id=99", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = srv.do(t, http.MethodGet, "/api/challenge-traceability/templates-by-modality/1", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "ADC Platform")

	resp = srv.do(t, http.MethodGet, "/api/challenge-traceability/filters", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = srv.do(t, http.MethodGet, "/api/challenge-traceability/node-details/widget/1", nil, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "node_type", decodeEnvelope(t, resp).Error.Errors[0].Field)

	resp = srv.do(t, http.MethodGet, "/api/challenge-traceability/node-details/template/10", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"modality_name":"ADC"`)

	resp = srv.do(t, http.MethodGet, "/api/products/42/effective-challenges", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMapErrorUnresolvedReferences(t *testing.T) {
	err := &importdomain.UnresolvedError{Missing: []importdomain.MissingReference{
		{Field: "modality_name", Key: "modality_name", Value: "Ghost"},
	}}

	status, payload := mapError(err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "unresolved_reference", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, `modality_name "Ghost" not found`, payload.Errors[0].Message)
}

func TestMapErrorKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{catalogdomain.ErrDuplicateName, http.StatusConflict, "conflict"},
		{catalogdomain.ErrHierarchyCycle, http.StatusUnprocessableEntity, "constraint_violation"},
		{importdomain.ErrStateLocked, http.StatusConflict, "conflict"},
		{errors.New("FOREIGN KEY constraint failed"), http.StatusConflict, "conflict"},
		{fmt.Errorf("cascade: %w", gorm.ErrForeignKeyViolated), http.StatusConflict, "conflict"},
		{errors.New("UNIQUE constraint failed: modalities.modality_name"), http.StatusConflict, "conflict"},
		{importdomain.ErrCritical, http.StatusServiceUnavailable, "critical_failure"},
		{gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, payload.Type, tc.err.Error())
	}
}
