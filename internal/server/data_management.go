package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
)

type analyzeResponse struct {
	StateID string               `json:"state_id"`
	Summary importdomain.Summary `json:"summary"`
	State   *importdomain.State  `json:"state"`
}

func newAnalyzeResponse(st *importdomain.State) analyzeResponse {
	return analyzeResponse{StateID: st.ID, Summary: st.Summary(), State: st}
}

// AnalyzeImport accepts either a multipart upload (file + entity_type) or a
// JSON body shaped like importdomain.AnalyzeRequest.
func (s *Server) AnalyzeImport(c *gin.Context) {
	var req importdomain.AnalyzeRequest

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		data, err := readUpload(c, "file", "json_file")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		entity := importdomain.EntityType(strings.TrimSpace(c.PostForm("entity_type")))
		req, err = importdomain.ParseImport(data, entity)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		if err := decodeJSON(body, &req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	c.Set("entity_type", string(req.EntityType))

	st, err := s.importSvc.Analyze(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("state_id", st.ID)

	c.JSON(http.StatusOK, gin.H{"data": newAnalyzeResponse(st)})
}

func (s *Server) GetImportState(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, newValidationError("id", "required", "state id is required"))
		return
	}
	c.Set("state_id", id)

	st, err := s.importSvc.GetState(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newAnalyzeResponse(st)})
}

func (s *Server) ResolveImport(c *gin.Context) {
	var req importdomain.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.StateID = strings.TrimSpace(req.StateID)
	if req.StateID == "" {
		AbortWithError(c, newValidationError("state_id", "required", "state_id is required"))
		return
	}
	c.Set("state_id", req.StateID)

	st, err := s.importSvc.Resolve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newAnalyzeResponse(st)})
}

func (s *Server) FinalizeImport(c *gin.Context) {
	var req importdomain.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.StateID = strings.TrimSpace(req.StateID)
	if req.StateID == "" {
		AbortWithError(c, newValidationError("state_id", "required", "state_id is required"))
		return
	}
	c.Set("state_id", req.StateID)

	report, err := s.importSvc.Finalize(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", report.RunID)

	c.JSON(http.StatusOK, gin.H{"data": report})
}

// FullImport restores an uploaded whole-database backup file.
func (s *Server) FullImport(c *gin.Context) {
	data, err := readUpload(c, "file", "full_backup_file")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.restore(c, data)
}

func (s *Server) RestoreBackup(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.restore(c, data)
}

func (s *Server) restore(c *gin.Context, data []byte) {
	var backup importdomain.Backup
	if err := json.Unmarshal(data, &backup); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.importSvc.RestoreBackup(c.Request.Context(), &backup)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ExportBackup(c *gin.Context) {
	backup, err := s.importSvc.ExportBackup(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("pipelineintel_backup_%s.json", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.JSON(http.StatusOK, backup)
}

// readUpload returns the first multipart file found under one of fields.
// Only .json files are accepted.
func readUpload(c *gin.Context, fields ...string) ([]byte, error) {
	for _, field := range fields {
		header, err := c.FormFile(field)
		if err != nil {
			continue
		}
		if !strings.EqualFold(filepath.Ext(header.Filename), ".json") {
			return nil, newValidationError(field, "invalid_file_type", "upload a .json file")
		}
		if header.Size > maxUploadBytes {
			return nil, newValidationError(field, "file_too_large", "file is too large")
		}
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxUploadBytes))
	}
	return nil, newValidationError(fields[0], "required", "no file selected")
}

// decodeJSON keeps numbers as json.Number so ids survive untouched.
func decodeJSON(data []byte, out any) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	return dec.Decode(out)
}
