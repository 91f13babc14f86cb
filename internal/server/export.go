package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
)

// ExportEntities returns one entity slice as a downloadable JSON list.
func (s *Server) ExportEntities(c *gin.Context) {
	var req importdomain.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Entity = strings.TrimSpace(req.Entity)
	if req.Entity == "" {
		AbortWithError(c, newValidationError("entity_type", "required", "entity_type is required"))
		return
	}
	c.Set("entity_type", req.Entity)

	result, err := s.importSvc.Export(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.JSON(http.StatusOK, result.Items)
}
