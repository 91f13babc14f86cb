package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tracedomain "github.com/smallbiznis/pipelineintel/internal/traceability/domain"
)

func (s *Server) GetTraceability(c *gin.Context) {
	var req tracedomain.TraceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ModalityID <= 0 {
		AbortWithError(c, newValidationError("modality_id", "required", "modality_id is required"))
		return
	}
	if req.TemplateID <= 0 {
		AbortWithError(c, newValidationError("template_id", "required", "template_id is required"))
		return
	}

	resp, err := s.traceSvc.Trace(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTraceabilityFilters(c *gin.Context) {
	resp, err := s.traceSvc.AvailableFilters(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTemplatesByModality(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.traceSvc.TemplatesByModality(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetNodeDetails(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.traceSvc.NodeDetails(c.Request.Context(), strings.TrimSpace(c.Param("type")), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetEffectiveChallenges(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.traceSvc.EffectiveChallenges(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
