package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
)

func (s *Server) ListCatalog(c *gin.Context) {
	var query struct {
		PageToken string `form:"page_token"`
		PageSize  string `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pageSize, err := parseOptionalInt(query.PageSize)
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	entity := entityParam(c)
	req := catalogdomain.ListRequest{
		Entity:    entity,
		PageToken: strings.TrimSpace(query.PageToken),
	}
	if pageSize != nil {
		req.PageSize = *pageSize
	}

	resp, err := s.catalogSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCatalogItem(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.catalogSvc.Get(c.Request.Context(), entityParam(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// UpdateCatalogField edits one column of one row.
func (s *Server) UpdateCatalogField(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req catalogdomain.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Field = strings.TrimSpace(req.Field)
	if req.Field == "" {
		AbortWithError(c, newValidationError("field", "required", "field is required"))
		return
	}
	req.Entity = entityParam(c)
	req.ID = id

	resp, err := s.catalogSvc.UpdateField(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCatalogItem(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.catalogSvc.Delete(c.Request.Context(), entityParam(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func entityParam(c *gin.Context) catalogdomain.Entity {
	entity := strings.TrimSpace(c.Param("entity"))
	c.Set("entity_type", entity)
	return catalogdomain.Entity(entity)
}
