package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
	tracedomain "github.com/smallbiznis/pipelineintel/internal/traceability/domain"
	"github.com/smallbiznis/pipelineintel/pkg/db"
	"github.com/smallbiznis/pipelineintel/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var unresolved *importdomain.UnresolvedError
	if errors.As(err, &unresolved) {
		details := make([]ValidationError, 0, len(unresolved.Missing))
		for _, m := range unresolved.Missing {
			details = append(details, ValidationError{
				Field:   m.Field,
				Code:    "unresolved_reference",
				Message: m.Key + " " + `"` + m.Value + `"` + " not found",
			})
		}
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unresolved_reference",
			Message: "unresolved references",
			Errors:  details,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, importdomain.ErrInvalidInput),
		errors.Is(err, catalogdomain.ErrInvalidEntity),
		errors.Is(err, catalogdomain.ErrInvalidField),
		errors.Is(err, catalogdomain.ErrInvalidDate),
		errors.Is(err, tracedomain.ErrInvalidNodeType),
		errors.Is(err, pagination.ErrInvalidPageToken):
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	case errors.Is(err, catalogdomain.ErrHierarchyCycle),
		errors.Is(err, catalogdomain.ErrTemplateModalityMismatch),
		errors.Is(err, catalogdomain.ErrLineExtension),
		errors.Is(err, catalogdomain.ErrLaunchSequenceConflict):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "constraint_violation",
			Message: err.Error(),
		}
	case errors.Is(err, catalogdomain.ErrDuplicateName),
		errors.Is(err, catalogdomain.ErrReferenced),
		errors.Is(err, importdomain.ErrStateLocked),
		db.IsDuplicateKeyErr(err),
		db.IsForeignKeyErr(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many import requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, importdomain.ErrCritical):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "critical_failure",
			Message: "import aborted, no changes were kept",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger with the mapped error type
// and its first code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, tracedomain.ErrNotFound),
		errors.Is(err, importdomain.ErrStateNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		importdomain.ErrInvalidInput,
		catalogdomain.ErrInvalidEntity,
		catalogdomain.ErrInvalidField,
		catalogdomain.ErrInvalidDate,
		tracedomain.ErrInvalidNodeType,
		pagination.ErrInvalidPageToken,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request", "invalid_input":
		return "request"
	case "invalid_entity":
		return "entity_type"
	case "invalid_node_type":
		return "node_type"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
