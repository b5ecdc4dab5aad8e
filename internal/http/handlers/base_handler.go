// README: Base handler utilities (JSON helpers, error mapping, request binding).
package handlers

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"tripease/internal/apperr"
)

type errorResponse struct {
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Path      string            `json:"path"`
	Timestamp string            `json:"timestamp"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func init() {
	// Report validation failures under the JSON field names clients send.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// writeError maps typed errors to status codes. Untyped errors become a
// redacted 500 and are attached to the context for the request logger.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := errorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   apperr.Message(err),
		Path:      c.Request.URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Errors:    apperr.Fields(err),
	}
	if resp.Errors != nil {
		resp.Message = apperr.ErrValidation.Error()
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		resp.Message = "internal error"
	}
	c.AbortWithStatusJSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// bindJSON decodes the body and converts binding failures into a field map.
func bindJSON(c *gin.Context, v any) error {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
		return &apperr.ValidationError{Fields: fields}
	}
	if errors.Is(err, io.EOF) {
		return apperr.Invalid("body", "request body is required")
	}
	return apperr.Invalid("body", "malformed JSON")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	}
	return "failed " + fe.Tag() + " validation"
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(name, "must be a positive integer")
	}
	return id, nil
}
