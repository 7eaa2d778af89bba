// Package api exposes the REST surface: gin handlers, the response envelope,
// and the single point where domain errors become HTTP responses.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/pkg/logger"
)

// envelope is the shared response shape for success and failure.
type envelope struct {
	Success   bool   `json:"success"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{
		Success:   status < 400,
		Code:      status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Success writes a 200 envelope.
func Success(c *gin.Context, data any) {
	respond(c, http.StatusOK, "ok", data)
}

// Created writes a 201 envelope.
func Created(c *gin.Context, data any) {
	respond(c, http.StatusCreated, "created", data)
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindForbidden, apperrors.KindBanned:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error translates a domain failure into the error envelope. Internal errors
// get a generic message; the cause is only logged. 4xx responses are logged
// as warnings, 5xx as errors.
func Error(c *gin.Context, err error) {
	status := statusForKind(apperrors.KindOf(err))

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	rid := c.GetString("request_id")
	if status >= 500 {
		logger.L().Error("request failed",
			"rid", rid,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	} else {
		logger.L().Warn("request rejected",
			"rid", rid,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	}

	data := gin.H{
		"error":  message,
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}
	if details := apperrors.DetailsOf(err); details != nil {
		data["details"] = details
	}
	c.AbortWithStatusJSON(status, envelope{
		Success:   false,
		Code:      status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// BadRequest reports a malformed request body or query.
func BadRequest(c *gin.Context, err error) {
	Error(c, apperrors.Validation("invalid request: "+err.Error(), nil))
}

func errMissingParam(name string) error {
	return apperrors.Validation("missing required parameter: "+name, nil)
}

// Pagination carries the parsed page parameters.
type Pagination struct {
	Page     int
	PageSize int
}

// ParsePagination reads page/page_size query parameters with sane bounds.
func ParsePagination(c *gin.Context) Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return Pagination{Page: page, PageSize: size}
}

// Paginated wraps a listing with its pagination block.
func Paginated(data any, p Pagination, total int) gin.H {
	totalPages := total / p.PageSize
	if total%p.PageSize != 0 {
		totalPages++
	}
	return gin.H{
		"data": data,
		"pagination": gin.H{
			"page":        p.Page,
			"page_size":   p.PageSize,
			"total":       total,
			"total_pages": totalPages,
		},
	}
}
