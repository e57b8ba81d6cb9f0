package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	"github.com/smallbiznis/rooflens/internal/providers/eagleview"
	quotadomain "github.com/smallbiznis/rooflens/internal/quota/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware converts errors attached to the gin context into
// a JSON error response. Handlers call AbortWithError and never write error
// bodies themselves.
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

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, orderdomain.ErrInvalidAddress):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "address is required",
		}
	case errors.Is(err, orderdomain.ErrInvalidReportType):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "report_type must be BASIC or PREMIUM",
		}
	case errors.Is(err, eagleview.ErrUnknownReportType):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "report_type must be BASIC or PREMIUM",
		}
	case errors.Is(err, quotadomain.ErrLiveModeDisabled):
		return http.StatusForbidden, errorPayload{
			Type:    "provider_disabled",
			Message: "verified measurement orders are disabled",
		}
	case errors.Is(err, quotadomain.ErrDailyLimitExceeded):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "quota_exceeded",
			Message: "daily order limit reached, try again tomorrow",
		}
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "order not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
