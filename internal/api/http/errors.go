package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/StreamOS/backend/internal/domain/pipeline"
	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrCapacityExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, pipeline.ErrParse),
		errors.Is(err, pipeline.ErrGraphType),
		errors.Is(err, pipeline.ErrInvalidState),
		errors.Is(err, pipeline.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrAlreadyExists),
		errors.Is(err, pipeline.ErrMonitorRunning):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrStateChange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrInitialization):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"code":  pipeline.Code(err),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": err.Error(),
		"code":  "invalid_request",
	})
}
