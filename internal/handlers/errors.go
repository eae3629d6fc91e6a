package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/kubev2v/esxi-migration-agent/api/v1"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case srvErrors.IsMalformedSelectionError(err),
		srvErrors.IsOutOfRangeError(err),
		srvErrors.IsUnsupportedPlatformError(err):
		return http.StatusBadRequest
	case srvErrors.IsResourceNotFoundError(err):
		return http.StatusNotFound
	case srvErrors.IsOutOfOrderTransitionError(err),
		srvErrors.IsMigrationInProgressError(err):
		return http.StatusConflict
	}

	if kind, ok := srvErrors.ConnectionErrorKindOf(err); ok {
		switch kind {
		case srvErrors.Unauthorized:
			return http.StatusUnauthorized
		case srvErrors.Timeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	}

	return http.StatusInternalServerError
}

func (h *Handler) abortWithError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.S().Named("handler").Errorw(msg, "path", c.FullPath(), "error", err)
	} else {
		zap.S().Named("handler").Debugw(msg, "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, v1.Error{Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, v1.Error{Error: err.Error()})
}
