package httpapi

import (
	"errors"
	"net/http"

	"voice-platform/internal/calls"
	"voice-platform/internal/reporting"
	"voice-platform/internal/users"
	"voice-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type errorCode string

const (
	codeBadRequest     errorCode = "bad_request"
	codeForbidden      errorCode = "forbidden"
	codeNotFound       errorCode = "not_found"
	codeConflict       errorCode = "conflict"
	codeCallerBusy     errorCode = "caller_busy"
	codeRecipientBusy  errorCode = "recipient_busy"
	codeNotActive      errorCode = "call_not_active"
	codeInfrastructure errorCode = "call_infrastructure"
	codeInternal       errorCode = "internal"
)

// classify maps the domain error taxonomy onto HTTP.
// Unknown errors are internal and their text is never returned.
func classify(err error) (int, errorCode, string) {
	switch {
	case errors.Is(err, calls.ErrCallerBusy):
		return http.StatusConflict, codeCallerBusy, "caller already has an active call"
	case errors.Is(err, calls.ErrRecipientBusy):
		return http.StatusConflict, codeRecipientBusy, "recipient is busy"
	case errors.Is(err, calls.ErrCallNotActive):
		return http.StatusConflict, codeNotActive, "call is not active"
	case errors.Is(err, calls.ErrInvalidTransition):
		return http.StatusConflict, codeConflict, "call is not in a state that allows this action"
	case errors.Is(err, calls.ErrUnauthorized):
		return http.StatusForbidden, codeForbidden, "not a participant of this call"
	case errors.Is(err, calls.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "call not found"
	case errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "user not found"
	case errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, users.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, codeBadRequest, "invalid request"
	case errors.Is(err, calls.ErrCallInfrastructure):
		return http.StatusServiceUnavailable, codeInfrastructure, "call infrastructure unavailable"
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		logger.FromGin(c).Error("request failed", "err", err, "code", string(code))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": codeBadRequest})
}
