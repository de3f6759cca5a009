package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retosmicro/authsvc/internal/service"
)

type errorResponse struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newErrorResponse(c *gin.Context, statusCode int, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Message: errMessage})
}

// statusFromError maps service errors onto HTTP statuses. Anything
// outside the taxonomy is an internal error and keeps its detail out of
// the response body.
func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, service.ErrConflict.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, service.ErrInvalidCredentials.Error()
	case errors.Is(err, service.ErrWrongPassword):
		return http.StatusUnauthorized, service.ErrWrongPassword.Error()
	case errors.Is(err, service.ErrResetTokenInvalid):
		return http.StatusGone, service.ErrResetTokenInvalid.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, service.ErrNotFound.Error()
	case errors.Is(err, service.ErrNoFields):
		return http.StatusBadRequest, service.ErrNoFields.Error()
	case errors.Is(err, service.ErrPasswordTooShort):
		return http.StatusBadRequest, service.ErrPasswordTooShort.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
