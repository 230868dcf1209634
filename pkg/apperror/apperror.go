package apperror

import (
	"errors"
	"net/http"

	"pmo-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sentinel error kinds for the approval core. Services wrap these with
// fmt.Errorf("%w: ...") so callers can match with errors.Is while still
// carrying a human-readable message.
var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrChainNotFound     = errors.New("approval chain not found")
	ErrNoStepsConfigured = errors.New("approval chain has no steps")
	ErrStorageFailure    = errors.New("storage failure")
)

// StatusOf maps an error to the HTTP status code it should surface with.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrChainNotFound), errors.Is(err, ErrNoStepsConfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStorageFailure):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes the standard error envelope for err and aborts the request.
func Respond(c *gin.Context, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).Error("request failed")
	}
	c.AbortWithStatusJSON(status, response.Error(status, err.Error()))
}
