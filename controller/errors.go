package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"finchat/model"
)

// statusOf maps the error taxonomy onto HTTP statuses.
func statusOf(err error) int {
	var (
		ve *model.ValidationError
		ne *model.NetworkError
		se *model.ServerError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ne):
		return http.StatusServiceUnavailable
	case errors.As(err, &se):
		if se.Status == http.StatusUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case errors.Is(err, model.ErrLoginRequired):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, logger logrus.FieldLogger, action string, err error, extra gin.H) {
	logger.Warnf("[%s] Failed to %s: %s", c.GetString("requestId"), action, err)
	body := gin.H{"error": model.UserMessage(err), "kind": model.Kind(err)}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(statusOf(err), body)
}
